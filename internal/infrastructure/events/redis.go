package events

import (
	"context"
	"fmt"
	"time"

	"caconnect-backend/internal/domain"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// publisher is the subset of *redis.Client used here.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher fans every event out to the notification channel. Events the
// payment gateway must act on are also sent to the gateway channel.
type RedisPublisher struct {
	client              publisher
	notificationChannel string
	gatewayChannel      string
}

func NewRedisPublisher(client *redis.Client, notificationChannel, gatewayChannel string) *RedisPublisher {
	return &RedisPublisher{client: client, notificationChannel: notificationChannel, gatewayChannel: gatewayChannel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, p.notificationChannel, body).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Type, p.notificationChannel, err)
	}
	if event.IsGatewayEvent() {
		if err := p.client.Publish(ctx, p.gatewayChannel, body).Err(); err != nil {
			return fmt.Errorf("publish %s to %s: %w", event.Type, p.gatewayChannel, err)
		}
	}
	return nil
}

// Decode parses a message published by RedisPublisher.
func Decode(payload string) (domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return domain.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// NewRedisClient opens a client and verifies connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}
