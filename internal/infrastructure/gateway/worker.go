package gateway

import (
	"context"
	"errors"
	"fmt"

	"caconnect-backend/internal/domain"
	"caconnect-backend/internal/infrastructure/events"
	"caconnect-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Settlement records gateway outcomes on payments.
type Settlement interface {
	MarkCompleted(ctx context.Context, paymentID uuid.UUID, gatewayRef string) (*domain.Payment, error)
	MarkFailed(ctx context.Context, paymentID uuid.UUID, reason string) (*domain.Payment, error)
}

// Worker consumes gateway events: refunds are executed, escrow schedules are recorded.
type Worker struct {
	refunder   Refunder
	settlement Settlement
}

func NewWorker(refunder Refunder, settlement Settlement) *Worker {
	return &Worker{refunder: refunder, settlement: settlement}
}

// Run subscribes to channel until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, client *redis.Client, channel string) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	log := logger.WithContext(ctx)
	log.Info().Str("channel", channel).Msg("Gateway worker subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("gateway subscription closed")
			}
			ev, err := events.Decode(msg.Payload)
			if err != nil {
				log.Error().Err(err).Str("channel", msg.Channel).Msg("Dropping malformed gateway event")
				continue
			}
			if err := w.Handle(ctx, ev); err != nil {
				log.Error().Err(err).Str("event", string(ev.Type)).Str("request_id", ev.RequestID.String()).Msg("Gateway event failed")
			}
		}
	}
}

// Handle processes one event. Events the gateway has no part in are ignored.
func (w *Worker) Handle(ctx context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventRefundCreated:
		return w.refund(ctx, ev)
	case domain.EventEscrowScheduled:
		logger.WithContext(ctx).Info().
			Str("request_id", ev.RequestID.String()).
			Str("payment_id", payloadString(ev, "paymentId")).
			Str("release_date", payloadString(ev, "releaseDate")).
			Str("gateway_ref", payloadString(ev, "gatewayRef")).
			Msg("Escrow release scheduled")
		return nil
	}
	return nil
}

func (w *Worker) refund(ctx context.Context, ev domain.Event) error {
	order, err := refundOrderFrom(ev)
	if err != nil {
		return err
	}
	log := logger.WithContext(ctx).With().
		Str("request_id", ev.RequestID.String()).
		Str("payment_id", order.RefundPaymentID.String()).
		Logger()

	// A fully discounted charge moved no money, so there is nothing to return.
	if order.Amount.IsZero() {
		if _, err := w.settlement.MarkCompleted(ctx, order.RefundPaymentID, ""); err != nil {
			return ignoreSettled(fmt.Errorf("mark refund completed: %w", err))
		}
		log.Info().Msg("Zero-amount refund settled without gateway")
		return nil
	}

	gatewayID, refundErr := w.refunder.Refund(ctx, order)
	if refundErr != nil {
		log.Warn().Err(refundErr).Msg("Gateway refund failed")
		if _, err := w.settlement.MarkFailed(ctx, order.RefundPaymentID, refundErr.Error()); err != nil {
			return ignoreSettled(fmt.Errorf("mark refund failed: %w", err))
		}
		return nil
	}
	if _, err := w.settlement.MarkCompleted(ctx, order.RefundPaymentID, gatewayID); err != nil {
		return ignoreSettled(fmt.Errorf("mark refund completed: %w", err))
	}
	log.Info().Str("gateway_ref", gatewayID).Msg("Refund executed")
	return nil
}

// ignoreSettled drops errors caused by a redelivered event whose payment is already final.
func ignoreSettled(err error) error {
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil
	}
	return err
}

func refundOrderFrom(ev domain.Event) (RefundOrder, error) {
	id, err := uuid.Parse(payloadString(ev, "paymentId"))
	if err != nil {
		return RefundOrder{}, fmt.Errorf("refund event without payment id: %w", err)
	}
	amount, err := decimal.NewFromString(payloadString(ev, "amount"))
	if err != nil {
		return RefundOrder{}, fmt.Errorf("refund %s: bad amount: %w", id, err)
	}
	return RefundOrder{
		RefundPaymentID:  id,
		SourceGatewayRef: payloadString(ev, "sourceGatewayRef"),
		Amount:           amount,
		Currency:         payloadString(ev, "currency"),
		Reason:           payloadString(ev, "reason"),
	}, nil
}

func payloadString(ev domain.Event, key string) string {
	if v, ok := ev.Payload[key].(string); ok {
		return v
	}
	return ""
}
