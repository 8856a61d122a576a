package events

import (
	"context"

	"caconnect-backend/internal/domain"
	"caconnect-backend/pkg/logger"
)

// LogPublisher writes events to the structured log. It is the only sink when
// no Redis is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event domain.Event) error {
	logger.WithContext(ctx).Info().
		Str("event", string(event.Type)).
		Str("request_id", event.RequestID.String()).
		Str("actor_type", string(event.ActorType)).
		Interface("payload", event.Payload).
		Msg("Event")
	return nil
}
