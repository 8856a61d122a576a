package usecase

import (
	"context"

	"caconnect-backend/internal/domain"
	"caconnect-backend/pkg/logger"
)

// maxStaleRetries bounds how often a transition re-reads after losing a conditional write.
const maxStaleRetries = 3

// emit publishes events after their state change has committed. Delivery
// failures are logged and never undo the change.
func emit(ctx context.Context, pub domain.EventPublisher, events []domain.Event) {
	for _, ev := range events {
		if err := pub.Publish(ctx, ev); err != nil {
			logger.WithContext(ctx).Error().Err(err).
				Str("event", string(ev.Type)).
				Str("request_id", ev.RequestID.String()).
				Msg("Failed to publish event")
		}
	}
}
