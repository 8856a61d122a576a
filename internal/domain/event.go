package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventRequestSubmitted  EventType = "request.submitted"
	EventRequestAccepted   EventType = "request.accepted"
	EventRequestStarted    EventType = "request.started"
	EventRequestRejected   EventType = "request.rejected"
	EventRequestReturned   EventType = "request.returned_to_pending"
	EventRequestCancelled  EventType = "request.cancelled"
	EventRequestEscalated  EventType = "request.escalated"
	EventRequestCompleted  EventType = "request.completed"
	EventPaymentInitiated  EventType = "payment.initiated"
	EventPaymentCommission EventType = "payment.commission_applied"
	EventPaymentCompleted  EventType = "payment.completed"
	EventPaymentFailed     EventType = "payment.failed"
	EventPaymentRetried    EventType = "payment.retried"
	EventPaymentRefunded   EventType = "payment.refunded"
	EventPaymentCancelled  EventType = "payment.cancelled"
	EventRefundCreated     EventType = "payment.refund_created"
	EventEscrowScheduled   EventType = "payment.escrow_release_scheduled"
	EventCouponRedeemed    EventType = "coupon.redeemed"
	EventReviewSubmitted   EventType = "review.submitted"
)

// Event is the structured notification emitted after every committed state change.
type Event struct {
	Type      EventType      `json:"type"`
	RequestID uuid.UUID      `json:"requestId"`
	ActorType ActorKind      `json:"actorType"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// IsGatewayEvent reports whether the payment gateway integration must act on e.
func (e Event) IsGatewayEvent() bool {
	return e.Type == EventRefundCreated || e.Type == EventEscrowScheduled
}

func NewEvent(t EventType, requestID uuid.UUID, actor ActorKind, at time.Time, payload map[string]any) Event {
	return Event{Type: t, RequestID: requestID, ActorType: actor, Timestamp: at, Payload: payload}
}

// EventPublisher delivers events to the external notification and gateway dispatchers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
