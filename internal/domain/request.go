package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestAccepted   RequestStatus = "accepted"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestRejected   RequestStatus = "rejected"
	RequestCancelled  RequestStatus = "cancelled"
)

// Pseudo-target used when reporting escalation attempts on terminal requests.
const requestEscalated = "escalated"

var requestEdges = map[RequestStatus][]RequestStatus{
	RequestPending:    {RequestAccepted, RequestRejected, RequestCancelled},
	RequestAccepted:   {RequestInProgress, RequestRejected, RequestCancelled, RequestPending},
	RequestInProgress: {RequestCompleted, RequestCancelled},
}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestAccepted, RequestInProgress, RequestCompleted, RequestRejected, RequestCancelled:
		return true
	}
	return false
}

func (s RequestStatus) IsTerminal() bool {
	return s == RequestCompleted || s == RequestRejected || s == RequestCancelled
}

func (s RequestStatus) CanTransitionTo(target RequestStatus) bool {
	for _, next := range requestEdges[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ServiceRequest is the aggregation root of one client/provider engagement.
type ServiceRequest struct {
	ID                 uuid.UUID     `json:"id"`
	ClientID           uuid.UUID     `json:"clientId"`
	CaID               *uuid.UUID    `json:"caId"`
	Status             RequestStatus `json:"status"`
	ServiceID          uuid.UUID     `json:"serviceId"`
	Purpose            string        `json:"purpose"`
	Notes              string        `json:"notes,omitempty"`
	CancellationReason string        `json:"cancellationReason,omitempty"`
	CancelledBy        *Actor        `json:"cancelledBy,omitempty"`
	RejectionReason    string        `json:"rejectionReason,omitempty"`
	CancellationFeeDue bool          `json:"cancellationFeeDue"`
	EscalatedAt        *time.Time    `json:"escalatedAt,omitempty"`
	CompletedAt        *time.Time    `json:"completedAt,omitempty"`
	Metadata           Metadata      `json:"metadata"`
	Version            int           `json:"version"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

func (r ServiceRequest) IsEscalated() bool { return r.EscalatedAt != nil }

// IsAssignedTo reports whether providerID is the request's current provider.
func (r ServiceRequest) IsAssignedTo(providerID uuid.UUID) bool {
	return r.CaID != nil && *r.CaID == providerID
}

// CheckAssignment verifies that pending requests have no provider and that
// accepted, in-progress and completed requests always have one.
func (r ServiceRequest) CheckAssignment() error {
	switch r.Status {
	case RequestPending:
		if r.CaID != nil {
			return &ValidationError{Field: "caId", Reason: "pending request must not have an assigned provider"}
		}
	case RequestAccepted, RequestInProgress, RequestCompleted:
		if r.CaID == nil {
			return &ValidationError{Field: "caId", Reason: string(r.Status) + " request must have an assigned provider"}
		}
	}
	return nil
}

// RequestGuard is the expected stored state for a conditional write.
type RequestGuard struct {
	Status  RequestStatus
	Version int
}

func (r ServiceRequest) Guard() RequestGuard {
	return RequestGuard{Status: r.Status, Version: r.Version}
}

type RequestRepository interface {
	Create(ctx context.Context, req *ServiceRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ServiceRequest, error)
	// UpdateIf writes next only if the stored row still matches guard. On success
	// next.Version is advanced. It returns false when zero rows were affected.
	UpdateIf(ctx context.Context, next *ServiceRequest, guard RequestGuard) (bool, error)
}

// RejectRouting is the caller's policy for where a rejected request goes.
type RejectRouting string

const (
	RejectReturnToPending RejectRouting = "return_to_pending"
	RejectTerminal        RejectRouting = "terminal"
)

func (r RejectRouting) Valid() bool {
	return r == RejectReturnToPending || r == RejectTerminal
}

// CancellationPolicy decides whether a cancelled request owes a cancellation fee.
// It is only consulted when the request already has a completed payment.
type CancellationPolicy interface {
	FeeDue(req ServiceRequest, now time.Time) bool
}

type CancellationPolicyFunc func(req ServiceRequest, now time.Time) bool

func (f CancellationPolicyFunc) FeeDue(req ServiceRequest, now time.Time) bool { return f(req, now) }

// NoCancellationFee never charges.
var NoCancellationFee = CancellationPolicyFunc(func(ServiceRequest, time.Time) bool { return false })

// FeeOnceAccepted charges when the request was already accepted or started.
var FeeOnceAccepted = CancellationPolicyFunc(func(req ServiceRequest, _ time.Time) bool {
	return req.Status == RequestAccepted || req.Status == RequestInProgress
})

// FeeOnceStarted charges only when work had started.
var FeeOnceStarted = CancellationPolicyFunc(func(req ServiceRequest, _ time.Time) bool {
	return req.Status == RequestInProgress
})

// CancellationPolicyByName resolves the policies callers can select over the API.
func CancellationPolicyByName(name string) (CancellationPolicy, bool) {
	switch name {
	case "", "none":
		return NoCancellationFee, true
	case "after_acceptance":
		return FeeOnceAccepted, true
	case "after_start":
		return FeeOnceStarted, true
	}
	return nil, false
}
