package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transition is the result of a pure state change: the next request state and
// the events to emit once it has been persisted.
type Transition struct {
	Request ServiceRequest
	Events  []Event
}

// Changed is false for idempotent no-ops.
func (t Transition) Changed() bool { return len(t.Events) > 0 }

type NewRequest struct {
	ClientID  uuid.UUID
	ServiceID uuid.UUID
	Purpose   string
	Notes     string
	Metadata  Metadata
}

func invalidRequestTransition(from RequestStatus, to string) *InvalidTransitionError {
	return &InvalidTransitionError{Entity: "service request", From: string(from), To: to}
}

// SubmitRequest builds a pending request. Catalog validation happens in the caller.
func SubmitRequest(in NewRequest, id uuid.UUID, now time.Time) (Transition, error) {
	if in.ClientID == uuid.Nil {
		return Transition{}, &ValidationError{Field: "clientId", Reason: "is required"}
	}
	if in.ServiceID == uuid.Nil {
		return Transition{}, &ValidationError{Field: "serviceId", Reason: "is required"}
	}
	meta := in.Metadata
	if meta.Values == nil {
		meta = NewMetadata()
	}
	req := ServiceRequest{
		ID:        id,
		ClientID:  in.ClientID,
		Status:    RequestPending,
		ServiceID: in.ServiceID,
		Purpose:   strings.TrimSpace(in.Purpose),
		Notes:     strings.TrimSpace(in.Notes),
		Metadata:  meta,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ev := NewEvent(EventRequestSubmitted, id, ActorClient, now, map[string]any{
		"clientId":  in.ClientID.String(),
		"serviceId": in.ServiceID.String(),
	})
	return Transition{Request: req, Events: []Event{ev}}, nil
}

// AcceptRequest assigns providerID to a pending request.
func AcceptRequest(cur ServiceRequest, providerID uuid.UUID, now time.Time) (Transition, error) {
	if providerID == uuid.Nil {
		return Transition{}, &ValidationError{Field: "providerId", Reason: "is required"}
	}
	if !cur.Status.CanTransitionTo(RequestAccepted) {
		return Transition{}, invalidRequestTransition(cur.Status, string(RequestAccepted))
	}
	next := cur
	ca := providerID
	next.CaID = &ca
	next.Status = RequestAccepted
	next.UpdatedAt = now
	ev := NewEvent(EventRequestAccepted, cur.ID, ActorProvider, now, map[string]any{
		"caId":     providerID.String(),
		"clientId": cur.ClientID.String(),
	})
	return Transition{Request: next, Events: []Event{ev}}, nil
}

// StartRequest moves an accepted request into progress. Only the assigned provider may start it.
func StartRequest(cur ServiceRequest, providerID uuid.UUID, now time.Time) (Transition, error) {
	if !cur.Status.CanTransitionTo(RequestInProgress) {
		return Transition{}, invalidRequestTransition(cur.Status, string(RequestInProgress))
	}
	if !cur.IsAssignedTo(providerID) {
		return Transition{}, &ValidationError{Field: "providerId", Reason: "provider is not assigned to this request"}
	}
	next := cur
	next.Status = RequestInProgress
	next.UpdatedAt = now
	ev := NewEvent(EventRequestStarted, cur.ID, ActorProvider, now, map[string]any{"caId": providerID.String()})
	return Transition{Request: next, Events: []Event{ev}}, nil
}

// RejectRequest applies the caller's routing. Pending requests may be rejected by any
// prospective provider; accepted ones only by the assigned provider.
func RejectRequest(cur ServiceRequest, providerID uuid.UUID, reason string, routing RejectRouting, now time.Time) (Transition, error) {
	if !routing.Valid() {
		return Transition{}, &ValidationError{Field: "routing", Reason: "must be return_to_pending or terminal"}
	}
	if providerID == uuid.Nil {
		return Transition{}, &ValidationError{Field: "providerId", Reason: "is required"}
	}
	if cur.Status != RequestPending && cur.Status != RequestAccepted {
		target := string(RequestRejected)
		if routing == RejectReturnToPending {
			target = string(RequestPending)
		}
		return Transition{}, invalidRequestTransition(cur.Status, target)
	}
	if cur.Status == RequestAccepted && !cur.IsAssignedTo(providerID) {
		return Transition{}, &ValidationError{Field: "providerId", Reason: "provider is not assigned to this request"}
	}

	next := cur
	next.RejectionReason = strings.TrimSpace(reason)
	next.UpdatedAt = now
	payload := map[string]any{"caId": providerID.String(), "reason": next.RejectionReason, "routing": string(routing)}

	evType := EventRequestRejected
	if routing == RejectReturnToPending {
		next.Status = RequestPending
		next.CaID = nil
		evType = EventRequestReturned
	} else {
		next.Status = RequestRejected
		if cur.Status == RequestPending {
			next.CaID = nil
		}
	}
	return Transition{Request: next, Events: []Event{NewEvent(evType, cur.ID, ActorProvider, now, payload)}}, nil
}

// Authorize checks that actor is a party to the request.
func Authorize(cur ServiceRequest, actor Actor) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	switch actor.Kind {
	case ActorClient:
		if actor.ID != cur.ClientID {
			return &ValidationError{Field: "actor", Reason: "client does not own this request"}
		}
	case ActorProvider:
		if !cur.IsAssignedTo(actor.ID) {
			return &ValidationError{Field: "actor", Reason: "provider is not assigned to this request"}
		}
	case ActorSystem:
	}
	return nil
}

// CancelRequest cancels a non-terminal request. feeDue is decided by the caller's policy.
func CancelRequest(cur ServiceRequest, actor Actor, reason string, feeDue bool, now time.Time) (Transition, error) {
	if !cur.Status.CanTransitionTo(RequestCancelled) {
		return Transition{}, invalidRequestTransition(cur.Status, string(RequestCancelled))
	}
	if err := Authorize(cur, actor); err != nil {
		return Transition{}, err
	}
	next := cur
	by := actor
	next.Status = RequestCancelled
	next.CancellationReason = strings.TrimSpace(reason)
	next.CancelledBy = &by
	next.CancellationFeeDue = feeDue
	next.UpdatedAt = now
	ev := NewEvent(EventRequestCancelled, cur.ID, actor.Kind, now, map[string]any{
		"reason":             next.CancellationReason,
		"previousStatus":     string(cur.Status),
		"cancellationFeeDue": feeDue,
	})
	return Transition{Request: next, Events: []Event{ev}}, nil
}

// EscalateRequest stamps EscalatedAt once. Re-escalation returns an unchanged transition.
func EscalateRequest(cur ServiceRequest, actor Actor, now time.Time) (Transition, error) {
	if cur.Status.IsTerminal() {
		return Transition{}, invalidRequestTransition(cur.Status, requestEscalated)
	}
	if err := Authorize(cur, actor); err != nil {
		return Transition{}, err
	}
	if cur.IsEscalated() {
		return Transition{Request: cur}, nil
	}
	next := cur
	at := now
	next.EscalatedAt = &at
	next.UpdatedAt = now
	ev := NewEvent(EventRequestEscalated, cur.ID, actor.Kind, now, map[string]any{"status": string(cur.Status)})
	return Transition{Request: next, Events: []Event{ev}}, nil
}

// CompleteRequest closes an in-progress request.
func CompleteRequest(cur ServiceRequest, actor Actor, now time.Time) (Transition, error) {
	if !cur.Status.CanTransitionTo(RequestCompleted) {
		return Transition{}, invalidRequestTransition(cur.Status, string(RequestCompleted))
	}
	if err := Authorize(cur, actor); err != nil {
		return Transition{}, err
	}
	next := cur
	at := now
	next.Status = RequestCompleted
	next.CompletedAt = &at
	next.UpdatedAt = now
	ev := NewEvent(EventRequestCompleted, cur.ID, actor.Kind, now, map[string]any{"caId": cur.CaID.String()})
	return Transition{Request: next, Events: []Event{ev}}, nil
}
