package usecase

import (
	"context"
	"fmt"
	"time"

	"caconnect-backend/internal/domain"
	"caconnect-backend/pkg/logger"

	"github.com/google/uuid"
)

// LifecycleUsecase drives service requests through their state machine.
type LifecycleUsecase struct {
	requests   domain.RequestRepository
	catalog    domain.CatalogRepository
	settlement *SettlementUsecase
	publisher  domain.EventPublisher
	clock      domain.Clock
}

func NewLifecycleUsecase(requests domain.RequestRepository, catalog domain.CatalogRepository, settlement *SettlementUsecase, publisher domain.EventPublisher, clock domain.Clock) *LifecycleUsecase {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &LifecycleUsecase{
		requests:   requests,
		catalog:    catalog,
		settlement: settlement,
		publisher:  publisher,
		clock:      clock,
	}
}

type SubmitInput struct {
	ClientID  uuid.UUID
	ServiceID uuid.UUID
	Purpose   string
	Notes     string
	Metadata  domain.Metadata
}

// Submit opens a pending request against an active catalog offering.
func (u *LifecycleUsecase) Submit(ctx context.Context, in SubmitInput) (*domain.ServiceRequest, error) {
	if in.ServiceID == uuid.Nil {
		return nil, &domain.ValidationError{Field: "serviceId", Reason: "is required"}
	}
	svc, err := u.catalog.GetService(ctx, in.ServiceID)
	if err != nil {
		if domain.IsExpected(err) {
			return nil, &domain.ValidationError{Field: "serviceId", Reason: "unknown catalog offering"}
		}
		return nil, fmt.Errorf("load catalog offering: %w", err)
	}
	if !svc.IsActive {
		return nil, &domain.ValidationError{Field: "serviceId", Reason: "catalog offering is not available"}
	}

	t, err := domain.SubmitRequest(domain.NewRequest{
		ClientID:  in.ClientID,
		ServiceID: in.ServiceID,
		Purpose:   in.Purpose,
		Notes:     in.Notes,
		Metadata:  in.Metadata,
	}, uuid.New(), u.clock())
	if err != nil {
		return nil, err
	}
	req := t.Request
	if err := u.requests.Create(ctx, &req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	logger.WithContext(ctx).Info().
		Str("request_id", req.ID.String()).
		Str("client_id", req.ClientID.String()).
		Str("service", svc.Name).
		Msg("Request submitted")
	emit(ctx, u.publisher, t.Events)
	return &req, nil
}

// Accept assigns the provider. Exactly one concurrent accept wins; everyone
// else gets ConflictError. A write lost to an unrelated update (an escalation,
// say) is retried while the request is still pending.
func (u *LifecycleUsecase) Accept(ctx context.Context, requestID, providerID uuid.UUID) (*domain.ServiceRequest, error) {
	_, next, err := u.mutate(ctx, requestID, func(cur domain.ServiceRequest, now time.Time) (domain.Transition, error) {
		if cur.CaID != nil && (cur.Status == domain.RequestAccepted || cur.Status == domain.RequestInProgress) {
			return domain.Transition{}, &domain.ConflictError{Entity: "service request", ID: requestID, Reason: "already accepted by another provider"}
		}
		return domain.AcceptRequest(cur, providerID, now)
	})
	return next, err
}

// mutate re-reads and re-evaluates fn when a concurrent writer wins the guard.
func (u *LifecycleUsecase) mutate(ctx context.Context, id uuid.UUID, fn func(cur domain.ServiceRequest, now time.Time) (domain.Transition, error)) (*domain.ServiceRequest, *domain.ServiceRequest, error) {
	for attempt := 1; attempt <= maxStaleRetries; attempt++ {
		cur, err := u.requests.GetByID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		t, err := fn(*cur, u.clock())
		if err != nil {
			return nil, nil, err
		}
		if !t.Changed() {
			return cur, cur, nil
		}
		next := t.Request
		ok, err := u.requests.UpdateIf(ctx, &next, cur.Guard())
		if err != nil {
			return nil, nil, fmt.Errorf("update request: %w", err)
		}
		if ok {
			if cur.Status != next.Status {
				logger.Transition(ctx, "service request", id.String(), string(cur.Status), string(next.Status))
			}
			emit(ctx, u.publisher, t.Events)
			return cur, &next, nil
		}
		logger.LostRace(ctx, "service request", id.String(), attempt)
	}
	return nil, nil, &domain.ConflictError{Entity: "service request", ID: id, Reason: "concurrent updates, try again"}
}

// Start moves an accepted request into progress.
func (u *LifecycleUsecase) Start(ctx context.Context, requestID, providerID uuid.UUID) (*domain.ServiceRequest, error) {
	_, next, err := u.mutate(ctx, requestID, func(cur domain.ServiceRequest, now time.Time) (domain.Transition, error) {
		return domain.StartRequest(cur, providerID, now)
	})
	return next, err
}

// Reject applies the caller's routing: back to pending or terminal rejection.
func (u *LifecycleUsecase) Reject(ctx context.Context, requestID, providerID uuid.UUID, reason string, routing domain.RejectRouting) (*domain.ServiceRequest, error) {
	_, next, err := u.mutate(ctx, requestID, func(cur domain.ServiceRequest, now time.Time) (domain.Transition, error) {
		return domain.RejectRequest(cur, providerID, reason, routing, now)
	})
	return next, err
}

// Cancel cancels a non-terminal request and voids its uncollected charges. A
// cancellation fee is flagged only when a charge was already collected and the
// policy says the boundary has passed.
func (u *LifecycleUsecase) Cancel(ctx context.Context, requestID uuid.UUID, actor domain.Actor, reason string, policy domain.CancellationPolicy) (*domain.ServiceRequest, error) {
	if policy == nil {
		policy = domain.NoCancellationFee
	}
	_, next, err := u.mutate(ctx, requestID, func(cur domain.ServiceRequest, now time.Time) (domain.Transition, error) {
		// Read on every attempt so a charge collected meanwhile is seen.
		collected, err := u.settlement.hasCompletedCharge(ctx, requestID)
		if err != nil {
			return domain.Transition{}, err
		}
		feeDue := collected && policy.FeeDue(cur, now)
		return domain.CancelRequest(cur, actor, reason, feeDue, now)
	})
	if err != nil {
		return nil, err
	}
	if _, err := u.settlement.CancelPending(ctx, requestID, actor.Kind); err != nil {
		logger.WithContext(ctx).Error().Err(err).Str("request_id", requestID.String()).Msg("Failed to cancel pending payments")
	}
	return next, nil
}

// Escalate flags the request for platform attention. Repeats are no-ops.
func (u *LifecycleUsecase) Escalate(ctx context.Context, requestID uuid.UUID, actor domain.Actor) (*domain.ServiceRequest, error) {
	_, next, err := u.mutate(ctx, requestID, func(cur domain.ServiceRequest, now time.Time) (domain.Transition, error) {
		return domain.EscalateRequest(cur, actor, now)
	})
	return next, err
}

// Complete closes an in-progress request and schedules escrow release for its
// collected escrowed service fees.
func (u *LifecycleUsecase) Complete(ctx context.Context, requestID uuid.UUID, actor domain.Actor) (*domain.ServiceRequest, error) {
	_, next, err := u.mutate(ctx, requestID, func(cur domain.ServiceRequest, now time.Time) (domain.Transition, error) {
		return domain.CompleteRequest(cur, actor, now)
	})
	if err != nil {
		return nil, err
	}
	if err := u.settlement.scheduleEscrowForRequest(ctx, requestID, *next.CompletedAt); err != nil {
		logger.WithContext(ctx).Error().Err(err).Str("request_id", requestID.String()).Msg("Failed to schedule escrow release")
	}
	return next, nil
}

func (u *LifecycleUsecase) Get(ctx context.Context, requestID uuid.UUID) (*domain.ServiceRequest, error) {
	return u.requests.GetByID(ctx, requestID)
}
