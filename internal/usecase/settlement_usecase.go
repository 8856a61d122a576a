package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"caconnect-backend/internal/domain"
	"caconnect-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SettlementConfig struct {
	DefaultCommissionPercentage decimal.Decimal
	DefaultCurrency             string
	EscrowHoldPeriod            time.Duration
}

// SettlementUsecase owns payment state: charges, commission, gateway outcomes,
// retries, refunds and escrow release scheduling.
type SettlementUsecase struct {
	payments  domain.PaymentRepository
	requests  domain.RequestRepository
	providers domain.ProviderRepository
	catalog   domain.CatalogRepository
	coupons   *CouponUsecase
	txManager domain.TransactionManager
	publisher domain.EventPublisher
	clock     domain.Clock
	cfg       SettlementConfig
}

func NewSettlementUsecase(
	payments domain.PaymentRepository,
	requests domain.RequestRepository,
	providers domain.ProviderRepository,
	catalog domain.CatalogRepository,
	coupons *CouponUsecase,
	txManager domain.TransactionManager,
	publisher domain.EventPublisher,
	clock domain.Clock,
	cfg SettlementConfig,
) *SettlementUsecase {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &SettlementUsecase{
		payments:  payments,
		requests:  requests,
		providers: providers,
		catalog:   catalog,
		coupons:   coupons,
		txManager: txManager,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
	}
}

type ChargeInput struct {
	RequestID  uuid.UUID
	Kind       domain.PaymentKind
	BaseAmount decimal.Decimal
	Currency   string
	CouponCode string
	IsEscrow   bool
	Actor      domain.Actor
}

// InitiateCharge creates a pending payment for a request. A coupon is reserved in
// the same transaction as the payment insert.
func (u *SettlementUsecase) InitiateCharge(ctx context.Context, in ChargeInput) (*domain.Payment, error) {
	req, err := u.requests.GetByID(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if err := domain.Authorize(*req, in.Actor); err != nil {
		return nil, err
	}
	if err := chargeAllowed(*req, in.Kind); err != nil {
		return nil, err
	}
	currency := in.Currency
	if strings.TrimSpace(currency) == "" {
		currency = u.cfg.DefaultCurrency
	}

	paymentID := uuid.New()
	charge := domain.NewCharge{
		RequestID:  req.ID,
		PayerID:    req.ClientID,
		PayeeID:    req.CaID,
		Kind:       in.Kind,
		BaseAmount: in.BaseAmount,
		Currency:   currency,
		IsEscrow:   in.IsEscrow,
		Actor:      in.Actor.Kind,
	}
	// Reject a malformed charge before any coupon usage is recorded.
	if _, err := domain.NewPayment(charge, paymentID, u.clock()); err != nil {
		return nil, err
	}

	var (
		created domain.Payment
		events  []domain.Event
	)
	err = u.txManager.Do(ctx, func(ctx context.Context) error {
		charge := charge
		if code := strings.TrimSpace(in.CouponCode); code != "" {
			svc, err := u.catalog.GetService(ctx, req.ServiceID)
			if err != nil {
				return err
			}
			res, couponEvents, err := u.coupons.reserve(ctx, ReserveInput{
				Code:        code,
				UserID:      req.ClientID,
				RequestID:   req.ID,
				PaymentID:   &paymentID,
				OrderAmount: in.BaseAmount,
				Category:    svc.Category,
			})
			if err != nil {
				return err
			}
			couponID := res.Coupon.ID
			charge.CouponID = &couponID
			charge.Discount = res.Discount
			events = append(events, couponEvents...)
		}

		t, err := domain.NewPayment(charge, paymentID, u.clock())
		if err != nil {
			return err
		}
		created = t.Payment
		if err := u.payments.Create(ctx, &created); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		events = append(events, t.Events...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info().
		Str("payment_id", created.ID.String()).
		Str("request_id", req.ID.String()).
		Str("kind", string(created.Kind)).
		Str("amount", created.Amount.StringFixed(2)).
		Msg("Payment initiated")
	emit(ctx, u.publisher, events)
	return &created, nil
}

func chargeAllowed(req domain.ServiceRequest, kind domain.PaymentKind) error {
	switch kind {
	case domain.PaymentBookingFee:
		if req.Status.IsTerminal() {
			return &domain.ValidationError{Field: "kind", Reason: "booking fee requires an open request"}
		}
	case domain.PaymentServiceFee:
		if req.CaID == nil || req.Status == domain.RequestCancelled || req.Status == domain.RequestRejected {
			return &domain.ValidationError{Field: "kind", Reason: "service fee requires an assigned provider"}
		}
	case domain.PaymentCancellationFee:
		if req.Status != domain.RequestCancelled || !req.CancellationFeeDue {
			return &domain.ValidationError{Field: "kind", Reason: "no cancellation fee is due for this request"}
		}
	case domain.PaymentRefund:
		return &domain.ValidationError{Field: "kind", Reason: "refunds are created through refund"}
	default:
		return &domain.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown payment kind %q", kind)}
	}
	return nil
}

// commissionRate is the payee's current rate, or the platform default.
func (u *SettlementUsecase) commissionRate(ctx context.Context, p domain.Payment) (decimal.Decimal, error) {
	if p.PayeeID == nil {
		return u.cfg.DefaultCommissionPercentage, nil
	}
	rate, ok, err := u.providers.CommissionRate(ctx, *p.PayeeID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load commission rate: %w", err)
	}
	if !ok {
		return u.cfg.DefaultCommissionPercentage, nil
	}
	return rate, nil
}

// mutate re-reads and re-evaluates fn when a concurrent writer wins the guard.
func (u *SettlementUsecase) mutate(ctx context.Context, id uuid.UUID, fn func(p domain.Payment, now time.Time) (domain.PaymentTransition, error)) (*domain.Payment, error) {
	for attempt := 1; attempt <= maxStaleRetries; attempt++ {
		cur, err := u.payments.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		t, err := fn(*cur, u.clock())
		if err != nil {
			return nil, err
		}
		if !t.Changed() {
			return cur, nil
		}
		next := t.Payment
		ok, err := u.payments.UpdateIf(ctx, &next, cur.Guard())
		if err != nil {
			return nil, fmt.Errorf("update payment: %w", err)
		}
		if ok {
			if cur.Status != next.Status {
				logger.Transition(ctx, "payment", id.String(), string(cur.Status), string(next.Status))
			}
			emit(ctx, u.publisher, t.Events)
			return &next, nil
		}
		logger.LostRace(ctx, "payment", id.String(), attempt)
	}
	return nil, &domain.ConflictError{Entity: "payment", ID: id, Reason: "concurrent updates, try again"}
}

// ApplyCommission finalizes commission on a pending service fee.
func (u *SettlementUsecase) ApplyCommission(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	return u.mutate(ctx, paymentID, func(p domain.Payment, now time.Time) (domain.PaymentTransition, error) {
		rate, err := u.commissionRate(ctx, p)
		if err != nil {
			return domain.PaymentTransition{}, err
		}
		return domain.ApplyCommission(p, rate, now)
	})
}

// MarkCompleted records a successful gateway charge. Service fees get their
// commission finalized in the same write.
func (u *SettlementUsecase) MarkCompleted(ctx context.Context, paymentID uuid.UUID, gatewayRef string) (*domain.Payment, error) {
	return u.mutate(ctx, paymentID, func(p domain.Payment, now time.Time) (domain.PaymentTransition, error) {
		var events []domain.Event
		if p.Kind == domain.PaymentServiceFee && p.Status == domain.PaymentPending && !p.HasFinalCommission() {
			rate, err := u.commissionRate(ctx, p)
			if err != nil {
				return domain.PaymentTransition{}, err
			}
			ct, err := domain.ApplyCommission(p, rate, now)
			if err != nil {
				return domain.PaymentTransition{}, err
			}
			p, events = ct.Payment, ct.Events
		}
		t, err := domain.CompletePayment(p, gatewayRef, now)
		if err != nil {
			return domain.PaymentTransition{}, err
		}
		t.Events = append(events, t.Events...)
		return t, nil
	})
}

func (u *SettlementUsecase) MarkFailed(ctx context.Context, paymentID uuid.UUID, reason string) (*domain.Payment, error) {
	return u.mutate(ctx, paymentID, func(p domain.Payment, now time.Time) (domain.PaymentTransition, error) {
		return domain.FailPayment(p, reason, now)
	})
}

// Retry puts a failed charge back to pending. The fourth retry fails with RetryExhaustedError.
func (u *SettlementUsecase) Retry(ctx context.Context, paymentID uuid.UUID, actor domain.ActorKind) (*domain.Payment, error) {
	return u.mutate(ctx, paymentID, func(p domain.Payment, now time.Time) (domain.PaymentTransition, error) {
		return domain.RetryPayment(p, actor, now)
	})
}

// Refund marks a completed payment refunded and records the pending refund entry.
// The gateway worker executes the refund from the emitted event.
func (u *SettlementUsecase) Refund(ctx context.Context, paymentID uuid.UUID, reason string, actor domain.ActorKind) (*domain.Payment, *domain.Payment, error) {
	for attempt := 1; attempt <= maxStaleRetries; attempt++ {
		cur, err := u.payments.GetByID(ctx, paymentID)
		if err != nil {
			return nil, nil, err
		}
		existing, err := u.payments.FindRefundOf(ctx, paymentID)
		if err != nil {
			return nil, nil, fmt.Errorf("find refund: %w", err)
		}
		if existing != nil {
			return nil, nil, &domain.ConflictError{Entity: "payment", ID: paymentID, Reason: "already refunded by " + existing.ID.String()}
		}
		t, refund, err := domain.RefundPayment(*cur, uuid.New(), reason, actor, u.clock())
		if err != nil {
			return nil, nil, err
		}
		original := t.Payment
		ok, err := u.payments.CreateRefund(ctx, &original, cur.Guard(), &refund)
		if err != nil {
			return nil, nil, fmt.Errorf("create refund: %w", err)
		}
		if ok {
			logger.Transition(ctx, "payment", paymentID.String(), string(cur.Status), string(original.Status))
			emit(ctx, u.publisher, t.Events)
			return &original, &refund, nil
		}
		logger.LostRace(ctx, "payment", paymentID.String(), attempt)
	}
	return nil, nil, &domain.ConflictError{Entity: "payment", ID: paymentID, Reason: "concurrent updates, try again"}
}

func (u *SettlementUsecase) ScheduleEscrowRelease(ctx context.Context, paymentID uuid.UUID, releaseDate time.Time) (*domain.Payment, error) {
	return u.mutate(ctx, paymentID, func(p domain.Payment, now time.Time) (domain.PaymentTransition, error) {
		return domain.ScheduleEscrow(p, releaseDate, now)
	})
}

// scheduleEscrowForRequest schedules release of every completed escrowed service
// fee of a request that has no release date yet.
func (u *SettlementUsecase) scheduleEscrowForRequest(ctx context.Context, requestID uuid.UUID, completedAt time.Time) error {
	payments, err := u.payments.ListByRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	release := completedAt.Add(u.cfg.EscrowHoldPeriod)
	for _, p := range payments {
		if !p.IsEscrow || p.Kind != domain.PaymentServiceFee || p.Status != domain.PaymentCompleted || p.EscrowReleaseDate != nil {
			continue
		}
		if _, err := u.ScheduleEscrowRelease(ctx, p.ID, release); err != nil {
			return err
		}
	}
	return nil
}

// CancelPending voids every uncollected charge of a request.
func (u *SettlementUsecase) CancelPending(ctx context.Context, requestID uuid.UUID, actor domain.ActorKind) ([]domain.Payment, error) {
	payments, err := u.payments.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	var cancelled []domain.Payment
	for _, p := range payments {
		if p.Kind == domain.PaymentRefund || (p.Status != domain.PaymentPending && p.Status != domain.PaymentFailed) {
			continue
		}
		next, err := u.mutate(ctx, p.ID, func(p domain.Payment, now time.Time) (domain.PaymentTransition, error) {
			if p.Status != domain.PaymentPending && p.Status != domain.PaymentFailed {
				return domain.PaymentTransition{Payment: p}, nil
			}
			return domain.CancelPayment(p, actor, now)
		})
		if err != nil {
			return cancelled, err
		}
		cancelled = append(cancelled, *next)
	}
	return cancelled, nil
}

// hasCompletedCharge reports whether any non-refund charge of the request was collected.
func (u *SettlementUsecase) hasCompletedCharge(ctx context.Context, requestID uuid.UUID) (bool, error) {
	payments, err := u.payments.ListByRequest(ctx, requestID)
	if err != nil {
		return false, fmt.Errorf("list payments: %w", err)
	}
	for _, p := range payments {
		if p.Kind != domain.PaymentRefund && p.Status == domain.PaymentCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (u *SettlementUsecase) ListForRequest(ctx context.Context, requestID uuid.UUID) ([]domain.Payment, error) {
	if _, err := u.requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return u.payments.ListByRequest(ctx, requestID)
}

func (u *SettlementUsecase) Get(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	return u.payments.GetByID(ctx, paymentID)
}
