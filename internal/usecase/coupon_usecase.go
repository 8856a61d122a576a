package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caconnect-backend/internal/domain"
	"caconnect-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CouponUsecase is the coupon ledger: eligibility, discount math, atomic
// redemption and the admin coupon lifecycle.
type CouponUsecase struct {
	coupons   domain.CouponRepository
	publisher domain.EventPublisher
	clock     domain.Clock
}

func NewCouponUsecase(coupons domain.CouponRepository, publisher domain.EventPublisher, clock domain.Clock) *CouponUsecase {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &CouponUsecase{coupons: coupons, publisher: publisher, clock: clock}
}

// Validate checks a coupon for a user and order without reserving it.
func (uc *CouponUsecase) Validate(ctx context.Context, coupon domain.Coupon, userID uuid.UUID, orderAmount decimal.Decimal, category string) (domain.CouponEligibility, error) {
	used, err := uc.coupons.CountUserUsages(ctx, coupon.ID, userID)
	if err != nil {
		return domain.CouponEligibility{}, fmt.Errorf("count coupon usages: %w", err)
	}
	return domain.CheckCouponEligibility(coupon, uc.clock(), orderAmount, category, used), nil
}

// ValidateCode is Validate for a user-supplied code.
func (uc *CouponUsecase) ValidateCode(ctx context.Context, code string, userID uuid.UUID, orderAmount decimal.Decimal, category string) (*domain.Coupon, domain.CouponEligibility, decimal.Decimal, error) {
	coupon, err := uc.coupons.GetByCode(ctx, domain.NormalizeCouponCode(code))
	if err != nil {
		return nil, domain.CouponEligibility{}, decimal.Zero, err
	}
	elig, err := uc.Validate(ctx, *coupon, userID, orderAmount, category)
	if err != nil {
		return nil, domain.CouponEligibility{}, decimal.Zero, err
	}
	discount := decimal.Zero
	if elig.Eligible {
		discount = uc.ComputeDiscount(*coupon, orderAmount)
	}
	return coupon, elig, discount, nil
}

func (uc *CouponUsecase) ComputeDiscount(coupon domain.Coupon, orderAmount decimal.Decimal) decimal.Decimal {
	return domain.ComputeDiscount(coupon, orderAmount)
}

type ReserveInput struct {
	Code        string
	UserID      uuid.UUID
	RequestID   uuid.UUID
	PaymentID   *uuid.UUID
	OrderAmount decimal.Decimal
	Category    string
}

type Reservation struct {
	Coupon   domain.Coupon
	Usage    domain.CouponUsage
	Discount decimal.Decimal
}

// ValidateAndReserve validates, computes the discount and redeems atomically.
// When the global cap is reached concurrently the loser gets CouponExhaustedError.
func (uc *CouponUsecase) ValidateAndReserve(ctx context.Context, in ReserveInput) (*Reservation, error) {
	res, events, err := uc.reserve(ctx, in)
	if err != nil {
		return nil, err
	}
	emit(ctx, uc.publisher, events)
	return res, nil
}

// reserve leaves emission to the caller so a surrounding transaction can commit first.
func (uc *CouponUsecase) reserve(ctx context.Context, in ReserveInput) (*Reservation, []domain.Event, error) {
	if in.UserID == uuid.Nil {
		return nil, nil, &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	code := domain.NormalizeCouponCode(in.Code)
	if code == "" {
		return nil, nil, &domain.ValidationError{Field: "couponCode", Reason: "is required"}
	}
	coupon, err := uc.coupons.GetByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	elig, err := uc.Validate(ctx, *coupon, in.UserID, in.OrderAmount, in.Category)
	if err != nil {
		return nil, nil, err
	}
	if !elig.Eligible {
		return nil, nil, coupon.IneligibleError(elig.Reason)
	}

	now := uc.clock()
	discount := uc.ComputeDiscount(*coupon, in.OrderAmount)
	usage := domain.CouponUsage{
		ID:               uuid.New(),
		CouponID:         coupon.ID,
		UserID:           in.UserID,
		ServiceRequestID: in.RequestID,
		PaymentID:        in.PaymentID,
		OriginalAmount:   in.OrderAmount,
		DiscountAmount:   discount,
		FinalAmount:      in.OrderAmount.Sub(discount),
		UsedAt:           now,
	}
	updated, err := uc.coupons.Redeem(ctx, code, domain.CouponRedemption{Usage: usage, MaxUsagePerUser: coupon.MaxUsagePerUser})
	if err != nil {
		if errors.Is(err, domain.ErrCouponExhausted) {
			logger.WithContext(ctx).Warn().Str("coupon", code).Msg("Coupon exhausted during redemption")
		}
		return nil, nil, err
	}
	usage.CouponID = updated.ID

	ev := domain.NewEvent(domain.EventCouponRedeemed, in.RequestID, domain.ActorClient, now, map[string]any{
		"couponId":       updated.ID.String(),
		"code":           updated.Code,
		"discountAmount": discount.StringFixed(2),
		"usageCount":     updated.UsageCount,
	})
	return &Reservation{Coupon: *updated, Usage: usage, Discount: discount}, []domain.Event{ev}, nil
}

// CreateCouponRequest represents the input for creating a coupon.
type CreateCouponRequest struct {
	Code                   string           `json:"code"`
	DiscountType           string           `json:"discountType"` // "percentage" or "fixed"
	DiscountValue          decimal.Decimal  `json:"discountValue"`
	MaxDiscountAmount      *decimal.Decimal `json:"maxDiscountAmount"`
	MinOrderAmount         decimal.Decimal  `json:"minOrderAmount"`
	MaxUsageLimit          *int             `json:"maxUsageLimit"`
	MaxUsagePerUser        *int             `json:"maxUsagePerUser"`
	ValidFrom              string           `json:"validFrom"`  // ISO8601 format
	ValidUntil             string           `json:"validUntil"` // ISO8601 format
	IsActive               bool             `json:"isActive"`
	ApplicableServiceTypes []string         `json:"applicableServiceTypes"`
}

// CreateCoupon creates a new coupon with validation.
func (uc *CouponUsecase) CreateCoupon(ctx context.Context, req CreateCouponRequest, createdBy *uuid.UUID) (*domain.Coupon, error) {
	code := domain.NormalizeCouponCode(req.Code)
	if code == "" {
		return nil, &domain.ValidationError{Field: "code", Reason: "is required"}
	}

	dt := domain.DiscountType(req.DiscountType)
	if dt != domain.DiscountPercentage && dt != domain.DiscountFixed {
		return nil, &domain.ValidationError{Field: "discountType", Reason: "must be 'percentage' or 'fixed'"}
	}
	if !req.DiscountValue.IsPositive() {
		return nil, &domain.ValidationError{Field: "discountValue", Reason: "must be greater than 0"}
	}
	if dt == domain.DiscountPercentage && req.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, &domain.ValidationError{Field: "discountValue", Reason: "percentage discount cannot exceed 100%"}
	}
	if req.MaxDiscountAmount != nil && req.MaxDiscountAmount.IsNegative() {
		return nil, &domain.ValidationError{Field: "maxDiscountAmount", Reason: "cannot be negative"}
	}
	if req.MinOrderAmount.IsNegative() {
		return nil, &domain.ValidationError{Field: "minOrderAmount", Reason: "cannot be negative"}
	}
	if req.MaxUsageLimit != nil && *req.MaxUsageLimit < 0 {
		return nil, &domain.ValidationError{Field: "maxUsageLimit", Reason: "cannot be negative"}
	}
	if req.MaxUsagePerUser != nil && *req.MaxUsagePerUser < 1 {
		return nil, &domain.ValidationError{Field: "maxUsagePerUser", Reason: "must be at least 1"}
	}

	now := uc.clock()
	validFrom, validUntil := now, now.AddDate(1, 0, 0)
	if req.ValidFrom != "" {
		t, err := parseISO8601(req.ValidFrom)
		if err != nil {
			return nil, &domain.ValidationError{Field: "validFrom", Reason: err.Error()}
		}
		validFrom = t
	}
	if req.ValidUntil != "" {
		t, err := parseISO8601(req.ValidUntil)
		if err != nil {
			return nil, &domain.ValidationError{Field: "validUntil", Reason: err.Error()}
		}
		validUntil = t
	}
	if !validUntil.After(validFrom) {
		return nil, &domain.ValidationError{Field: "validUntil", Reason: "must be after validFrom"}
	}

	coupon := &domain.Coupon{
		ID:                     uuid.New(),
		Code:                   code,
		DiscountType:           dt,
		DiscountValue:          req.DiscountValue,
		MaxDiscountAmount:      req.MaxDiscountAmount,
		MinOrderAmount:         req.MinOrderAmount,
		MaxUsageLimit:          req.MaxUsageLimit,
		MaxUsagePerUser:        req.MaxUsagePerUser,
		ValidFrom:              validFrom,
		ValidUntil:             validUntil,
		IsActive:               req.IsActive,
		ApplicableServiceTypes: req.ApplicableServiceTypes,
		CreatedBy:              createdBy,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if coupon.ApplicableServiceTypes == nil {
		coupon.ApplicableServiceTypes = []string{}
	}

	if err := uc.coupons.Create(ctx, coupon); err != nil {
		if domain.IsExpected(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}
	logger.WithContext(ctx).Info().Str("coupon", code).Msg("Coupon created")
	return coupon, nil
}

func (uc *CouponUsecase) GetCoupon(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	return uc.coupons.GetByID(ctx, id)
}

// ListCoupons returns a page of coupons and the total.
func (uc *CouponUsecase) ListCoupons(ctx context.Context, filter domain.CouponFilter) ([]domain.Coupon, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	coupons, total, err := uc.coupons.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list coupons: %w", err)
	}
	return coupons, total, nil
}

// SetActive toggles a coupon. Deactivation is the only way to retire one; usage rows stay.
func (uc *CouponUsecase) SetActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Coupon, error) {
	return uc.coupons.SetActive(ctx, id, active, uc.clock())
}

func (uc *CouponUsecase) ListUsages(ctx context.Context, couponID uuid.UUID) ([]domain.CouponUsage, error) {
	if _, err := uc.coupons.GetByID(ctx, couponID); err != nil {
		return nil, err
	}
	return uc.coupons.ListUsages(ctx, couponID)
}

// parseISO8601 parses an ISO8601 date string.
func parseISO8601(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format %q", s)
}
