package domain

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// CouponReason explains why a coupon cannot be used.
type CouponReason string

const (
	CouponEligible          CouponReason = ""
	CouponInactive          CouponReason = "coupon_inactive"
	CouponNotYetValid       CouponReason = "coupon_not_yet_valid"
	CouponExpired           CouponReason = "coupon_expired"
	CouponUsageLimitReached CouponReason = "usage_limit_reached"
	CouponMinOrderNotMet    CouponReason = "min_order_amount_not_met"
	CouponCategoryMismatch  CouponReason = "service_category_not_applicable"
	CouponUserLimitReached  CouponReason = "user_usage_limit_reached"
	CouponAlreadyRedeemed   CouponReason = "already_redeemed_for_request"
)

type Coupon struct {
	ID                     uuid.UUID        `json:"id"`
	Code                   string           `json:"code"`
	DiscountType           DiscountType     `json:"discountType"`
	DiscountValue          decimal.Decimal  `json:"discountValue"`
	MaxDiscountAmount      *decimal.Decimal `json:"maxDiscountAmount,omitempty"`
	MinOrderAmount         decimal.Decimal  `json:"minOrderAmount"`
	MaxUsageLimit          *int             `json:"maxUsageLimit,omitempty"`
	UsageCount             int              `json:"usageCount"`
	MaxUsagePerUser        *int             `json:"maxUsagePerUser,omitempty"`
	ValidFrom              time.Time        `json:"validFrom"`
	ValidUntil             time.Time        `json:"validUntil"`
	IsActive               bool             `json:"isActive"`
	ApplicableServiceTypes []string         `json:"applicableServiceTypes"`
	CreatedBy              *uuid.UUID       `json:"createdBy,omitempty"`
	CreatedAt              time.Time        `json:"createdAt"`
	UpdatedAt              time.Time        `json:"updatedAt"`
}

// NormalizeCouponCode upper-cases and trims a user supplied code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CouponUsage is one append-only ledger row per (coupon, service request).
type CouponUsage struct {
	ID               uuid.UUID       `json:"id"`
	CouponID         uuid.UUID       `json:"couponId"`
	UserID           uuid.UUID       `json:"userId"`
	ServiceRequestID uuid.UUID       `json:"serviceRequestId"`
	PaymentID        *uuid.UUID      `json:"paymentId,omitempty"`
	OriginalAmount   decimal.Decimal `json:"originalAmount"`
	DiscountAmount   decimal.Decimal `json:"discountAmount"`
	FinalAmount      decimal.Decimal `json:"finalAmount"`
	UsedAt           time.Time       `json:"usedAt"`
}

type CouponEligibility struct {
	Eligible bool         `json:"eligible"`
	Reason   CouponReason `json:"reason,omitempty"`
}

// CheckCouponEligibility applies the ledger rules in order: active flag, validity
// window, global cap, minimum order, category allow-list, per-user cap.
func CheckCouponEligibility(c Coupon, now time.Time, orderAmount decimal.Decimal, category string, userUsages int) CouponEligibility {
	reason := couponReason(c, now, orderAmount, category, userUsages)
	return CouponEligibility{Eligible: reason == CouponEligible, Reason: reason}
}

func couponReason(c Coupon, now time.Time, orderAmount decimal.Decimal, category string, userUsages int) CouponReason {
	if !c.IsActive {
		return CouponInactive
	}
	if now.Before(c.ValidFrom) {
		return CouponNotYetValid
	}
	if now.After(c.ValidUntil) {
		return CouponExpired
	}
	if c.MaxUsageLimit != nil && c.UsageCount >= *c.MaxUsageLimit {
		return CouponUsageLimitReached
	}
	if orderAmount.LessThan(c.MinOrderAmount) {
		return CouponMinOrderNotMet
	}
	if len(c.ApplicableServiceTypes) > 0 && !slices.Contains(c.ApplicableServiceTypes, category) {
		return CouponCategoryMismatch
	}
	if c.MaxUsagePerUser != nil && userUsages >= *c.MaxUsagePerUser {
		return CouponUserLimitReached
	}
	return CouponEligible
}

// IneligibleError converts a reason into the typed error callers receive.
// Hitting the global cap is reported as exhaustion.
func (c Coupon) IneligibleError(reason CouponReason) error {
	if reason == CouponUsageLimitReached {
		return &CouponExhaustedError{Code: c.Code}
	}
	return &CouponIneligibleError{Code: c.Code, Reason: reason}
}

// ComputeDiscount never returns more than orderAmount nor less than zero.
func ComputeDiscount(c Coupon, orderAmount decimal.Decimal) decimal.Decimal {
	if !orderAmount.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = orderAmount.Mul(c.DiscountValue).Div(hundred).RoundBank(2)
		if c.MaxDiscountAmount != nil && discount.GreaterThan(*c.MaxDiscountAmount) {
			discount = *c.MaxDiscountAmount
		}
	case DiscountFixed:
		discount = c.DiscountValue
	default:
		return decimal.Zero
	}
	return ClampDiscount(discount, orderAmount)
}

// CouponRedemption is what a reservation writes: the usage row and the limits to enforce atomically.
type CouponRedemption struct {
	Usage           CouponUsage
	MaxUsagePerUser *int
}

type CouponFilter struct {
	Limit  int
	Offset int
	Active *bool
}

type CouponRepository interface {
	Create(ctx context.Context, c *Coupon) error
	GetByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context, filter CouponFilter) ([]Coupon, int64, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) (*Coupon, error)
	CountUserUsages(ctx context.Context, couponID, userID uuid.UUID) (int, error)
	ListUsages(ctx context.Context, couponID uuid.UUID) ([]CouponUsage, error)
	// Redeem increments the usage count under the global cap, rechecks the per-user cap
	// and appends the usage row as one atomic unit. It returns the updated coupon, or
	// CouponExhaustedError / CouponIneligibleError when a limit is hit.
	Redeem(ctx context.Context, code string, r CouponRedemption) (*Coupon, error)
}
