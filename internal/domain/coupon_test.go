package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func intPtr(i int) *int { return &i }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func activeCoupon() Coupon {
	return Coupon{
		ID:            uuid.New(),
		Code:          "WELCOME20",
		DiscountType:  DiscountPercentage,
		DiscountValue: dec("20"),
		ValidFrom:     fixedNow.Add(-24 * time.Hour),
		ValidUntil:    fixedNow.Add(24 * time.Hour),
		IsActive:      true,
	}
}

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name   string
		coupon func() Coupon
		order  string
		want   string
	}{
		{"fixed above order clamps to order", func() Coupon {
			c := activeCoupon()
			c.DiscountType, c.DiscountValue = DiscountFixed, dec("500")
			return c
		}, "300", "300"},
		{"fixed below order", func() Coupon {
			c := activeCoupon()
			c.DiscountType, c.DiscountValue = DiscountFixed, dec("50")
			return c
		}, "300", "50"},
		{"percentage capped", func() Coupon {
			c := activeCoupon()
			c.MaxDiscountAmount = decPtr("100")
			return c
		}, "1000", "100"},
		{"percentage under cap", func() Coupon {
			c := activeCoupon()
			c.MaxDiscountAmount = decPtr("500")
			return c
		}, "1000", "200"},
		{"percentage uncapped", activeCoupon, "99.99", "20"},
		{"zero order", activeCoupon, "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := dec(tt.order)
			got := ComputeDiscount(tt.coupon(), order)
			if !got.Equal(dec(tt.want)) {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
			if got.GreaterThan(order) || got.IsNegative() {
				t.Fatalf("discount %s out of bounds for order %s", got, order)
			}
		})
	}
}

func TestCheckCouponEligibility(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Coupon)
		order      string
		category   string
		userUsages int
		want       CouponReason
	}{
		{"eligible", func(*Coupon) {}, "100", "tax", 0, CouponEligible},
		{"inactive wins over everything", func(c *Coupon) { c.IsActive = false; c.ValidUntil = fixedNow.Add(-time.Hour) }, "100", "tax", 0, CouponInactive},
		{"not yet valid", func(c *Coupon) { c.ValidFrom = fixedNow.Add(time.Hour) }, "100", "tax", 0, CouponNotYetValid},
		{"expired", func(c *Coupon) { c.ValidUntil = fixedNow.Add(-time.Hour) }, "100", "tax", 0, CouponExpired},
		{"global cap reached", func(c *Coupon) { c.MaxUsageLimit = intPtr(5); c.UsageCount = 5 }, "100", "tax", 0, CouponUsageLimitReached},
		{"min order not met", func(c *Coupon) { c.MinOrderAmount = dec("500") }, "100", "tax", 0, CouponMinOrderNotMet},
		{"category restricted", func(c *Coupon) { c.ApplicableServiceTypes = []string{"audit"} }, "100", "tax", 0, CouponCategoryMismatch},
		{"category allowed", func(c *Coupon) { c.ApplicableServiceTypes = []string{"audit", "tax"} }, "100", "tax", 0, CouponEligible},
		{"per user cap", func(c *Coupon) { c.MaxUsagePerUser = intPtr(1) }, "100", "tax", 1, CouponUserLimitReached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCoupon()
			tt.mutate(&c)
			got := CheckCouponEligibility(c, fixedNow, dec(tt.order), tt.category, tt.userUsages)
			if got.Reason != tt.want || got.Eligible != (tt.want == CouponEligible) {
				t.Fatalf("expected %q, got %+v", tt.want, got)
			}
		})
	}
}

func TestCouponIneligibleError(t *testing.T) {
	c := activeCoupon()
	if err := c.IneligibleError(CouponUsageLimitReached); !errors.Is(err, ErrCouponExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	err := c.IneligibleError(CouponExpired)
	var ie *CouponIneligibleError
	if !errors.As(err, &ie) || ie.Reason != CouponExpired {
		t.Fatalf("expected ineligible with reason, got %v", err)
	}
}
