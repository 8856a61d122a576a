package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"caconnect-backend/internal/domain"

	"github.com/google/uuid"
)

func TestConcurrentRedemptionsRespectGlobalCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coupon := f.createCoupon(t, CreateCouponRequest{
		Code: "LAUNCH5", DiscountType: "fixed", DiscountValue: dec("50"), MaxUsageLimit: intPtr(5), IsActive: true,
	})

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		exhausted int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.coupons.ValidateAndReserve(ctx, ReserveInput{
				Code:        "launch5",
				UserID:      uuid.New(),
				RequestID:   uuid.New(),
				OrderAmount: dec("500"),
				Category:    "tax",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrCouponExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if ok != 5 || exhausted != 15 {
		t.Fatalf("expected 5 redemptions and 15 exhausted, got %d and %d", ok, exhausted)
	}
	got, err := f.coupons.GetCoupon(ctx, coupon.ID)
	if err != nil {
		t.Fatalf("get coupon failed: %v", err)
	}
	if got.UsageCount != 5 {
		t.Fatalf("expected usage count 5, got %d", got.UsageCount)
	}
	usages, _ := f.coupons.ListUsages(ctx, coupon.ID)
	if len(usages) != 5 {
		t.Fatalf("expected 5 usage rows, got %d", len(usages))
	}
}

func TestRedemptionPerUserAndPerRequestLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createCoupon(t, CreateCouponRequest{
		Code: "ONCE", DiscountType: "percentage", DiscountValue: dec("10"), MaxUsagePerUser: intPtr(1), IsActive: true,
	})
	f.createCoupon(t, CreateCouponRequest{
		Code: "MULTI", DiscountType: "percentage", DiscountValue: dec("10"), IsActive: true,
	})
	user, request := uuid.New(), uuid.New()

	if _, err := f.coupons.ValidateAndReserve(ctx, ReserveInput{Code: "ONCE", UserID: user, RequestID: request, OrderAmount: dec("100")}); err != nil {
		t.Fatalf("first redemption failed: %v", err)
	}
	_, err := f.coupons.ValidateAndReserve(ctx, ReserveInput{Code: "ONCE", UserID: user, RequestID: uuid.New(), OrderAmount: dec("100")})
	var ineligible *domain.CouponIneligibleError
	if !errors.As(err, &ineligible) || ineligible.Reason != domain.CouponUserLimitReached {
		t.Fatalf("expected per-user limit, got %v", err)
	}

	if _, err := f.coupons.ValidateAndReserve(ctx, ReserveInput{Code: "MULTI", UserID: user, RequestID: request, OrderAmount: dec("100")}); err != nil {
		t.Fatalf("redemption failed: %v", err)
	}
	_, err = f.coupons.ValidateAndReserve(ctx, ReserveInput{Code: "MULTI", UserID: user, RequestID: request, OrderAmount: dec("100")})
	if !errors.As(err, &ineligible) || ineligible.Reason != domain.CouponAlreadyRedeemed {
		t.Fatalf("expected already redeemed for request, got %v", err)
	}
}

func TestValidateCodeReportsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCoupon(t, CreateCouponRequest{
		Code: "TAXONLY", DiscountType: "fixed", DiscountValue: dec("30"), MinOrderAmount: dec("200"),
		ApplicableServiceTypes: []string{"tax"}, IsActive: true,
	})
	user := uuid.New()

	tests := []struct {
		name     string
		amount   string
		category string
		want     domain.CouponReason
		discount string
	}{
		{"eligible", "250", "tax", domain.CouponEligible, "30.00"},
		{"below minimum", "150", "tax", domain.CouponMinOrderNotMet, "0.00"},
		{"wrong category", "250", "audit", domain.CouponCategoryMismatch, "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, elig, discount, err := f.coupons.ValidateCode(ctx, "taxonly", user, dec(tt.amount), tt.category)
			if err != nil {
				t.Fatalf("validate failed: %v", err)
			}
			if elig.Reason != tt.want || elig.Eligible != (tt.want == domain.CouponEligible) {
				t.Fatalf("expected %q, got %+v", tt.want, elig)
			}
			if discount.StringFixed(2) != tt.discount {
				t.Fatalf("expected discount %s, got %s", tt.discount, discount.StringFixed(2))
			}
		})
	}

	if _, err := f.coupons.SetActive(ctx, c.ID, false); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	_, elig, _, err := f.coupons.ValidateCode(ctx, "TAXONLY", user, dec("250"), "tax")
	if err != nil || elig.Reason != domain.CouponInactive {
		t.Fatalf("expected inactive, got %+v %v", elig, err)
	}
	if _, err := f.coupons.ValidateAndReserve(ctx, ReserveInput{Code: "TAXONLY", UserID: user, RequestID: uuid.New(), OrderAmount: dec("250"), Category: "tax"}); !errors.Is(err, domain.ErrCouponIneligible) {
		t.Fatalf("expected ineligible, got %v", err)
	}
}

func TestCreateCouponValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	window := func(r CreateCouponRequest) CreateCouponRequest {
		r.ValidFrom = testNow.Format(time.RFC3339)
		r.ValidUntil = testNow.Add(time.Hour).Format(time.RFC3339)
		return r
	}

	tests := []struct {
		name  string
		req   CreateCouponRequest
		field string
	}{
		{"missing code", CreateCouponRequest{DiscountType: "fixed", DiscountValue: dec("10")}, "code"},
		{"bad type", CreateCouponRequest{Code: "X", DiscountType: "bogo", DiscountValue: dec("10")}, "discountType"},
		{"zero value", CreateCouponRequest{Code: "X", DiscountType: "fixed", DiscountValue: dec("0")}, "discountValue"},
		{"percentage above 100", CreateCouponRequest{Code: "X", DiscountType: "percentage", DiscountValue: dec("101")}, "discountValue"},
		{"negative cap", CreateCouponRequest{Code: "X", DiscountType: "fixed", DiscountValue: dec("5"), MaxDiscountAmount: decPtr("-1")}, "maxDiscountAmount"},
		{"per-user zero", CreateCouponRequest{Code: "X", DiscountType: "fixed", DiscountValue: dec("5"), MaxUsagePerUser: intPtr(0)}, "maxUsagePerUser"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coupons.CreateCoupon(ctx, window(tt.req), nil)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}

	_, err := f.coupons.CreateCoupon(ctx, CreateCouponRequest{
		Code: "X", DiscountType: "fixed", DiscountValue: dec("5"),
		ValidFrom: "2025-07-01", ValidUntil: "2025-06-01",
	}, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected inverted window to fail, got %v", err)
	}

	admin := uuid.New()
	c, err := f.coupons.CreateCoupon(ctx, window(CreateCouponRequest{Code: "dup", DiscountType: "fixed", DiscountValue: dec("5"), IsActive: true}), &admin)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if c.Code != "DUP" || c.CreatedBy == nil || *c.CreatedBy != admin {
		t.Fatalf("unexpected coupon %+v", c)
	}
	if _, err := f.coupons.CreateCoupon(ctx, window(CreateCouponRequest{Code: "DUP", DiscountType: "fixed", DiscountValue: dec("5")}), nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected duplicate code conflict, got %v", err)
	}
}

func TestListCouponsClampsPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, code := range []string{"A1", "A2", "A3"} {
		f.createCoupon(t, CreateCouponRequest{Code: code, DiscountType: "fixed", DiscountValue: dec("1"), IsActive: true})
	}
	coupons, total, err := f.coupons.ListCoupons(ctx, domain.CouponFilter{Limit: 500, Offset: -3})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 3 || len(coupons) != 3 {
		t.Fatalf("expected 3 coupons, got %d of %d", len(coupons), total)
	}
}
