package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"caconnect-backend/internal/domain"
	"caconnect-backend/internal/domain/mocks"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"
)

func TestInitiateChargeAppliesCoupon(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name         string
		coupon       CreateCouponRequest
		base         string
		wantDiscount string
		wantAmount   string
	}{
		{
			name:         "fixed larger than order",
			coupon:       CreateCouponRequest{Code: "flat500", DiscountType: "fixed", DiscountValue: dec("500"), IsActive: true},
			base:         "300",
			wantDiscount: "300.00",
			wantAmount:   "0.00",
		},
		{
			name:         "percentage capped",
			coupon:       CreateCouponRequest{Code: "TWENTY", DiscountType: "percentage", DiscountValue: dec("20"), MaxDiscountAmount: decPtr("100"), IsActive: true},
			base:         "1000",
			wantDiscount: "100.00",
			wantAmount:   "900.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req, _ := f.inProgress(t)
			coupon := f.createCoupon(t, tt.coupon)

			p, err := f.settlement.InitiateCharge(ctx, ChargeInput{
				RequestID:  req.ID,
				Kind:       domain.PaymentServiceFee,
				BaseAmount: dec(tt.base),
				CouponCode: " " + tt.coupon.Code,
				Actor:      domain.ClientActor(f.clientID),
			})
			if err != nil {
				t.Fatalf("initiate failed: %v", err)
			}
			if p.DiscountAmount.StringFixed(2) != tt.wantDiscount || p.Amount.StringFixed(2) != tt.wantAmount {
				t.Fatalf("expected discount %s amount %s, got %s / %s", tt.wantDiscount, tt.wantAmount, p.DiscountAmount.StringFixed(2), p.Amount.StringFixed(2))
			}
			if !p.OriginalAmount.Equal(dec(tt.base)) || p.CouponID == nil || *p.CouponID != coupon.ID {
				t.Fatalf("unexpected payment %+v", p)
			}
			if p.Currency != "INR" || p.PayerID != f.clientID || p.PayeeID == nil {
				t.Fatalf("expected default currency and parties, got %+v", p)
			}

			usages, err := f.coupons.ListUsages(ctx, coupon.ID)
			if err != nil {
				t.Fatalf("list usages failed: %v", err)
			}
			if len(usages) != 1 || usages[0].PaymentID == nil || *usages[0].PaymentID != p.ID {
				t.Fatalf("expected one usage linked to the payment, got %+v", usages)
			}
		})
	}
}

func TestInvalidChargeLeavesCouponUnused(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		base     string
		currency string
	}{
		{"bad currency", "1000", "RUPEES"},
		{"three decimal places", "1000.005", ""},
		{"zero amount", "0", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req, _ := f.inProgress(t)
			coupon := f.createCoupon(t, CreateCouponRequest{
				Code: "ONCE", DiscountType: "percentage", DiscountValue: dec("10"), MaxUsageLimit: intPtr(1), IsActive: true,
			})

			_, err := f.settlement.InitiateCharge(ctx, ChargeInput{
				RequestID:  req.ID,
				Kind:       domain.PaymentServiceFee,
				BaseAmount: dec(tt.base),
				Currency:   tt.currency,
				CouponCode: "ONCE",
				Actor:      domain.ClientActor(f.clientID),
			})
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}

			got, err := f.coupons.GetCoupon(ctx, coupon.ID)
			if err != nil {
				t.Fatalf("get coupon failed: %v", err)
			}
			if got.UsageCount != 0 {
				t.Fatalf("rejected charge must not consume the coupon, usage count %d", got.UsageCount)
			}
			usages, _ := f.coupons.ListUsages(ctx, coupon.ID)
			if len(usages) != 0 {
				t.Fatalf("expected no usage rows, got %d", len(usages))
			}

			p, err := f.settlement.InitiateCharge(ctx, ChargeInput{
				RequestID: req.ID, Kind: domain.PaymentServiceFee, BaseAmount: dec("1000"), CouponCode: "ONCE", Actor: domain.ClientActor(f.clientID),
			})
			if err != nil {
				t.Fatalf("valid charge should still redeem the coupon: %v", err)
			}
			if p.DiscountAmount.StringFixed(2) != "100.00" {
				t.Fatalf("expected 100.00 discount, got %s", p.DiscountAmount.StringFixed(2))
			}
		})
	}
}

func TestInitiateChargeRejectsDisallowedKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.submit(t)

	tests := []struct {
		name string
		kind domain.PaymentKind
	}{
		{"service fee without provider", domain.PaymentServiceFee},
		{"cancellation fee not due", domain.PaymentCancellationFee},
		{"direct refund", domain.PaymentRefund},
		{"unknown kind", domain.PaymentKind("tip")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.settlement.InitiateCharge(ctx, ChargeInput{
				RequestID: pending.ID, Kind: tt.kind, BaseAmount: dec("100"), Actor: domain.ClientActor(f.clientID),
			})
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	_, err := f.settlement.InitiateCharge(ctx, ChargeInput{
		RequestID: pending.ID, Kind: domain.PaymentBookingFee, BaseAmount: dec("100"), Actor: domain.ClientActor(uuid.New()),
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected a stranger to be refused, got %v", err)
	}
}

func TestCommissionPinnedAtCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, provider := f.inProgress(t)
	f.store.SetCommissionRate(provider, decimal.NewFromInt(8))

	p := f.completedCharge(t, req, domain.PaymentServiceFee, "1000", false)
	if p.CommissionAmount.StringFixed(2) != "80.00" || p.NetAmount.StringFixed(2) != "920.00" {
		t.Fatalf("expected 80.00 / 920.00, got %s / %s", p.CommissionAmount.StringFixed(2), p.NetAmount.StringFixed(2))
	}

	f.store.SetCommissionRate(provider, decimal.NewFromInt(12))
	again, err := f.settlement.ApplyCommission(ctx, p.ID)
	if err != nil {
		t.Fatalf("re-apply failed: %v", err)
	}
	if !again.CommissionAmount.Equal(*p.CommissionAmount) || again.Version != p.Version {
		t.Fatalf("finalized commission must not change, got %s (v%d)", again.CommissionAmount, again.Version)
	}
}

func TestCommissionFallsBackToDefaultRate(t *testing.T) {
	ctrl := gomock.NewController(t)
	providers := mocks.NewMockProviderRepository(ctrl)
	providers.EXPECT().CommissionRate(gomock.Any(), gomock.Any()).Return(decimal.Zero, false, nil).Times(1)

	f := newFixtureWith(t, quietPublisher(t), providers)
	ctx := context.Background()
	req, _ := f.inProgress(t)

	p, err := f.settlement.InitiateCharge(ctx, ChargeInput{
		RequestID: req.ID, Kind: domain.PaymentServiceFee, BaseAmount: dec("10.25"), Actor: domain.ClientActor(f.clientID),
	})
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	got, err := f.settlement.ApplyCommission(ctx, p.ID)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	// 10% of 10.25 is 1.025, rounded half to even.
	if got.CommissionAmount.StringFixed(2) != "1.02" || got.Status != domain.PaymentPending {
		t.Fatalf("expected 1.02 on a pending payment, got %s (%s)", got.CommissionAmount.StringFixed(2), got.Status)
	}
}

func TestCommissionOnlyForServiceFees(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t)
	p, err := f.settlement.InitiateCharge(context.Background(), ChargeInput{
		RequestID: req.ID, Kind: domain.PaymentBookingFee, BaseAmount: dec("99"), Actor: domain.ClientActor(f.clientID),
	})
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if _, err := f.settlement.ApplyCommission(context.Background(), p.ID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRetryCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t)
	p, err := f.settlement.InitiateCharge(ctx, ChargeInput{
		RequestID: req.ID, Kind: domain.PaymentBookingFee, BaseAmount: dec("250"), Actor: domain.ClientActor(f.clientID),
	})
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	for want := 1; want <= domain.MaxPaymentRetries; want++ {
		if _, err := f.settlement.MarkFailed(ctx, p.ID, "card declined"); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		got, err := f.settlement.Retry(ctx, p.ID, domain.ActorClient)
		if err != nil {
			t.Fatalf("retry %d failed: %v", want, err)
		}
		if got.RetryCount != want || got.Status != domain.PaymentPending {
			t.Fatalf("expected retry count %d pending, got %d %s", want, got.RetryCount, got.Status)
		}
	}

	if _, err := f.settlement.MarkFailed(ctx, p.ID, "card declined"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	_, err = f.settlement.Retry(ctx, p.ID, domain.ActorClient)
	var exhausted *domain.RetryExhaustedError
	if !errors.As(err, &exhausted) || exhausted.RetryCount != domain.MaxPaymentRetries {
		t.Fatalf("expected retry exhausted at %d, got %v", domain.MaxPaymentRetries, err)
	}
}

func TestRefundSwapsPartiesAndIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, provider := f.inProgress(t)
	p := f.completedCharge(t, req, domain.PaymentServiceFee, "1000", false)

	original, refund, err := f.settlement.Refund(ctx, p.ID, "work not delivered", domain.ActorSystem)
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if original.Status != domain.PaymentRefunded {
		t.Fatalf("expected original refunded, got %s", original.Status)
	}
	if refund.Kind != domain.PaymentRefund || refund.Status != domain.PaymentPending || !refund.Amount.Equal(p.Amount) {
		t.Fatalf("unexpected refund %+v", refund)
	}
	if refund.PayerID != provider || refund.PayeeID == nil || *refund.PayeeID != f.clientID {
		t.Fatalf("expected provider to pay client back, got payer %s payee %v", refund.PayerID, refund.PayeeID)
	}
	if refund.RefundOfPaymentID == nil || *refund.RefundOfPaymentID != p.ID {
		t.Fatalf("refund must reference the original payment")
	}

	if _, _, err := f.settlement.Refund(ctx, p.ID, "again", domain.ActorSystem); err == nil {
		t.Fatalf("second refund must fail")
	}
	if _, _, err := f.settlement.Refund(ctx, refund.ID, "refund of refund", domain.ActorSystem); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error refunding a refund, got %v", err)
	}
	assertRefundRows(t, f, req.ID, 1)
}

func TestConcurrentRefundsCreateOneRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, _ := f.inProgress(t)
	p := f.completedCharge(t, req, domain.PaymentBookingFee, "400", false)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := f.settlement.Refund(ctx, p.ID, "duplicate click", domain.ActorClient); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !domain.IsExpected(err) {
				t.Errorf("unexpected error kind: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful refund, got %d", successes)
	}
	assertRefundRows(t, f, req.ID, 1)
}

func assertRefundRows(t *testing.T, f *fixture, requestID uuid.UUID, want int) {
	t.Helper()
	payments, err := f.settlement.ListForRequest(context.Background(), requestID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var refunds int
	for _, p := range payments {
		if p.Kind == domain.PaymentRefund {
			refunds++
		}
	}
	if refunds != want {
		t.Fatalf("expected %d refund rows, got %d", want, refunds)
	}
}

func TestScheduleEscrowRequiresCompletedEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, _ := f.inProgress(t)

	p, err := f.settlement.InitiateCharge(ctx, ChargeInput{
		RequestID: req.ID, Kind: domain.PaymentServiceFee, BaseAmount: dec("500"), IsEscrow: true, Actor: domain.ClientActor(f.clientID),
	})
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if _, err := f.settlement.ScheduleEscrowRelease(ctx, p.ID, testNow.Add(testEscrowHold)); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for pending escrow, got %v", err)
	}

	direct := f.completedCharge(t, req, domain.PaymentServiceFee, "500", false)
	if _, err := f.settlement.ScheduleEscrowRelease(ctx, direct.ID, testNow.Add(testEscrowHold)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for non-escrow payment, got %v", err)
	}
}
