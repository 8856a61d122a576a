package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"caconnect-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// testPool connects to DB_DSN and applies the schema. Tests that need a real
// database are skipped when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return pool
}

func seedService(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if _, err := pool.Exec(context.Background(),
		`INSERT INTO catalog_services (id, name, category) VALUES ($1, $2, $3)`, id, "GST registration", "tax"); err != nil {
		t.Fatalf("seed service failed: %v", err)
	}
	return id
}

func seedRequest(t *testing.T, repo domain.RequestRepository, serviceID uuid.UUID) *domain.ServiceRequest {
	t.Helper()
	tr, err := domain.SubmitRequest(domain.NewRequest{ClientID: uuid.New(), ServiceID: serviceID}, uuid.New(), time.Now().UTC())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	req := tr.Request
	if err := repo.Create(context.Background(), &req); err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	return &req
}

func TestRequestUpdateIfAcceptHasOneWinner(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewRequestRepository(pool)
	req := seedRequest(t, repo, seedService(t, pool))

	const contenders = 8
	won := make([]bool, contenders)
	errs := make([]error, contenders)
	providers := make([]uuid.UUID, contenders)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range contenders {
		providers[i] = uuid.New()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tr, err := domain.AcceptRequest(*req, providers[i], time.Now().UTC())
			if err != nil {
				errs[i] = err
				return
			}
			next := tr.Request
			won[i], errs[i] = repo.UpdateIf(ctx, &next, req.Guard())
		}(i)
	}
	close(start)
	wg.Wait()

	winner := -1
	for i := range contenders {
		if errs[i] != nil {
			t.Fatalf("update failed: %v", errs[i])
		}
		if won[i] {
			if winner >= 0 {
				t.Fatalf("both %d and %d won the accept", winner, i)
			}
			winner = i
		}
	}
	if winner < 0 {
		t.Fatalf("expected one accept to win")
	}

	got, err := repo.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.RequestAccepted || !got.IsAssignedTo(providers[winner]) || got.Version != req.Version+1 {
		t.Fatalf("expected request held by the winner at version %d, got %+v", req.Version+1, got)
	}
}

func TestCouponRedeemRespectsGlobalCap(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	requests, coupons := NewRequestRepository(pool), NewCouponRepository(pool)
	serviceID := seedService(t, pool)

	now := time.Now().UTC()
	limit := 5
	coupon := &domain.Coupon{
		ID:            uuid.New(),
		Code:          "CAP" + uuid.NewString()[:8],
		DiscountType:  domain.DiscountFixed,
		DiscountValue: decimal.NewFromInt(50),
		MaxUsageLimit: &limit,
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(24 * time.Hour),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := coupons.Create(ctx, coupon); err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}

	const attempts = 20
	reqs := make([]*domain.ServiceRequest, attempts)
	for i := range reqs {
		reqs[i] = seedRequest(t, requests, serviceID)
	}

	errs := make([]error, attempts)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = coupons.Redeem(ctx, coupon.Code, domain.CouponRedemption{Usage: domain.CouponUsage{
				ID:               uuid.New(),
				CouponID:         coupon.ID,
				UserID:           reqs[i].ClientID,
				ServiceRequestID: reqs[i].ID,
				OriginalAmount:   decimal.NewFromInt(500),
				DiscountAmount:   decimal.NewFromInt(50),
				FinalAmount:      decimal.NewFromInt(450),
				UsedAt:           now,
			}})
		}(i)
	}
	close(start)
	wg.Wait()

	var redeemed, exhausted int
	for _, err := range errs {
		switch {
		case err == nil:
			redeemed++
		case errors.Is(err, domain.ErrCouponExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected redeem error: %v", err)
		}
	}
	if redeemed != limit || exhausted != attempts-limit {
		t.Fatalf("expected %d redeemed and %d exhausted, got %d and %d", limit, attempts-limit, redeemed, exhausted)
	}

	got, err := coupons.GetByID(ctx, coupon.ID)
	if err != nil {
		t.Fatalf("get coupon failed: %v", err)
	}
	usages, err := coupons.ListUsages(ctx, coupon.ID)
	if err != nil {
		t.Fatalf("list usages failed: %v", err)
	}
	if got.UsageCount != limit || len(usages) != limit {
		t.Fatalf("expected usage count and ledger at %d, got %d and %d rows", limit, got.UsageCount, len(usages))
	}
}

func TestCreateRefundIsSingleUse(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	requests, payments := NewRequestRepository(pool), NewPaymentRepository(pool)
	req := seedRequest(t, requests, seedService(t, pool))

	now := time.Now().UTC()
	created, err := domain.NewPayment(domain.NewCharge{
		RequestID:  req.ID,
		PayerID:    req.ClientID,
		Kind:       domain.PaymentBookingFee,
		BaseAmount: decimal.RequireFromString("250.00"),
		Currency:   "INR",
		Actor:      domain.ActorClient,
	}, uuid.New(), now)
	if err != nil {
		t.Fatalf("new payment failed: %v", err)
	}
	p := created.Payment
	if err := payments.Create(ctx, &p); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	done, err := domain.CompletePayment(p, "pi_int", now)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	completed := done.Payment
	if ok, err := payments.UpdateIf(ctx, &completed, p.Guard()); err != nil || !ok {
		t.Fatalf("expected completion to commit, got ok=%v err=%v", ok, err)
	}

	const contenders = 4
	won := make([]bool, contenders)
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range contenders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tr, refund, err := domain.RefundPayment(completed, uuid.New(), "duplicate", domain.ActorSystem, time.Now().UTC())
			if err != nil {
				errs[i] = err
				return
			}
			original := tr.Payment
			won[i], errs[i] = payments.CreateRefund(ctx, &original, completed.Guard(), &refund)
		}(i)
	}
	close(start)
	wg.Wait()

	var winners int
	for i := range contenders {
		if errs[i] != nil {
			t.Fatalf("create refund failed: %v", errs[i])
		}
		if won[i] {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one refund, got %d", winners)
	}

	refund, err := payments.FindRefundOf(ctx, completed.ID)
	if err != nil || refund == nil {
		t.Fatalf("expected the refund row, got %v / %v", refund, err)
	}
	rows, err := payments.ListByRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("list payments failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected source and one refund row, got %d", len(rows))
	}
	source, err := payments.GetByID(ctx, completed.ID)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if source.Status != domain.PaymentRefunded {
		t.Fatalf("expected source refunded, got %s", source.Status)
	}
}
