package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"caconnect-backend/internal/domain"
	"caconnect-backend/internal/domain/mocks"
	"caconnect-backend/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"
)

var testNow = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

const testEscrowHold = 72 * time.Hour

type fixture struct {
	store      *memory.Store
	lifecycle  *LifecycleUsecase
	settlement *SettlementUsecase
	coupons    *CouponUsecase
	ratings    *RatingUsecase
	serviceID  uuid.UUID
	clientID   uuid.UUID
}

func quietPublisher(t *testing.T) domain.EventPublisher {
	t.Helper()
	pub := mocks.NewMockEventPublisher(gomock.NewController(t))
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	return pub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, quietPublisher(t), nil)
}

// newFixtureWith wires the usecases over the memory store. A nil providers
// repository falls back to the store's seeded commission rates.
func newFixtureWith(t *testing.T, pub domain.EventPublisher, providers domain.ProviderRepository) *fixture {
	t.Helper()
	store := memory.NewStore()
	if providers == nil {
		providers = store.Providers()
	}
	clock := func() time.Time { return testNow }

	serviceID := uuid.New()
	store.PutService(domain.CatalogService{ID: serviceID, Name: "GST registration", Category: "tax", IsActive: true})

	coupons := NewCouponUsecase(store.Coupons(), pub, clock)
	settlement := NewSettlementUsecase(
		store.Payments(), store.Requests(), providers, store.Catalog(), coupons,
		memory.NewTransactionManager(), pub, clock,
		SettlementConfig{
			DefaultCommissionPercentage: decimal.NewFromInt(10),
			DefaultCurrency:             "INR",
			EscrowHoldPeriod:            testEscrowHold,
		},
	)
	return &fixture{
		store:      store,
		lifecycle:  NewLifecycleUsecase(store.Requests(), store.Catalog(), settlement, pub, clock),
		settlement: settlement,
		coupons:    coupons,
		ratings:    NewRatingUsecase(store.Reviews(), store.Requests(), pub, clock),
		serviceID:  serviceID,
		clientID:   uuid.New(),
	}
}

func (f *fixture) submit(t *testing.T) *domain.ServiceRequest {
	t.Helper()
	req, err := f.lifecycle.Submit(context.Background(), SubmitInput{ClientID: f.clientID, ServiceID: f.serviceID, Purpose: "annual filing"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	return req
}

// inProgress returns a request accepted and started by a fresh provider.
func (f *fixture) inProgress(t *testing.T) (*domain.ServiceRequest, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	req := f.submit(t)
	provider := uuid.New()
	if _, err := f.lifecycle.Accept(ctx, req.ID, provider); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	started, err := f.lifecycle.Start(ctx, req.ID, provider)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return started, provider
}

func (f *fixture) completedCharge(t *testing.T, req *domain.ServiceRequest, kind domain.PaymentKind, amount string, escrow bool) *domain.Payment {
	t.Helper()
	ctx := context.Background()
	p, err := f.settlement.InitiateCharge(ctx, ChargeInput{
		RequestID:  req.ID,
		Kind:       kind,
		BaseAmount: decimal.RequireFromString(amount),
		IsEscrow:   escrow,
		Actor:      domain.ClientActor(req.ClientID),
	})
	if err != nil {
		t.Fatalf("initiate charge failed: %v", err)
	}
	done, err := f.settlement.MarkCompleted(ctx, p.ID, "pi_"+p.ID.String()[:8])
	if err != nil {
		t.Fatalf("mark completed failed: %v", err)
	}
	return done
}

func (f *fixture) createCoupon(t *testing.T, req CreateCouponRequest) *domain.Coupon {
	t.Helper()
	if req.ValidFrom == "" {
		req.ValidFrom = testNow.Add(-24 * time.Hour).Format(time.RFC3339)
	}
	if req.ValidUntil == "" {
		req.ValidUntil = testNow.Add(30 * 24 * time.Hour).Format(time.RFC3339)
	}
	c, err := f.coupons.CreateCoupon(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	return c
}

// eventType matches a published domain.Event by type.
type eventType domain.EventType

func (e eventType) Matches(x any) bool {
	ev, ok := x.(domain.Event)
	return ok && ev.Type == domain.EventType(e)
}

func (e eventType) String() string { return fmt.Sprintf("event of type %s", string(e)) }

func intPtr(v int) *int { return &v }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// interleavedRequests runs before once, ahead of the first conditional write, so
// that write loses to whatever before commits. before must not go through this
// repository.
type interleavedRequests struct {
	domain.RequestRepository
	once   sync.Once
	before func()
}

func (r *interleavedRequests) UpdateIf(ctx context.Context, next *domain.ServiceRequest, guard domain.RequestGuard) (bool, error) {
	r.once.Do(r.before)
	return r.RequestRepository.UpdateIf(ctx, next, guard)
}

// interleavedLifecycle is a lifecycle usecase over f's store whose first write
// is preceded by before.
func (f *fixture) interleavedLifecycle(t *testing.T, before func()) *LifecycleUsecase {
	t.Helper()
	repo := &interleavedRequests{RequestRepository: f.store.Requests(), before: before}
	return NewLifecycleUsecase(repo, f.store.Catalog(), f.settlement, quietPublisher(t), func() time.Time { return testNow })
}
