// Package memory is a single-process backend used for local development and tests.
// Every atomic unit the Postgres backend runs as one statement or transaction is
// executed here under the store mutex.
package memory

import (
	"context"
	"sync"

	"caconnect-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu       sync.Mutex
	requests map[uuid.UUID]domain.ServiceRequest
	payments map[uuid.UUID]domain.Payment
	coupons  map[uuid.UUID]domain.Coupon
	usages   []domain.CouponUsage
	reviews  []domain.Review
	services map[uuid.UUID]domain.CatalogService
	rates    map[uuid.UUID]decimal.Decimal
}

func NewStore() *Store {
	return &Store{
		requests: make(map[uuid.UUID]domain.ServiceRequest),
		payments: make(map[uuid.UUID]domain.Payment),
		coupons:  make(map[uuid.UUID]domain.Coupon),
		services: make(map[uuid.UUID]domain.CatalogService),
		rates:    make(map[uuid.UUID]decimal.Decimal),
	}
}

// TransactionManager runs fn directly. Memory repositories are individually atomic.
type TransactionManager struct{}

func NewTransactionManager() domain.TransactionManager { return TransactionManager{} }

func (TransactionManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// PutService seeds a catalog offering.
func (s *Store) PutService(svc domain.CatalogService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

// SetCommissionRate seeds a provider's current commission percentage.
func (s *Store) SetCommissionRate(caID uuid.UUID, pct decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[caID] = pct
}

func (s *Store) GetService(ctx context.Context, id uuid.UUID) (*domain.CatalogService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, domain.NewNotFound("catalog service", id)
	}
	return &svc, nil
}

func (s *Store) CommissionRate(ctx context.Context, caID uuid.UUID) (decimal.Decimal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pct, ok := s.rates[caID]
	return pct, ok, nil
}

// Repositories returns the store under each repository interface.
func (s *Store) Requests() domain.RequestRepository   { return requestRepo{s} }
func (s *Store) Payments() domain.PaymentRepository   { return paymentRepo{s} }
func (s *Store) Coupons() domain.CouponRepository     { return couponRepo{s} }
func (s *Store) Reviews() domain.ReviewRepository     { return reviewRepo{s} }
func (s *Store) Catalog() domain.CatalogRepository    { return s }
func (s *Store) Providers() domain.ProviderRepository { return s }
