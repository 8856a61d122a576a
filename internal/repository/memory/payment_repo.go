package memory

import (
	"context"
	"fmt"
	"slices"

	"caconnect-backend/internal/domain"

	"github.com/google/uuid"
)

type paymentRepo struct{ s *Store }

func (r paymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.payments[p.ID]; exists {
		return fmt.Errorf("payment %s already exists", p.ID)
	}
	r.s.payments[p.ID] = *p
	return nil
}

func (r paymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, domain.NewNotFound("payment", id)
	}
	return &p, nil
}

func (r paymentRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.s.payments {
		if p.ServiceRequestID == requestID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r paymentRepo) UpdateIf(ctx context.Context, next *domain.Payment, guard domain.PaymentGuard) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.updateLocked(next, guard), nil
}

func (r paymentRepo) updateLocked(next *domain.Payment, guard domain.PaymentGuard) bool {
	cur, ok := r.s.payments[next.ID]
	if !ok || cur.Status != guard.Status || cur.Version != guard.Version {
		return false
	}
	next.Version = guard.Version + 1
	r.s.payments[next.ID] = *next
	return true
}

func (r paymentRepo) CreateRefund(ctx context.Context, original *domain.Payment, guard domain.PaymentGuard, refund *domain.Payment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.RefundOfPaymentID != nil && *p.RefundOfPaymentID == original.ID {
			return false, nil
		}
	}
	if !r.updateLocked(original, guard) {
		return false, nil
	}
	r.s.payments[refund.ID] = *refund
	return true, nil
}

func (r paymentRepo) FindRefundOf(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.RefundOfPaymentID != nil && *p.RefundOfPaymentID == paymentID {
			return &p, nil
		}
	}
	return nil, nil
}
