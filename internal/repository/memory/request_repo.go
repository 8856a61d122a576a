package memory

import (
	"context"
	"fmt"

	"caconnect-backend/internal/domain"

	"github.com/google/uuid"
)

type requestRepo struct{ s *Store }

func (r requestRepo) Create(ctx context.Context, req *domain.ServiceRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.requests[req.ID]; exists {
		return fmt.Errorf("service request %s already exists", req.ID)
	}
	r.s.requests[req.ID] = *req
	return nil
}

func (r requestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ServiceRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, domain.NewNotFound("service request", id)
	}
	return &req, nil
}

func (r requestRepo) UpdateIf(ctx context.Context, next *domain.ServiceRequest, guard domain.RequestGuard) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.requests[next.ID]
	if !ok || cur.Status != guard.Status || cur.Version != guard.Version {
		return false, nil
	}
	next.Version = guard.Version + 1
	r.s.requests[next.ID] = *next
	return true, nil
}
