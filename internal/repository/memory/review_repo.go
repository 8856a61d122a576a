package memory

import (
	"context"

	"caconnect-backend/internal/domain"

	"github.com/google/uuid"
)

type reviewRepo struct{ s *Store }

func (r reviewRepo) Create(ctx context.Context, rv *domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reviews = append(r.s.reviews, *rv)
	return nil
}

func (r reviewRepo) ListByProvider(ctx context.Context, caID uuid.UUID) ([]domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Review
	for _, rv := range r.s.reviews {
		if rv.CaID == caID {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (r reviewRepo) ListByProviders(ctx context.Context, caIDs []uuid.UUID) (map[uuid.UUID][]domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[uuid.UUID][]domain.Review, len(caIDs))
	for _, id := range caIDs {
		out[id] = nil
	}
	for _, rv := range r.s.reviews {
		if _, wanted := out[rv.CaID]; wanted {
			out[rv.CaID] = append(out[rv.CaID], rv)
		}
	}
	return out, nil
}

func (r reviewRepo) ExistsForRequest(ctx context.Context, clientID, requestID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rv := range r.s.reviews {
		if rv.ClientID == clientID && rv.ServiceRequestID != nil && *rv.ServiceRequestID == requestID {
			return true, nil
		}
	}
	return false, nil
}
