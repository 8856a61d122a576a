package usecase

import (
	"context"
	"errors"
	"testing"

	"caconnect-backend/internal/domain"

	"github.com/google/uuid"
)

func (f *fixture) review(t *testing.T, caID uuid.UUID, rating int, requestID *uuid.UUID, clientID uuid.UUID) *domain.Review {
	t.Helper()
	rv, err := f.ratings.SubmitReview(context.Background(), ReviewInput{CaID: caID, ClientID: clientID, RequestID: requestID, Rating: rating})
	if err != nil {
		t.Fatalf("submit review failed: %v", err)
	}
	return rv
}

func TestRankPrefersVerifiedReviews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A: one verified 5 star review on a completed request plus ten unverified 3s.
	req, providerA := f.inProgress(t)
	if _, err := f.lifecycle.Complete(ctx, req.ID, domain.ClientActor(f.clientID)); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	verified := f.review(t, providerA, 5, &req.ID, f.clientID)
	if !verified.Verified {
		t.Fatalf("review on a completed request must be verified")
	}
	for i := 0; i < 10; i++ {
		f.review(t, providerA, 3, nil, uuid.New())
	}

	// B: ten unverified reviews averaging 4.5.
	providerB := uuid.New()
	for i := 0; i < 10; i++ {
		f.review(t, providerB, 4+i%2, nil, uuid.New())
	}

	ranked, err := f.ratings.Rank(ctx, []uuid.UUID{providerB, providerA, providerB})
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if len(ranked) != 2 || ranked[0].CaID != providerA || ranked[1].CaID != providerB {
		t.Fatalf("expected A above B, got %+v", ranked)
	}

	a, err := f.ratings.Aggregate(ctx, providerA)
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if a.ReviewCount != 11 || a.VerifiedReviewCount != 1 || a.VerifiedRating.StringFixed(2) != "5.00" || a.AverageRating.StringFixed(2) != "3.18" {
		t.Fatalf("unexpected summary for A: %+v", a)
	}
	b, _ := f.ratings.Aggregate(ctx, providerB)
	if b.AverageRating.StringFixed(2) != "4.50" || b.VerifiedReviewCount != 0 {
		t.Fatalf("unexpected summary for B: %+v", b)
	}
}

func TestSubmitReviewRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, provider := f.inProgress(t)

	if _, err := f.ratings.SubmitReview(ctx, ReviewInput{CaID: provider, ClientID: f.clientID, Rating: 6}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected rating validation error, got %v", err)
	}
	if _, err := f.ratings.SubmitReview(ctx, ReviewInput{CaID: provider, ClientID: uuid.New(), RequestID: &req.ID, Rating: 4}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ownership validation error, got %v", err)
	}

	// In progress requests yield unverified reviews.
	early := f.review(t, provider, 4, &req.ID, f.clientID)
	if early.Verified {
		t.Fatalf("review before completion must not be verified")
	}
	if _, err := f.ratings.SubmitReview(ctx, ReviewInput{CaID: provider, ClientID: f.clientID, RequestID: &req.ID, Rating: 5}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected duplicate review conflict, got %v", err)
	}
}

func TestAggregateWithoutReviews(t *testing.T) {
	f := newFixture(t)
	s, err := f.ratings.Aggregate(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if s.ReviewCount != 0 || !s.AverageRating.IsZero() {
		t.Fatalf("expected empty summary, got %+v", s)
	}
	ranked, err := f.ratings.Rank(context.Background(), nil)
	if err != nil || len(ranked) != 0 {
		t.Fatalf("expected empty ranking, got %v %v", ranked, err)
	}
}
