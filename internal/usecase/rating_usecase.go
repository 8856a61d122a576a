package usecase

import (
	"context"
	"fmt"
	"strings"

	"caconnect-backend/internal/domain"
	"caconnect-backend/pkg/logger"

	"github.com/google/uuid"
)

// RatingUsecase derives provider ratings from review rows on every read.
type RatingUsecase struct {
	reviews   domain.ReviewRepository
	requests  domain.RequestRepository
	publisher domain.EventPublisher
	clock     domain.Clock
}

func NewRatingUsecase(reviews domain.ReviewRepository, requests domain.RequestRepository, publisher domain.EventPublisher, clock domain.Clock) *RatingUsecase {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &RatingUsecase{reviews: reviews, requests: requests, publisher: publisher, clock: clock}
}

func (u *RatingUsecase) Aggregate(ctx context.Context, caID uuid.UUID) (domain.RatingSummary, error) {
	reviews, err := u.reviews.ListByProvider(ctx, caID)
	if err != nil {
		return domain.RatingSummary{}, fmt.Errorf("list reviews: %w", err)
	}
	return domain.Summarize(caID, reviews), nil
}

// Rank orders providers best first. Duplicate IDs are ranked once.
func (u *RatingUsecase) Rank(ctx context.Context, caIDs []uuid.UUID) ([]domain.RatingSummary, error) {
	seen := make(map[uuid.UUID]struct{}, len(caIDs))
	ids := make([]uuid.UUID, 0, len(caIDs))
	for _, id := range caIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return []domain.RatingSummary{}, nil
	}
	byProvider, err := u.reviews.ListByProviders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	summaries := make([]domain.RatingSummary, 0, len(ids))
	for _, id := range ids {
		summaries = append(summaries, domain.Summarize(id, byProvider[id]))
	}
	return domain.RankSummaries(summaries), nil
}

type ReviewInput struct {
	CaID      uuid.UUID
	ClientID  uuid.UUID
	RequestID *uuid.UUID
	Rating    int
	Comment   string
}

// SubmitReview records a review. It is verified when it references a completed
// request the reviewer owns and the reviewed provider fulfilled.
func (u *RatingUsecase) SubmitReview(ctx context.Context, in ReviewInput) (*domain.Review, error) {
	if !domain.ValidRating(in.Rating) {
		return nil, &domain.ValidationError{Field: "rating", Reason: "must be between 1 and 5"}
	}
	if in.CaID == uuid.Nil || in.ClientID == uuid.Nil {
		return nil, &domain.ValidationError{Field: "caId", Reason: "provider and client are required"}
	}

	verified := false
	if in.RequestID != nil {
		req, err := u.requests.GetByID(ctx, *in.RequestID)
		if err != nil {
			return nil, err
		}
		if req.ClientID != in.ClientID {
			return nil, &domain.ValidationError{Field: "serviceRequestId", Reason: "request belongs to another client"}
		}
		exists, err := u.reviews.ExistsForRequest(ctx, in.ClientID, req.ID)
		if err != nil {
			return nil, fmt.Errorf("check review: %w", err)
		}
		if exists {
			return nil, &domain.ConflictError{Entity: "service request", ID: req.ID, Reason: "already reviewed"}
		}
		verified = req.Status == domain.RequestCompleted && req.IsAssignedTo(in.CaID)
	}

	now := u.clock()
	review := &domain.Review{
		ID:               uuid.New(),
		CaID:             in.CaID,
		ClientID:         in.ClientID,
		ServiceRequestID: in.RequestID,
		Rating:           in.Rating,
		Verified:         verified,
		Comment:          strings.TrimSpace(in.Comment),
		CreatedAt:        now,
	}
	if err := u.reviews.Create(ctx, review); err != nil {
		if domain.IsExpected(err) {
			return nil, err
		}
		return nil, fmt.Errorf("create review: %w", err)
	}

	var requestID uuid.UUID
	if in.RequestID != nil {
		requestID = *in.RequestID
	}
	logger.WithContext(ctx).Info().Str("ca_id", in.CaID.String()).Bool("verified", verified).Msg("Review submitted")
	emit(ctx, u.publisher, []domain.Event{domain.NewEvent(domain.EventReviewSubmitted, requestID, domain.ActorClient, now, map[string]any{
		"caId":     in.CaID.String(),
		"rating":   in.Rating,
		"verified": verified,
	})})
	return review, nil
}
