package postgres

import (
	"context"
	"fmt"

	"caconnect-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type reviewRepository struct {
	db *pgxpool.Pool
}

func NewReviewRepository(db *pgxpool.Pool) domain.ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) Create(ctx context.Context, rv *domain.Review) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO reviews (id, ca_id, client_id, service_request_id, rating, verified, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rv.ID, rv.CaID, rv.ClientID, toPgUUID(rv.ServiceRequestID), rv.Rating, rv.Verified, rv.Comment, rv.CreatedAt)
	if isUniqueViolation(err) {
		return &domain.ConflictError{Entity: "review", ID: rv.ID, Reason: "request already reviewed by this client"}
	}
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *reviewRepository) ListByProvider(ctx context.Context, caID uuid.UUID) ([]domain.Review, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT id, ca_id, client_id, service_request_id, rating, verified, comment, created_at
		FROM reviews WHERE ca_id = $1`, caID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return collectReviews(rows)
}

func (r *reviewRepository) ListByProviders(ctx context.Context, caIDs []uuid.UUID) (map[uuid.UUID][]domain.Review, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT id, ca_id, client_id, service_request_id, rating, verified, comment, created_at
		FROM reviews WHERE ca_id = ANY($1)`, caIDs)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	all, err := collectReviews(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID][]domain.Review, len(caIDs))
	for _, id := range caIDs {
		out[id] = nil
	}
	for _, rv := range all {
		out[rv.CaID] = append(out[rv.CaID], rv)
	}
	return out, nil
}

func (r *reviewRepository) ExistsForRequest(ctx context.Context, clientID, requestID uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reviews WHERE client_id = $1 AND service_request_id = $2)`,
		clientID, requestID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check review: %w", err)
	}
	return exists, nil
}

func collectReviews(rows pgx.Rows) ([]domain.Review, error) {
	defer rows.Close()
	var out []domain.Review
	for rows.Next() {
		var (
			rv        domain.Review
			requestID pgtype.UUID
			rating    int16
		)
		if err := rows.Scan(&rv.ID, &rv.CaID, &rv.ClientID, &requestID, &rating, &rv.Verified, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		rv.ServiceRequestID = fromPgUUID(requestID)
		rv.Rating = int(rating)
		out = append(out, rv)
	}
	return out, rows.Err()
}
