package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caconnect-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const requestColumns = `id, client_id, ca_id, status, service_id, purpose, notes, cancellation_reason,
	cancelled_by_kind, cancelled_by_id, rejection_reason, cancellation_fee_due, escalated_at,
	completed_at, metadata, version, created_at, updated_at`

type requestRepository struct {
	db *pgxpool.Pool
}

func NewRequestRepository(db *pgxpool.Pool) domain.RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *domain.ServiceRequest) error {
	kind, byID := actorColumns(req.CancelledBy)
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO service_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		req.ID, req.ClientID, toPgUUID(req.CaID), string(req.Status), req.ServiceID, req.Purpose, req.Notes,
		req.CancellationReason, kind, byID, req.RejectionReason, req.CancellationFeeDue, req.EscalatedAt,
		req.CompletedAt, req.Metadata, req.Version, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert service request: %w", err)
	}
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ServiceRequest, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("service request", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get service request: %w", err)
	}
	return req, nil
}

// UpdateIf is the conditional write behind every request transition, including
// assignment: the row is only touched while it still has the expected status and version.
func (r *requestRepository) UpdateIf(ctx context.Context, next *domain.ServiceRequest, guard domain.RequestGuard) (bool, error) {
	kind, byID := actorColumns(next.CancelledBy)
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE service_requests SET
			ca_id = $2, status = $3, purpose = $4, notes = $5, cancellation_reason = $6,
			cancelled_by_kind = $7, cancelled_by_id = $8, rejection_reason = $9,
			cancellation_fee_due = $10, escalated_at = $11, completed_at = $12, metadata = $13,
			updated_at = $14, version = version + 1
		WHERE id = $1 AND status = $15 AND version = $16`,
		next.ID, toPgUUID(next.CaID), string(next.Status), next.Purpose, next.Notes, next.CancellationReason,
		kind, byID, next.RejectionReason, next.CancellationFeeDue, next.EscalatedAt, next.CompletedAt,
		next.Metadata, next.UpdatedAt, string(guard.Status), guard.Version,
	)
	if err != nil {
		return false, fmt.Errorf("update service request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	next.Version = guard.Version + 1
	return true, nil
}

func actorColumns(a *domain.Actor) (pgtype.Text, pgtype.UUID) {
	if a == nil {
		return pgtype.Text{}, pgtype.UUID{}
	}
	id := a.ID
	return pgtype.Text{String: string(a.Kind), Valid: true}, toPgUUID(&id)
}

func scanRequest(row pgx.Row) (*domain.ServiceRequest, error) {
	var (
		req         domain.ServiceRequest
		caID        pgtype.UUID
		status      string
		byKind      pgtype.Text
		byID        pgtype.UUID
		escalatedAt *time.Time
		completedAt *time.Time
	)
	err := row.Scan(
		&req.ID, &req.ClientID, &caID, &status, &req.ServiceID, &req.Purpose, &req.Notes,
		&req.CancellationReason, &byKind, &byID, &req.RejectionReason, &req.CancellationFeeDue,
		&escalatedAt, &completedAt, &req.Metadata, &req.Version, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.CaID = fromPgUUID(caID)
	req.Status = domain.RequestStatus(status)
	req.EscalatedAt = escalatedAt
	req.CompletedAt = completedAt
	if byKind.Valid {
		actor := domain.Actor{Kind: domain.ActorKind(byKind.String)}
		if id := fromPgUUID(byID); id != nil {
			actor.ID = *id
		}
		req.CancelledBy = &actor
	}
	return &req, nil
}
