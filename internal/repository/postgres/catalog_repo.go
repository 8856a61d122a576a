package postgres

import (
	"context"
	"errors"
	"fmt"

	"caconnect-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type catalogRepository struct {
	db *pgxpool.Pool
}

func NewCatalogRepository(db *pgxpool.Pool) domain.CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GetService(ctx context.Context, id uuid.UUID) (*domain.CatalogService, error) {
	var svc domain.CatalogService
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT id, name, category, is_active FROM catalog_services WHERE id = $1`, id,
	).Scan(&svc.ID, &svc.Name, &svc.Category, &svc.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("catalog service", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog service: %w", err)
	}
	return &svc, nil
}

type providerRepository struct {
	db *pgxpool.Pool
}

func NewProviderRepository(db *pgxpool.Pool) domain.ProviderRepository {
	return &providerRepository{db: db}
}

func (r *providerRepository) CommissionRate(ctx context.Context, caID uuid.UUID) (decimal.Decimal, bool, error) {
	var pct pgtype.Numeric
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT commission_percentage FROM providers WHERE id = $1`, caID,
	).Scan(&pct)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("get commission rate: %w", err)
	}
	rate := fromNullNumeric(pct)
	if rate == nil {
		return decimal.Zero, false, nil
	}
	return *rate, true, nil
}
