//go:generate mockgen -destination=mocks/mock_domain.go -package=mocks caconnect-backend/internal/domain EventPublisher,CatalogRepository,ProviderRepository

package domain

import (
	"context"
	"time"
)

// TransactionManager runs fn inside a single storage transaction carried by ctx.
type TransactionManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clock is injected so transitions stay deterministic under test.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }

// Pagination
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

func NewPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Page: page, Limit: limit, TotalItems: total, TotalPages: pages}
}
