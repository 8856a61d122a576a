package domain

import (
	"context"

	"github.com/google/uuid"
)

// CatalogService is a service offering a request is raised against.
type CatalogService struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
	IsActive bool      `json:"isActive"`
}

type CatalogRepository interface {
	GetService(ctx context.Context, id uuid.UUID) (*CatalogService, error)
}
