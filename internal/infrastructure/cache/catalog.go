package cache

import (
	"context"
	"time"

	"caconnect-backend/internal/domain"
	"caconnect-backend/pkg/cache"

	"github.com/google/uuid"
)

// cachedCatalog memoizes catalog offering lookups. Offerings change rarely and are
// read on every request submission. Misses are not cached.
type cachedCatalog struct {
	next  domain.CatalogRepository
	cache cache.CacheService
	ttl   time.Duration
}

func NewCachedCatalog(next domain.CatalogRepository, c cache.CacheService, ttl time.Duration) domain.CatalogRepository {
	return &cachedCatalog{next: next, cache: c, ttl: ttl}
}

func catalogKey(id uuid.UUID) string { return "catalog:service:" + id.String() }

func (c *cachedCatalog) GetService(ctx context.Context, id uuid.UUID) (*domain.CatalogService, error) {
	if v, ok := c.cache.Get(catalogKey(id)); ok {
		svc := v.(domain.CatalogService)
		return &svc, nil
	}
	svc, err := c.next.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(catalogKey(id), *svc, c.ttl)
	return svc, nil
}
