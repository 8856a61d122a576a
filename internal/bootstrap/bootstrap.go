// Package bootstrap assembles storage, events and usecases from config for the
// binaries under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"caconnect-backend/config"
	"caconnect-backend/internal/domain"
	"caconnect-backend/internal/infrastructure/cache"
	"caconnect-backend/internal/infrastructure/events"
	"caconnect-backend/internal/repository/memory"
	"caconnect-backend/internal/repository/postgres"
	"caconnect-backend/internal/usecase"
	"caconnect-backend/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type repositories struct {
	requests  domain.RequestRepository
	payments  domain.PaymentRepository
	coupons   domain.CouponRepository
	reviews   domain.ReviewRepository
	catalog   domain.CatalogRepository
	providers domain.ProviderRepository
	txManager domain.TransactionManager
}

type App struct {
	Lifecycle  *usecase.LifecycleUsecase
	Settlement *usecase.SettlementUsecase
	Coupons    *usecase.CouponUsecase
	Ratings    *usecase.RatingUsecase

	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// Build connects the configured backends. The caller owns Close.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.Get()
	app := &App{}

	var repos repositories
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := postgres.NewPgxPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		app.Pool = pool
		log.Info().Msg("Successfully connected to PostgreSQL via pgx")
		if cfg.DBAutoMigrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				app.Close()
				return nil, err
			}
			log.Info().Msg("Schema migrated")
		}
		repos = repositories{
			requests:  postgres.NewRequestRepository(pool),
			payments:  postgres.NewPaymentRepository(pool),
			coupons:   postgres.NewCouponRepository(pool),
			reviews:   postgres.NewReviewRepository(pool),
			catalog:   postgres.NewCatalogRepository(pool),
			providers: postgres.NewProviderRepository(pool),
			txManager: postgres.NewTransactionManager(pool),
		}
	default:
		store := memory.NewStore()
		repos = repositories{
			requests:  store.Requests(),
			payments:  store.Payments(),
			coupons:   store.Coupons(),
			reviews:   store.Reviews(),
			catalog:   store.Catalog(),
			providers: store.Providers(),
			txManager: memory.NewTransactionManager(),
		}
	}

	// Offerings change rarely and Submit reads one on every call.
	catalog := cache.NewCachedCatalog(repos.catalog, cache.NewMemoryCache(cfg.CacheCatalogTTL, 2*cfg.CacheCatalogTTL), cfg.CacheCatalogTTL)

	publisher := events.Fanout{events.LogPublisher{}}
	if cfg.RedisAddr != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Redis = client
		publisher = append(publisher, events.NewRedisPublisher(client, cfg.NotificationChannel, cfg.GatewayChannel))
		log.Info().Str("addr", cfg.RedisAddr).Msg("Publishing events to Redis")
	}

	app.Coupons = usecase.NewCouponUsecase(repos.coupons, publisher, nil)
	app.Settlement = usecase.NewSettlementUsecase(
		repos.payments, repos.requests, repos.providers, catalog, app.Coupons,
		repos.txManager, publisher, nil,
		usecase.SettlementConfig{
			DefaultCommissionPercentage: cfg.DefaultCommissionPercentage,
			DefaultCurrency:             cfg.DefaultCurrency,
			EscrowHoldPeriod:            cfg.EscrowHoldPeriod,
		},
	)
	app.Lifecycle = usecase.NewLifecycleUsecase(repos.requests, catalog, app.Settlement, publisher, nil)
	app.Ratings = usecase.NewRatingUsecase(repos.reviews, repos.requests, publisher, nil)
	return app, nil
}

// Ping checks every connected backend.
func (a *App) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if a.Pool != nil {
		if err := a.Pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Get().Warn().Err(err).Msg("Closing Redis client")
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
