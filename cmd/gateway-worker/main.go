package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"caconnect-backend/config"
	"caconnect-backend/internal/bootstrap"
	"caconnect-backend/internal/infrastructure/gateway"
	"caconnect-backend/pkg/logger"
)

const version = "1.0.0"

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.Env, cfg.LogLevel)
	log := logger.Get()

	if cfg.RedisAddr == "" {
		log.Fatal().Msg("REDIS_ADDR is required for the gateway worker")
	}
	if cfg.StorageDriver != config.StoragePostgres {
		log.Fatal().Msg("gateway worker needs the postgres backend shared with the API")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backends")
	}
	defer app.Close()

	refunder, err := gateway.NewStripeRefunder(cfg.StripeSecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure Stripe")
	}

	logger.ServiceStart("caconnect-gateway-worker", version, "")
	if err := gateway.NewWorker(refunder, app.Settlement).Run(ctx, app.Redis, cfg.GatewayChannel); err != nil {
		log.Error().Err(err).Msg("Gateway worker stopped")
	}
	logger.ServiceStop("caconnect-gateway-worker")
}
