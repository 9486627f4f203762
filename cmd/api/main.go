package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/affirm-gateway/api/routes"
	"github.com/angelmondragon/affirm-gateway/internal/charges"
	"github.com/angelmondragon/affirm-gateway/internal/checkout"
	"github.com/angelmondragon/affirm-gateway/internal/orders"
	"github.com/angelmondragon/affirm-gateway/pkg/affirm"
	"github.com/angelmondragon/affirm-gateway/pkg/config"
	"github.com/angelmondragon/affirm-gateway/pkg/db"
	"github.com/angelmondragon/affirm-gateway/pkg/logger"
	"github.com/angelmondragon/affirm-gateway/pkg/metrics"
	"github.com/angelmondragon/affirm-gateway/pkg/migrate"
	"github.com/angelmondragon/affirm-gateway/pkg/outbox"
	"github.com/angelmondragon/affirm-gateway/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	affirmClient, err := affirm.NewClient(context.Background(), cfg.Affirm, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap affirm client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	chargeService, err := charges.NewService(charges.ServiceParams{
		Repo:     ordersRepo,
		Gateway:  affirmClient,
		Tx:       dbClient,
		Outbox:   outboxService,
		Locker:   redisClient,
		Logger:   logg,
		Metrics:  metrics.NewChargeMetrics(registry),
		AuthOnly: cfg.Affirm.AuthOnly(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create charge service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Repo:     ordersRepo,
		Affirm:   cfg.Affirm,
		Checkout: cfg.Checkout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, ordersRepo, chargeService, checkoutService, registry),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "error during shutdown", err)
		}
	}
}
