package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/sourcelane/negotiator-backend/api/controllers"
	"github.com/sourcelane/negotiator-backend/api/routes"
	"github.com/sourcelane/negotiator-backend/internal/negotiation"
	"github.com/sourcelane/negotiator-backend/pkg/config"
	"github.com/sourcelane/negotiator-backend/pkg/db"
	"github.com/sourcelane/negotiator-backend/pkg/env"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
	"github.com/sourcelane/negotiator-backend/pkg/migrate"
	"github.com/sourcelane/negotiator-backend/pkg/outbox"
	"github.com/sourcelane/negotiator-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

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
		closeErr := multierr.Combine(redisClient.Close(), dbClient.Close())
		if closeErr != nil {
			logg.Error(context.Background(), "error closing dependencies", closeErr)
		}
	}()

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	negotiationService := negotiation.NewService(negotiation.NewRepository(dbClient.DB()), dbClient, outboxService, logg)

	liveSource, err := negotiation.NewLiveStreamSource(redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create live stream source", err)
		os.Exit(1)
	}
	sessions := controllers.StreamFactory(func(negotiationID uuid.UUID) (*negotiation.Session, error) {
		return negotiation.NewSession(negotiationID, negotiation.SessionParams{
			Snapshots: negotiationService,
			Streams:   liveSource,
			Logger:    logg,
		})
	})

	readiness := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, readiness, negotiationService, sessions),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
