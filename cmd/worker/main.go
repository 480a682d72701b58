// The delivery worker drains queued outbox rows to Kafka. It runs separately
// from the ingestor so delivery backpressure never slows ingestion.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/storm-alert-triage/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-alert-triage/internal/adapter/kafka"
	"github.com/couchcryptid/storm-alert-triage/internal/config"
	"github.com/couchcryptid/storm-alert-triage/internal/observability"
	"github.com/couchcryptid/storm-alert-triage/internal/outbox"
	"github.com/couchcryptid/storm-alert-triage/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)

	db, err := store.Open(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sender := kafkaadapter.NewSender(cfg, logger)
	defer func() {
		if err := sender.Close(); err != nil {
			logger.Error("kafka sender close error", "error", err)
		}
	}()

	worker := outbox.NewWorker(db, sender, cfg.WorkerPollInterval, cfg.WorkerBatchSize, logger)

	// Operational routes only: health, readiness, metrics scrape.
	srv := httpadapter.NewServer(cfg.HTTPAddr, db, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
