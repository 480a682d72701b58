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
	"github.com/couchcryptid/storm-alert-triage/internal/adapter/mapbox"
	"github.com/couchcryptid/storm-alert-triage/internal/config"
	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/feed"
	"github.com/couchcryptid/storm-alert-triage/internal/geo"
	"github.com/couchcryptid/storm-alert-triage/internal/lsr"
	"github.com/couchcryptid/storm-alert-triage/internal/observability"
	"github.com/couchcryptid/storm-alert-triage/internal/outbox"
	"github.com/couchcryptid/storm-alert-triage/internal/pipeline"
	"github.com/couchcryptid/storm-alert-triage/internal/store"
	"github.com/couchcryptid/storm-alert-triage/internal/triage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	db, err := store.Open(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Geocode fallback is feature-flagged via INFER_ZIP_GEOCODE / MAPBOX_TOKEN.
	var geocoder domain.Geocoder
	if cfg.GeocodeEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize)
		logger.Info("geocode fallback enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("geocode fallback disabled")
	}

	feedClient := feed.NewClient(cfg, logger)
	resolver := geo.NewResolver(cfg, db, db, feedClient, geocoder, logger, metrics)
	engine := lsr.NewEngine(cfg, feedClient, db, logger, metrics)
	rechecker := lsr.NewRechecker(cfg, engine, db, logger, metrics)

	p := pipeline.New(cfg, feedClient, resolver, engine, db, logger, metrics)
	recheckLoop := pipeline.NewRecheckLoop(rechecker, p, db, cfg.RecheckInterval, logger, metrics)

	thresholds := triage.Thresholds{
		HailInches:        cfg.InterestingHailInches,
		WindMPH:           cfg.InterestingWindMPH,
		FreezeRareRegions: cfg.FreezeRareRegions,
	}
	deliveries := outbox.NewService(db, thresholds, logger, metrics)

	api := httpadapter.NewAPI(db, deliveries, cfg.BulkMax, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, api, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	go func() {
		if err := recheckLoop.Run(ctx); err != nil {
			logger.Error("recheck loop error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
