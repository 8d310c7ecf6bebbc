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

	"github.com/couchcryptid/meteo-etl-service/internal/adapter/feed"
	"github.com/couchcryptid/meteo-etl-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/meteo-etl-service/internal/adapter/sqlite"
	"github.com/couchcryptid/meteo-etl-service/internal/config"
	"github.com/couchcryptid/meteo-etl-service/internal/observability"
	"github.com/couchcryptid/meteo-etl-service/internal/pipeline"
	"github.com/couchcryptid/meteo-etl-service/internal/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := sqlite.Migrate(ctx, db, logger); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	store := sqlite.NewStore(db)
	fetcher := feed.NewFetcher(feed.OptionsFromConfig(cfg), metrics, logger)
	ingestor := pipeline.NewIngestor(store, fetcher, pipeline.IngestOptionsFromConfig(cfg), logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, ingestor, ingestor, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the ingestion schedule; the first run begins immediately.
	sched := scheduler.New(cfg.FetchInterval, logger)
	if err := sched.Start(ctx, "ingest", ingestor.RunScheduled); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sched.Stop()

	logger.Info("shutdown complete")
}
