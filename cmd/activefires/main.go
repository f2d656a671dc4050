package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/adybbroe/activefires-pp/internal/adapter/http"
	kafkaadapter "github.com/adybbroe/activefires-pp/internal/adapter/kafka"
	"github.com/adybbroe/activefires-pp/internal/config"
	"github.com/adybbroe/activefires-pp/internal/geometry"
	"github.com/adybbroe/activefires-pp/internal/identity"
	"github.com/adybbroe/activefires-pp/internal/observability"
	"github.com/adybbroe/activefires-pp/internal/output"
	"github.com/adybbroe/activefires-pp/internal/pipeline"
)

// identityCacheSize bounds the in-memory layer over the identity
// database. Passes rarely carry more than a few hundred detections.
const identityCacheSize = 4096

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	processing, err := config.LoadProcessing(cfg.ProcessingConfigPath)
	if err != nil {
		logger.Error("failed to load processing config", "path", cfg.ProcessingConfigPath, "error", err)
		os.Exit(1)
	}

	index, err := geometry.NewIndex(processing.Geometry, logger)
	if err != nil {
		logger.Error("failed to load polygon datasets", "error", err)
		os.Exit(1)
	}

	sqliteStore, err := identity.OpenSQLite(
		processing.Identity.CachePath,
		processing.Identity.ValidityWindow,
		processing.Identity.SpatialToleranceDeg,
		logger,
	)
	if err != nil {
		logger.Error("failed to open identity cache", "path", processing.Identity.CachePath, "error", err)
		os.Exit(1)
	}
	store := identity.NewCachedStore(sqliteStore,
		processing.Identity.ValidityWindow,
		processing.Identity.SpatialToleranceDeg,
		identityCacheSize,
	)

	composer, err := output.NewComposer(processing, logger)
	if err != nil {
		logger.Error("failed to set up output composer", "error", err)
		os.Exit(1)
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	processor := pipeline.NewPassProcessor(processing, index, store, composer,
		clockwork.NewRealClock(), logger, metrics)

	p := pipeline.New(reader, processor, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start admin HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start processing pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("identity cache close error", "error", err)
	}

	logger.Info("shutdown complete")
}
