// Command floodmapd serves the elevation and flood-risk tile HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cipher982/floodmap/internal/artifactstore"
	"github.com/cipher982/floodmap/internal/config"
	"github.com/cipher982/floodmap/internal/engine"
	"github.com/cipher982/floodmap/internal/httpapi"
	"github.com/cipher982/floodmap/internal/loader"
	"github.com/cipher982/floodmap/internal/logging"
	"github.com/cipher982/floodmap/internal/metrics"
	"github.com/cipher982/floodmap/internal/pointsample"
	"github.com/cipher982/floodmap/internal/source"
)

type readinessChecker struct {
	sourceDir string
}

func (r readinessChecker) CheckReadiness(_ context.Context) error {
	_, err := os.Stat(r.sourceDir)
	return err
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(cfg.LogFormat, cfg.LogLevel)

	sourceFS := os.DirFS(cfg.SourceDir)
	store, err := source.New(sourceFS,
		source.WithCacheSize(cfg.SourceCacheMax),
		source.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to open source store", "error", err)
		os.Exit(1)
	}

	ld := loader.New(store)

	var artifacts *artifactstore.Store
	if cfg.PrecompressedDir != "" {
		artifacts = artifactstore.New(cfg.PrecompressedDir)
		if err := artifacts.LoadManifest(); err != nil {
			logger.Warn("failed to load precompressed manifest, continuing without it", "error", err)
		}
	}

	eng, err := engine.New(ld, artifacts, engine.Config{
		MaxZoom:        cfg.MaxZoom,
		MinWaterLevelM: cfg.MinWaterLevelM,
		MaxWaterLevelM: cfg.MaxWaterLevelM,
		ConcurrencyCap: cfg.ConcurrencyCap,
		MaxQueueLength: cfg.MaxQueueLength,
		TileCacheMax:   cfg.PNGCacheMax,
	})
	if err != nil {
		logger.Error("failed to construct engine", "error", err)
		os.Exit(1)
	}

	samples := pointsample.New(eng)

	srv := httpapi.NewServer(httpapi.Config{
		Addr:                    cfg.HTTPAddr,
		Engine:                  eng,
		Samples:                 samples,
		Metrics:                 metrics.NewMetrics(),
		Logger:                  logger,
		Ready:                   readinessChecker{sourceDir: cfg.SourceDir},
		MaxZoom:                 cfg.MaxZoom,
		PrecompressedConfigured: cfg.PrecompressedDir != "",
		RequestDeadline:         time.Duration(cfg.DeadlineMS) * time.Millisecond,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
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
