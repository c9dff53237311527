// Package main is the entry point for the Loradex recommendation service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/loradex/loradex/internal/compute"
	"github.com/loradex/loradex/internal/config"
	"github.com/loradex/loradex/internal/embedder"
	"github.com/loradex/loradex/internal/encoder"
	"github.com/loradex/loradex/internal/engine"
	"github.com/loradex/loradex/internal/events"
	"github.com/loradex/loradex/internal/features"
	"github.com/loradex/loradex/internal/metrics"
	"github.com/loradex/loradex/internal/persist"
	"github.com/loradex/loradex/internal/recommend"
	"github.com/loradex/loradex/internal/server"
	"github.com/loradex/loradex/internal/store"
	"github.com/loradex/loradex/internal/trigger"
)

func main() {
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if os.Getenv("LORADEX_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	// NATS is optional: with no URL configured the publisher stays nil and
	// every publish is a no-op.
	var natsClient *events.Client
	var publisher *events.Publisher
	if cfg.NatsURL != "" {
		natsClient, err = events.NewClient(cfg.NatsURL, logger)
		if err != nil {
			logger.Warn("NATS unavailable, events disabled", "error", err)
		} else {
			defer natsClient.Close()
			publisher = events.NewPublisher(natsClient, logger)
		}
	}

	registry := encoder.NewRegistry(encoder.Options{
		SidecarURL: cfg.SidecarURL,
		Device:     cfg.Device,
	}, logger)

	repo := store.NewRepo(db)
	emb := embedder.New(registry, logger)
	extractor := features.NewExtractor()
	resolver := trigger.NewResolver(nil)
	orchestrator := compute.New(repo, emb, extractor, resolver, logger)
	eng := engine.New(emb, cfg.BatchSize, logger)
	manager := persist.NewManager(eng, repo, cfg.IndexPath, cfg.CacheDir, logger)
	triggers := trigger.NewIndex(recommend.NewTriggerSource(repo), resolver, emb, logger)
	tracker := metrics.NewTracker()

	if err := manager.Load(); err != nil {
		logger.Warn("index snapshot load failed, starting empty", "error", err)
	}

	svc := recommend.NewService(recommend.Options{
		Repo:        repo,
		Feedback:    repo.Feedback,
		Computer:    orchestrator,
		Manager:     manager,
		Embedder:    emb,
		Engine:      eng,
		Triggers:    triggers,
		Tracker:     tracker,
		Publisher:   publisher,
		Logger:      logger,
		BatchSize:   cfg.BatchSize,
		WorkerSlots: cfg.WorkerSlots,
	})

	if cfg.RefreshInterval > 0 {
		go refreshLoop(ctx, svc, cfg.RefreshInterval, logger)
	}

	srv := server.New(cfg, db, svc, natsClient, registry.Device(), logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Router,
	}

	go func() {
		logger.Info("loradex listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	logger.Info("loradex stopped")
}

// refreshLoop periodically computes missing embeddings and appends the new
// adapters to the similarity index, so the index tracks catalog growth
// between full rebuilds.
func refreshLoop(ctx context.Context, svc *recommend.Service, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := svc.SyncIncremental(ctx)
			if err != nil {
				logger.Warn("incremental index sync", "error", err)
				continue
			}
			if summary.Processed > 0 {
				logger.Info("incremental index sync", "embedded", summary.Processed, "errors", summary.ErrorCount)
			}
		}
	}
}
