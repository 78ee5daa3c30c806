package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/meridianapps/resilience-core/internal/api"
	"github.com/meridianapps/resilience-core/internal/config"
	"github.com/meridianapps/resilience-core/internal/core"
	"github.com/meridianapps/resilience-core/internal/heal"
	"github.com/meridianapps/resilience-core/internal/metrics"
	"github.com/meridianapps/resilience-core/internal/remote"
	"github.com/meridianapps/resilience-core/internal/snapshot"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting resilience telemetry core")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"http_addr", cfg.HTTPAddr,
		"nats_url", cfg.NATSURL,
		"pg_enabled", cfg.PostgresEnabled(),
		"tenant_id", cfg.TenantID,
		"state_dir", cfg.StateDir,
		"dedup_window", cfg.DedupWindow,
		"rotation_period", cfg.RotationPeriod)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Remote collaborators are all optional: without them the core runs
	// local-only and stays fully functional.
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.MaxReconnects(-1))
		if err != nil {
			logger.Warn("NATS unavailable, push stream disabled", "error", err)
		} else {
			defer nc.Close()
			logger.Info("connected to NATS")
		}
	}

	var audit remote.AuditStore
	if cfg.PostgresEnabled() {
		pg, err := remote.NewPostgresStore(cfg.PGHost, cfg.PGPort, cfg.PGUser, cfg.PGPassword, cfg.PGDatabase, logger)
		if err != nil {
			logger.Warn("audit store unavailable, running local-only", "error", err)
		} else {
			audit = pg
			defer pg.Close()
			logger.Info("connected to audit store")
		}
	}

	snapshots, err := snapshot.NewStore(cfg.StateDir, logger)
	if err != nil {
		logger.Error("failed to initialize state dir", "error", err)
		os.Exit(1)
	}

	rules := heal.DefaultRules()
	if cfg.RulesFile != "" {
		loaded, err := heal.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			logger.Warn("failed to load remediation rules, using defaults", "error", err)
		} else {
			rules = loaded
			logger.Info("loaded remediation rules", "count", len(rules))
		}
	}

	promMetrics := metrics.NewMetrics()

	c := core.New(core.Options{
		NATS:            nc,
		Audit:           audit,
		Snapshots:       snapshots,
		Subject:         cfg.Subject(),
		DedupWindow:     cfg.DedupWindow,
		Rotation:        cfg.RotationPeriod,
		Rules:           rules,
		EntryCap:        cfg.EntryCap,
		InterventionCap: cfg.InterventionCap,
		Metrics:         promMetrics,
		Logger:          logger,
	})
	defer c.Close()

	c.Start(ctx)

	server, err := api.NewServer(c, logger)
	if err != nil {
		logger.Error("failed to build HTTP server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}

	logger.Info("resilience telemetry core stopped")
}
