package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowdeck/flowdeck/internal/catalog"
	"github.com/flowdeck/flowdeck/internal/engine"
	"github.com/flowdeck/flowdeck/internal/logging"
	"github.com/flowdeck/flowdeck/internal/profiles"
	"github.com/flowdeck/flowdeck/internal/scheduler"
	"github.com/flowdeck/flowdeck/internal/store"
	"github.com/flowdeck/flowdeck/plugins"
)

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("flowdeck exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.slogLevel()}
	var inner slog.Handler
	if cfg.LogFormat == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(logging.NewCorrelationHandler(inner))
}

func run(cfg Config, logger *slog.Logger) error {
	ctx := context.Background()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	registry := catalog.NewRegistry()
	if err := plugins.RegisterAll(registry); err != nil {
		return fmt.Errorf("register built-in plugins: %w", err)
	}

	reconciler := catalog.NewReconciler(st, registry, cfg.DefinitionsDir, logger)
	resolver := profiles.NewResolver(st, reconciler, cfg.CentralEnvPath, logger)
	hub := engine.NewLogHub(cfg.logRetention())
	executor := engine.NewExecutor(st, reconciler, resolver, hub, logger)
	sched := scheduler.NewScheduler(st, executor, logger)

	if err := reconciler.Reconcile(ctx); err != nil {
		return fmt.Errorf("initial reconcile: %w", err)
	}
	if err := sched.ScheduleAll(ctx); err != nil {
		return fmt.Errorf("arm schedules: %w", err)
	}
	if err := sched.Start(); err != nil {
		return err
	}

	logger.Info("flowdeck started",
		"db", cfg.DBPath,
		"definitions", cfg.DefinitionsDir,
		"workflows", len(reconciler.Workflows()),
		"tools", len(reconciler.Tools()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", "signal", s.String())

	if err := sched.Stop(); err != nil {
		logger.Error("scheduler stop failed", "error", err)
	}
	hub.Close()
	return nil
}
