// Command viflow runs the workflow engine behind an MCP stdio server.
//
// Environment:
//
//	VIFLOW_DB_PATH    libSQL database path; empty runs fully in-memory
//	VIFLOW_POOL_SIZE  max concurrent runs (default 10)
//	VIFLOW_LOG_LEVEL  debug|info|warn|error (default info)
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/autoflowai/viflow/internal/engine"
	"github.com/autoflowai/viflow/internal/logging"
	"github.com/autoflowai/viflow/internal/scheduler"
	"github.com/autoflowai/viflow/internal/store"
	"github.com/autoflowai/viflow/internal/streaming"
	"github.com/autoflowai/viflow/pkg/mcp"
)

func main() {
	logger := newLogger(os.Getenv("VIFLOW_LOG_LEVEL"))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := engine.Config{Logger: logger, Events: streaming.NewMemoryHub()}
	if v := os.Getenv("VIFLOW_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}

	var st store.Store
	if dbPath := os.Getenv("VIFLOW_DB_PATH"); dbPath != "" {
		s, err := store.NewLibSQLStore("file:" + dbPath)
		if err != nil {
			logger.Error("open store", "path", dbPath, "error", err)
			os.Exit(1)
		}
		if err := s.Migrate(ctx); err != nil {
			logger.Error("migrate store", "error", err)
			os.Exit(1)
		}
		defer s.Close()
		st = s
		cfg.Store = st
	}

	eng := engine.New(cfg)
	defer eng.Shutdown()

	if st != nil {
		sched := scheduler.NewScheduler(st, eng, logger)
		if err := sched.RecoverMissed(ctx); err != nil {
			logger.Warn("recover missed jobs", "error", err)
		}
		if err := sched.Start(ctx); err != nil {
			logger.Error("start scheduler", "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
	}

	srv, err := mcp.NewViFlowServer(mcp.ServerDeps{Engine: eng, Logger: logger})
	if err != nil {
		logger.Error("create server", "error", err)
		os.Exit(1)
	}

	logger.Info("viflow engine ready")
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// MCP owns stdout; logs go to stderr.
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
