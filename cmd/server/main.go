// Package main is the entry point for the PulseCheck server.
//
// The main package stays minimal. Its job is to:
// 1. Read configuration (environment, optionally a .env file)
// 2. Create process-wide dependencies (logger, tracing)
// 3. Start the application
//
// All actual logic lives in internal/ packages.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/pulsecheck/internal/config"
	"github.com/sakif/pulsecheck/internal/server"
	"github.com/sakif/pulsecheck/internal/telemetry"
)

func main() {
	// === 1. READ CONFIGURATION ===
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Log levels (from least to most severe): Debug → Info → Warn → Error.
	// PULSECHECK_LOG_FORMAT=json switches to one JSON object per line for
	// log shippers.
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	// === 3. TRACING ===
	// No-op unless PULSECHECK_OTEL_ENDPOINT is set.
	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.OTelTarget)
	if err != nil {
		logger.Error("failed to set up tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// === 4. DATABASE DIRECTORY ===
	// os.MkdirAll is `mkdir -p`. The SQLite file itself is created on open.
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
