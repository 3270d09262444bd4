// Command server runs the Star Blog API.
//
// All settings come from the environment (or a .env file); see
// internal/config for the full list.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/sakif/starblog/internal/config"
	"github.com/sakif/starblog/internal/logger"
	"github.com/sakif/starblog/internal/server"
)

func main() {
	os.Exit(run())
}

// run keeps deferred cleanup (Sentry flush) ahead of os.Exit.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(log)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
		}); err != nil {
			log.Error("sentry init failed", slog.String("error", err.Error()))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Info("SENTRY_DSN not set, error reporting disabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := server.New(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		return 1
	}

	// Start blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
