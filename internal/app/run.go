package app

import (
	"context"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/config"
)

const shutdownTimeout = 30 * time.Second

// Run builds the application and serves until SIGINT or SIGTERM
func Run(ctx context.Context, cfg *config.Config) error {
	logging.Info("Starting trigger engine",
		logging.Field{"cpus", runtime.NumCPU()},
		logging.Field{"version", Version},
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}

	serveErr := app.Serve(ctx)
	if serveErr != nil {
		logging.Error("Server stopped with error", serveErr)
	}

	logging.Info("Shutting down...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := app.Close(shutdownCtx); err != nil {
		logging.Warn("Error during app shutdown", logging.Err(err))
	}

	logging.Info("Trigger engine exited")
	return serveErr
}
