// Package main runs the token dashboard service: background market-data
// refresh, the REST and websocket API, and server-side chart rendering.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/TokenPulse/dashboard_core/internal/app"
	"github.com/TokenPulse/dashboard_core/internal/config"
	"github.com/TokenPulse/dashboard_core/pkg/logger"
)

func main() {
	// A local .env is optional; deployments configure the environment
	// directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("dashboard").WithError(err).Error("load configuration")
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Name:   "dashboard",
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	application, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Error("initialise application")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}
	log.WithField("port", cfg.Server.Port).Info("dashboard started")

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
		os.Exit(1)
	}
	log.Info("dashboard stopped")
}
