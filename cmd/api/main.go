package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/outreach/internal/api"
	"github.com/timmy/outreach/internal/app"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/metrics"
)

func main() {
	appLogger := logger.NewFromEnv()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid config")
	}
	if cfg.Auth.JWTSecret == "" {
		appLogger.Fatal("auth.jwt_secret (JWT_SECRET) is required to serve the API")
	}

	ctx := context.Background()
	m := metrics.New()
	a, err := app.Build(ctx, cfg, app.Options{Metrics: m})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	router := api.SetupRouter(cfg, api.RouterDeps{
		Runs:    a.Orchestrator,
		Health:  a.Health,
		Metrics: m,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// In-flight stage runs are cancelled with their requests and resume
	// from the last checkpoint on the next start.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
