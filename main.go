package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dpack/internal/api"
	"dpack/internal/config"
	"dpack/internal/logging"
	"dpack/internal/metrics"
	"dpack/internal/middleware"
	"dpack/internal/preview"
	"dpack/internal/session"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	previews := preview.NewRegistry(preview.Options{
		ThumbSize:  cfg.Preview.ThumbSize,
		MaxHandles: cfg.Preview.MaxHandles,
	}, logger.Logger)
	defer previews.Close()

	sessions := api.NewSessions(session.OptionsFromConfig(cfg, logger.Logger), previews)
	defer sessions.CloseAll()

	// Set up router
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheck)
	mux.Handle("GET /metrics", metrics.Handler())
	api.NewSessionHandler(sessions, previews, logger).Register(mux)

	// Apply middleware
	handler := middleware.Chain(
		mux,
		middleware.Logger(logger),
		middleware.Metrics,
		middleware.RequestID,
		middleware.Recover(logger),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server",
			zap.String("address", addr),
			zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
