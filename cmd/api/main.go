package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilbhutani/promptkeeper/internal/api"
	"github.com/nikhilbhutani/promptkeeper/internal/api/handlers"
	"github.com/nikhilbhutani/promptkeeper/internal/config"
	"github.com/nikhilbhutani/promptkeeper/internal/llm"
	"github.com/nikhilbhutani/promptkeeper/internal/logger"
	"github.com/nikhilbhutani/promptkeeper/internal/queue"
	"github.com/nikhilbhutani/promptkeeper/internal/services"
	"github.com/nikhilbhutani/promptkeeper/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if _, err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		slog.Error("failed to init logger", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	backends, err := services.OpenBackends(ctx, cfg)
	if err != nil {
		slog.Error("failed to open backends", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	dispatcher := webhook.NewDispatcher(webhook.DispatcherOptions{
		QueueSize: cfg.Webhook.QueueSize,
		Attempts:  uint(max(cfg.Webhook.MaxAttempts, 1)),
	})

	gateway := llm.NewGateway(cfg.LLM)
	if !gateway.Available() {
		slog.Warn("no LLM provider configured, prompt optimization disabled")
	}

	svc := services.New(cfg, backends.Store, services.Options{
		Dispatcher: dispatcher,
		LLM:        gateway,
	})

	// Bulk operations run inline without Redis.
	var bulkQueue handlers.BulkQueue
	if backends.Redis != nil {
		qc := queue.NewClient(cfg.Redis)
		defer qc.Close()
		bulkQueue = qc
	}

	router := api.NewRouter(cfg, svc, backends.DB, backends.Redis, bulkQueue)
	handler := router.Setup()

	stopCleanup := make(chan struct{})
	go router.RateLimiter().Cleanup(stopCleanup)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	close(stopCleanup)
	if err := svc.Close(shutdownCtx); err != nil {
		slog.Error("flush usage events", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		slog.Error("drain webhook deliveries", "error", err)
	}
	slog.Info("server stopped")
}
