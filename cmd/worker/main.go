package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/promptkeeper/internal/config"
	"github.com/nikhilbhutani/promptkeeper/internal/logger"
	"github.com/nikhilbhutani/promptkeeper/internal/queue"
	"github.com/nikhilbhutani/promptkeeper/internal/queue/workers"
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
	if cfg.Database.URL == "" {
		slog.Error("DATABASE_URL is required: the worker must share the API's record store")
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
	svc := services.New(cfg, backends.Store, services.Options{Dispatcher: dispatcher})

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				queue.QueueDefault: 1,
			},
			ShutdownTimeout: 30 * time.Second,
		},
	)

	registry := queue.NewHandlersRegistry()

	// Register workers
	bulkWorker := workers.NewBulkWorker(svc.Bulk, svc.Identity)
	registry.Register(queue.TypeBulkExecute, asynq.HandlerFunc(bulkWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", cfg.Worker.Concurrency)
	runErr := srv.Run(registry.Mux())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Close(shutdownCtx); err != nil {
		slog.Error("flush usage events", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		slog.Error("drain webhook deliveries", "error", err)
	}
	if runErr != nil {
		slog.Error("worker error", "error", runErr)
		os.Exit(1)
	}
}
