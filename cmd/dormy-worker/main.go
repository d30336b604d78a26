package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"dormy/internal/audit"
	"dormy/internal/config"
	"dormy/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting dormy-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the audit journal worker")
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	sink, err := audit.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := audit.NewJournalWorker(repo)
	if err := worker.StartupCheck(ctx); err != nil {
		logger.Error("Startup journal check failed", "error", err)
		// Keep going; the consumer loop can still make progress.
	}

	go func() {
		err := sink.Consume(ctx, func(ev audit.Event) error {
			return worker.HandleEvent(ctx, ev)
		})
		if err != nil && err != context.Canceled {
			logger.Error("Audit event consumption failed", "error", err)
		}
		cancel()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Worker shutdown complete")
}
