package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"dormy/internal/audit"
	"dormy/internal/config"
	"dormy/internal/core"
	"dormy/internal/finance"
	"dormy/internal/semester"
	"dormy/internal/storage"
)

// allowAllRoles backs the ops entrypoint, which runs with operator
// authority; deployments sitting behind a request layer plug in their
// own resolver.
type allowAllRoles struct{}

func (allowAllRoles) RoleOf(context.Context, int64, int64) (string, error) {
	return semester.RoleAdmin, nil
}

func main() {
	// Load .env file for local development (ignore errors in production)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var sink semester.AuditSink = audit.NopSink{}
	if cfg.AMQPURL != "" {
		amqpSink, err := audit.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP audit sink", "error", err)
			os.Exit(1)
		}
		defer amqpSink.Close()
		sink = amqpSink
		logger.Info("AMQP audit sink initialized", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("Audit publishing disabled - no AMQP_URL provided")
	}

	ctx := context.Background()
	scope := semester.DormScope(cfg.DormID)

	coordinator := semester.NewCoordinator(repo, allowAllRoles{}, sink)
	sem, err := coordinator.EnsureActiveSemester(ctx, scope, core.Today())
	if err != nil {
		logger.Error("Failed to ensure active semester", "error", err, "dorm_id", cfg.DormID)
		os.Exit(1)
	}
	logger.Info("Active semester", "semester_id", sem.ID, "label", sem.Label(),
		"starts_on", sem.StartsOn.String(), "ends_on", sem.EndsOn.String())

	svc := finance.NewService(repo, repo)
	balance, err := svc.OutstandingBalances(ctx, cfg.DormID, nil)
	if err != nil {
		logger.Error("Failed to summarize outstanding balances", "error", err, "dorm_id", cfg.DormID)
		os.Exit(1)
	}

	fmt.Printf("Outstanding balances for dorm %d\n", cfg.DormID)
	fmt.Printf("  maintenance fee: %s\n", balance.MaintenanceFee)
	fmt.Printf("  sa fines:        %s\n", balance.SAFines)
	fmt.Printf("  contributions:   %s\n", balance.Contributions)
	fmt.Printf("  total:           %s\n", balance.Total)

	recent, err := repo.RecentAuditEvents(ctx, cfg.DormID, 10)
	if err != nil {
		logger.Error("Failed to read audit journal", "error", err)
		os.Exit(1)
	}
	if len(recent) > 0 {
		fmt.Println("Recent staff actions")
		for _, ev := range recent {
			fmt.Printf("  %s  %s %s/%d by actor %d\n",
				ev.OccurredAt.Format("2006-01-02 15:04"), ev.Action, ev.EntityType, ev.EntityID, ev.ActorID)
		}
	}
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
