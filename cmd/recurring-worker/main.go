// The recurring-worker materializes due recurring templates for every
// account on a cron schedule, so bills land in the ledger even when their
// owner never opens the app.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// announcingStore publishes a created event for each expense it writes, so
// downstream consumers see generated bills the same way as manual entries.
type announcingStore struct {
	*storage.SQLiteRepository
	publisher services.EventPublisher
	logger    *log.Logger
}

func (s *announcingStore) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	id, err := s.SQLiteRepository.CreateExpense(ctx, e)
	if err != nil || s.publisher == nil {
		return id, err
	}
	if err := s.publisher.PublishExpenseEvent(ctx, id, e.OwnerID, events.ActionCreated); err != nil {
		s.logger.Warn("Failed to publish expense event", log.FieldError, err, log.FieldExpenseID, id)
	}
	return id, nil
}

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentRoller})
	log.SetDefault(logger)

	logger.Info("Starting recurring-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		if client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue); err != nil {
			logger.Warn("AMQP unavailable, generated expenses will not be announced", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP event bus connected")
		}
	}

	processor := services.NewRecurringProcessor(&announcingStore{
		SQLiteRepository: repo,
		publisher:        publisher,
		logger:           logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweep := func() {
		now := time.Now()
		owners, err := repo.ListOwnerIDs(ctx)
		if err != nil {
			logger.Error("Failed to list owners", log.FieldError, err)
			return
		}

		total := 0
		for _, ownerID := range owners {
			n, err := processor.ProcessDue(ctx, ownerID, now)
			if err != nil {
				logger.Error("Rollover failed for owner", log.FieldError, err, log.FieldOwnerID, ownerID)
				continue
			}
			total += n
		}
		logger.Info("Rollover sweep complete", "owners", len(owners), "expenses_created", total)
	}

	// Catch up on anything that came due while the worker was down.
	sweep()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.RecurringSchedule, sweep); err != nil {
		logger.Error("Invalid recurring schedule", log.FieldError, err, "schedule", cfg.RecurringSchedule)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("Scheduler running", "schedule", cfg.RecurringSchedule)

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("Timed out waiting for running jobs")
	}
	logger.Info("recurring-worker stopped")
}
