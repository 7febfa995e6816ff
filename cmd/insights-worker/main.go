// The insights-worker consumes expense events from the AMQP bus. Each event
// refreshes the owner's challenge progress, and created expenses are
// optionally mirrored to a Google Sheet for out-of-app reporting.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/config"
	"fintrack/internal/events"
	"fintrack/internal/export/gsheet"
	"fintrack/internal/llm"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting insights-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the insights-worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	eventsClient, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", log.FieldError, err)
		os.Exit(1)
	}
	defer eventsClient.Close()

	var mirror *gsheet.Mirror
	if cfg.GoogleSpreadsheetID != "" {
		mirror, err = gsheet.NewMirror(context.Background(), gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize spreadsheet mirror", log.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Spreadsheet mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Spreadsheet mirror disabled - no GOOGLE_SPREADSHEET_ID")
	}

	var completer services.Completer
	if cfg.LLMAPIKey != "" {
		if client, err := llm.NewClient(llm.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMTimeout,
		}); err == nil {
			completer = client
		}
	}
	challenges := services.NewChallengeService(repo, completer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle := func(msg *events.ExpenseEventMessage) error {
		handleCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		if _, err := challenges.CheckProgress(handleCtx, msg.OwnerID, time.Now()); err != nil {
			return err
		}

		if mirror != nil && msg.Action != events.ActionDeleted {
			expense, err := repo.GetExpense(handleCtx, msg.OwnerID, msg.ExpenseID)
			if err != nil {
				// Deleted between publish and consume; nothing to mirror.
				if errors.Is(err, storage.ErrNotFound) {
					return nil
				}
				return err
			}
			if err := mirror.AppendExpense(handleCtx, *expense, msg.Action); err != nil {
				logger.Warn("Spreadsheet mirror failed", log.FieldError, err, log.FieldExpenseID, msg.ExpenseID)
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := eventsClient.ConsumeExpenseEvents(ctx, handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	logger.Info("Consuming expense events", "queue", cfg.AMQPQueue)
	if err := g.Wait(); err != nil {
		logger.Error("Worker exited with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("insights-worker stopped")
}
