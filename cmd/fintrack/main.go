package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/config"
	"fintrack/internal/events"
	apphttp "fintrack/internal/http"
	"fintrack/internal/llm"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func main() {
	// .env is for local development; absent in containers.
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

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

	// Event bus is optional; without it expense events stay local.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		eventsClient, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without event publishing", log.FieldError, err)
		} else {
			defer eventsClient.Close()
			publisher = eventsClient
			logger.Info("AMQP event bus connected", "exchange", cfg.AMQPExchange)
		}
	}

	// Completion client is optional; insight endpoints degrade without it.
	var completer services.Completer
	if cfg.LLMAPIKey != "" {
		llmClient, err := llm.NewClient(llm.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMTimeout,
		})
		if err != nil {
			logger.Warn("LLM client unavailable, insights will be degraded", log.FieldError, err)
		} else {
			completer = llmClient
		}
	} else {
		logger.Info("No LLM_API_KEY set, insights will be degraded")
	}

	srv := apphttp.NewServer(
		cfg,
		logger,
		repo,
		services.NewExpenseService(repo, publisher),
		services.NewRecurringProcessor(repo),
		services.NewForecastEngine(repo, completer, cfg.AdviceCacheTTL),
		services.NewChallengeService(repo, completer),
		services.NewAdvisor(repo, completer),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(srv.ListenAndServe)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Expired sessions pile up silently; sweep them hourly.
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				if n, err := repo.DeleteExpiredSessions(ctx, now); err != nil {
					logger.Warn("Session sweep failed", log.FieldError, err)
				} else if n > 0 {
					logger.Info("Expired sessions removed", "count", n)
				}
			}
		}
	})

	logger.Info("fintrack started", "port", cfg.Port)
	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
