package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealpulse_backend/internal/activities"
	"dealpulse_backend/internal/crm"
	"dealpulse_backend/internal/email"
	"dealpulse_backend/internal/engine"
	"dealpulse_backend/internal/events"
	"dealpulse_backend/internal/intelligence"
	"dealpulse_backend/internal/intelligence/agent"
	"dealpulse_backend/internal/queue"
	"dealpulse_backend/internal/reprocess"
	"dealpulse_backend/internal/scheduler"
	"dealpulse_backend/migrations"
	"dealpulse_backend/platform/config"
	"dealpulse_backend/platform/db"
	"dealpulse_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	eventBus := events.NewInMemoryBus(log)

	// Operator alerts for terminal pipeline failures.
	email.NewAlertNotifier(cfg, log).Subscribe(eventBus)

	// ========================================================================
	// Intelligence Pipeline
	// ========================================================================

	analyst, err := agent.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize analyst", "error", err)
		panic("failed to initialize analyst: " + err.Error())
	}

	queueRepo := queue.NewRepository(pool)
	intelRepo := intelligence.NewRepository(pool, activities.NewRepository(pool), crm.NewRepository(pool))
	pipeline := intelligence.NewPipeline(intelRepo, analyst, eventBus, intelligence.Options{
		FanoutLimit:   cfg.GetFanoutLimit(),
		CommitTimeout: 30 * time.Second,
	}, log)

	// ========================================================================
	// Reprocessing + Dispatch
	// ========================================================================

	wakeScheduler, closeScheduler := initWakeScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	controller := reprocess.NewController(queueRepo, intelRepo, pipeline, wakeScheduler, eventBus, cfg.GetDebounceDelay(), log)
	decisions := engine.NewDecisions(controller, pipeline, cfg.GetRealtimeWindow(), log)
	dispatcher := engine.NewDispatcher(queueRepo, decisions, controller, eventBus, engine.Options{
		PollInterval:   cfg.GetPollInterval(),
		StaleThreshold: cfg.GetStaleThreshold(),
		MaxRetries:     cfg.GetMaxEntryRetries(),
	}, log)

	// Redis wake-ups shorten pickup latency; polling alone stays correct
	// without them.
	if cfg.GetRedisURL() != "" {
		worker, err := scheduler.NewWorker(cfg, dispatcher, log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
		} else {
			go worker.Run(ctx)
		}
	} else {
		log.Warn("REDIS_URL not configured; dispatcher wake-ups disabled")
	}

	dispatcher.Run(ctx)
	log.Info("worker stopped")
}

// initWakeScheduler builds the wake client used to fire a task at each
// reprocessing entry's debounce horizon.
func initWakeScheduler(cfg *config.Config, log *logger.Logger) (reprocess.WakeScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
