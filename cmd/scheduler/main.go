package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"leadflow_backend/internal/channels"
	"leadflow_backend/internal/errtrack"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/messaging"
	"leadflow_backend/internal/notification"
	"leadflow_backend/internal/notification/outbox"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	errReporter := errtrack.New(256, log)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = errReporter.Close(closeCtx)
	}()

	taskClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer func() { _ = taskClient.Close() }()

	// Worker-side pipeline wiring (no HTTP handlers required).
	channelsModule := channels.NewModule(pool, val, log)
	leadsModule := leads.NewModule(pool, eventBus, val, log)

	messagingModule, err := messaging.NewModule(pool, channelsModule.Service(), leadsModule.Service(), taskClient, eventBus, cfg, errReporter, log)
	if err != nil {
		log.Error("failed to initialize messaging module", "error", err)
		panic("failed to initialize messaging module: " + err.Error())
	}

	notificationModule := notification.New(notification.NewMailer(cfg), outbox.New(pool), taskClient, log)
	notificationModule.RegisterHandlers(eventBus)

	sweepInterval := getDurationEnv("NOTIFICATION_OUTBOX_SWEEP_INTERVAL", time.Minute)
	go runOutboxSweep(ctx, notificationModule, sweepInterval, log)

	pipeline := messagingModule.Pipeline()
	worker, err := scheduler.NewWorker(cfg, pipeline, pipeline, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

// runOutboxSweep periodically re-dispatches pending notification deliveries
// so transient failures and queue outages drain on their own.
func runOutboxSweep(ctx context.Context, m *notification.Module, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.SweepPending(ctx); err != nil {
				log.Error("notification outbox sweep failed", "error", err)
			}
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
