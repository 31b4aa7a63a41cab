package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"taskhive/internal/achievement"
	"taskhive/internal/activity"
	"taskhive/internal/ai"
	"taskhive/internal/auth"
	"taskhive/internal/billing"
	"taskhive/internal/config"
	"taskhive/internal/credit"
	"taskhive/internal/events"
	"taskhive/internal/jobs"
	"taskhive/internal/logging"
	"taskhive/internal/note"
	"taskhive/internal/notify"
	"taskhive/internal/observability"
	"taskhive/internal/postgres"
	serverhttp "taskhive/internal/server/http"
	"taskhive/internal/task"
	"taskhive/internal/user"
)

// app holds the fully wired object graph shared by serve and worker.
type app struct {
	cfg     config.Config
	logger  logging.Logger
	pool    *pgxpool.Pool
	metrics *observability.MetricsCollector

	handler   http.Handler
	worker    *jobs.Worker
	scheduler *jobs.Scheduler
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// buildApp wires every store, service, and handler. Event bus registration
// order matters: the activity writer subscribes first so the audit row is
// written before any downstream handler can fail the transaction.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	obsLogger := observability.NewLogger(observability.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logging.SetDefault(obsLogger)
	logger := logging.NewComponentLogger("app")

	metrics, err := observability.NewMetricsCollector(observability.MetricsConfig{Enabled: cfg.MetricsEnabled})
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	a := &app{cfg: cfg, logger: logger, pool: pool, metrics: metrics}
	if err := a.wire(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, pool, logger := a.cfg, a.pool, a.logger

	userStore, err := user.NewStore(pool)
	if err != nil {
		return err
	}
	taskStore, err := task.NewStore(pool)
	if err != nil {
		return err
	}
	noteStore, err := note.NewStore(pool)
	if err != nil {
		return err
	}
	notifyStore, err := notify.NewStore(pool)
	if err != nil {
		return err
	}
	creditStore, err := credit.NewStore(pool)
	if err != nil {
		return err
	}
	billingStore, err := billing.NewStore(pool)
	if err != nil {
		return err
	}
	activityStore, err := activity.NewStore(pool)
	if err != nil {
		return err
	}

	bus := events.NewBus(logger, a.metrics)
	activityWriter := activity.NewWriter(activityStore)
	activityWriter.Register(bus)

	engine, err := achievement.NewEngine(ctx, pool, achievement.NewStore(), bus, cfg.Limits, logger)
	if err != nil {
		return fmt.Errorf("load achievement definitions: %w", err)
	}
	engine.Register(bus)

	queue, err := jobs.NewQueue(pool, cfg.Worker.MaxAttempts)
	if err != nil {
		return err
	}

	tasks, err := task.NewService(pool, taskStore, userStore, engine, bus, queue, logger, a.metrics)
	if err != nil {
		return err
	}
	tasks.Register(bus)

	notes, err := note.NewService(pool, noteStore, userStore, engine, bus)
	if err != nil {
		return err
	}

	pushSender := notify.NewPushSender(notifyStore, logger)
	notifier, err := notify.NewService(pool, notifyStore, taskStore, pushSender, logger)
	if err != nil {
		return err
	}
	notifier.Register(bus)

	credits, err := credit.NewService(pool, creditStore, cfg.Credits, logger, a.metrics)
	if err != nil {
		return err
	}

	var gateway billing.Gateway
	if cfg.BillingGatewayURL != "" {
		gateway, err = billing.NewHTTPGateway(cfg.BillingGatewayURL, cfg.BillingGatewayKey)
		if err != nil {
			return err
		}
	}
	subscriptions, err := billing.NewService(pool, billingStore, userStore, credits, notifier, bus, gateway, cfg.WebhookSecret, logger)
	if err != nil {
		return err
	}

	vendor := ai.Disabled()
	if cfg.AIBaseURL != "" {
		vendor, err = ai.NewHTTPVendor(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIChatTimeout, cfg.AITranscribeTimeout)
		if err != nil {
			return err
		}
	}
	assistant, err := ai.NewService(pool, vendor, credits, tasks, notes, userStore, activityStore, bus, logger)
	if err != nil {
		return err
	}

	keys, err := auth.LoadOrCreateKeypair(cfg.KeysDir)
	if err != nil {
		return fmt.Errorf("load signing keys: %w", err)
	}
	verifier, err := auth.NewGoogleVerifier(cfg.GoogleClientID, cfg.GoogleJWKSURL, cfg.GoogleIssuers)
	if err != nil {
		return err
	}
	authStore, err := auth.NewStore(pool)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(pool, authStore, userStore, credits, verifier, keys,
		cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, logger)
	if err != nil {
		return err
	}

	worker, err := jobs.NewWorker(queue, cfg.Worker, logging.NewComponentLogger("worker"), a.metrics)
	if err != nil {
		return err
	}
	jobs.RegisterHandlers(worker, jobs.Deps{
		DB:           pool,
		Tasks:        tasks,
		Notify:       notifier,
		Achievements: engine,
		Credits:      credits,
		Billing:      subscriptions,
		Activity:     activityWriter,
		Users:        userStore,
		CreditCfg:    cfg.Credits,
		Logger:       logging.NewComponentLogger("worker"),
	})
	scheduler, err := jobs.NewScheduler(queue, logging.NewComponentLogger("scheduler"))
	if err != nil {
		return err
	}

	handlers, err := serverhttp.NewHandlers(serverhttp.HandlerDeps{
		DB:           pool,
		Auth:         authSvc,
		Users:        userStore,
		Tasks:        tasks,
		Notes:        notes,
		Notify:       notifier,
		NotifyStore:  notifyStore,
		Credits:      credits,
		Billing:      subscriptions,
		Assistant:    assistant,
		Achievements: engine,
		Activity:     activityStore,
		Logger:       logging.NewComponentLogger("http"),
	})
	if err != nil {
		return err
	}
	idempotency, err := serverhttp.NewIdempotencyStore(pool)
	if err != nil {
		return err
	}

	a.handler = serverhttp.Router(serverhttp.RouterDeps{
		Handlers:    handlers,
		Auth:        authSvc,
		Idempotency: idempotency,
		Metrics:     a.metrics,
		Config:      cfg,
		Logger:      logging.NewComponentLogger("http"),
	})
	a.worker = worker
	a.scheduler = scheduler
	return nil
}
