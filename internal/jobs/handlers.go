package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskhive/internal/achievement"
	"taskhive/internal/activity"
	"taskhive/internal/billing"
	"taskhive/internal/config"
	"taskhive/internal/credit"
	"taskhive/internal/logging"
	"taskhive/internal/notify"
	"taskhive/internal/postgres"
	"taskhive/internal/task"
	"taskhive/internal/user"
)

const (
	reminderBatchSize = 100
	expiryBatchSize   = 500
	sweepBatchSize    = 200
	cleanupBatchSize  = 1000
)

// Deps carries the services the built-in handlers drive.
type Deps struct {
	DB           postgres.DB
	Tasks        *task.Service
	Notify       *notify.Service
	Achievements *achievement.Engine
	Credits      *credit.Service
	Billing      *billing.Service
	Activity     *activity.Writer
	Users        *user.Store
	CreditCfg    config.CreditConfig
	Logger       logging.Logger
}

// RegisterHandlers binds every built-in job type on the worker.
func RegisterHandlers(w *Worker, deps Deps) {
	logger := logging.OrNop(deps.Logger)

	w.Register(TypeReminderFire, func(ctx context.Context, _ []byte) (Outcome, error) {
		fired, err := deps.Notify.FireDue(ctx, reminderBatchSize)
		if err != nil {
			return OutcomeError, err
		}
		if fired > 0 {
			logger.Info("fired %d reminders", fired)
		}
		return OutcomeSuccess, nil
	})

	w.Register(TypeStreakCalculate, func(ctx context.Context, _ []byte) (Outcome, error) {
		reset, err := deps.Achievements.ResetBrokenStreaks(ctx, deps.DB, time.Now().UTC())
		if err != nil {
			return OutcomeError, err
		}
		logger.Info("streak sweep reset %d streaks", reset)
		return OutcomeSuccess, nil
	})

	w.Register(TypeCreditExpire, func(ctx context.Context, _ []byte) (Outcome, error) {
		expired, err := deps.Credits.ExpireDue(ctx, expiryBatchSize)
		if err != nil {
			return OutcomeError, err
		}
		logger.Info("expired %d credit grants", expired)
		return OutcomeSuccess, grantDailyCredits(ctx, deps, logger)
	})

	w.Register(TypeSubscriptionCheck, func(ctx context.Context, _ []byte) (Outcome, error) {
		expired, err := deps.Billing.CheckExpiries(ctx, sweepBatchSize)
		if err != nil {
			return OutcomeError, err
		}
		if expired > 0 {
			logger.Info("expired %d subscriptions", expired)
		}
		return OutcomeSuccess, nil
	})

	w.Register(TypeRecurringGenerate, func(ctx context.Context, payload []byte) (Outcome, error) {
		var p task.RecurringGeneratePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return OutcomeError, fmt.Errorf("decode recurring payload: %w", err)
		}
		generated, err := deps.Tasks.GenerateInstance(ctx, p.TemplateID)
		if err != nil {
			return OutcomeError, err
		}
		if !generated {
			return OutcomeSkipped, nil
		}
		return OutcomeSuccess, nil
	})

	w.Register(TypeActivityCleanup, func(ctx context.Context, _ []byte) (Outcome, error) {
		deleted, err := deps.Activity.CleanupOnce(ctx, cleanupBatchSize)
		if err != nil {
			return OutcomeError, err
		}
		logger.Info("activity cleanup removed %d rows", deleted)
		return OutcomeSuccess, nil
	})
}

// grantDailyCredits hands each pro user their daily allowance, including any
// unlocked daily_credits perk. Same-day duplicates are schema-level no-ops,
// so a retried job never double-grants.
func grantDailyCredits(ctx context.Context, deps Deps, logger logging.Logger) error {
	ids, err := deps.Users.ListIDsByTier(ctx, deps.DB, user.TierPro)
	if err != nil {
		return err
	}
	for _, id := range ids {
		limits, err := deps.Achievements.EffectiveLimits(ctx, deps.DB, id, user.TierPro)
		if err != nil {
			logger.Error("resolve limits for daily grant: user=%s err=%v", id, err)
			continue
		}
		amount := deps.CreditCfg.DailyAmount + limits.DailyCredits
		if err := deps.Credits.GrantDaily(ctx, deps.DB, id, amount); err != nil {
			logger.Error("daily grant failed: user=%s err=%v", id, err)
		}
	}
	return nil
}
