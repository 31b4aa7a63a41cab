// Package jobs is the durable background job engine: a Postgres-backed
// queue with SKIP LOCKED claims, a polling worker pool with retry backoff,
// and a daily scheduler for maintenance jobs.
package jobs

import (
	"time"
)

// Job status lifecycle: pending -> processing -> completed | pending
// (retry) | dead.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDead       Status = "dead"
)

// Job type names known to the engine.
const (
	TypeReminderFire      = "reminder_fire"
	TypeStreakCalculate   = "streak_calculate"
	TypeCreditExpire      = "credit_expire"
	TypeSubscriptionCheck = "subscription_check"
	TypeRecurringGenerate = "recurring_task_generate"
	TypeActivityCleanup   = "activity_cleanup"
)

// Outcome is what a handler reports back to the worker loop.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeRetry   Outcome = "retry"
	OutcomeError   Outcome = "error"
)

// backoffSchedule holds the retry delays for attempts 1..5. Attempts past
// the table reuse the last entry.
var backoffSchedule = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
	1800 * time.Second,
	3600 * time.Second,
}

func backoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(backoffSchedule) {
		attempt = len(backoffSchedule)
	}
	return backoffSchedule[attempt-1]
}

// Job is one queue entry.
type Job struct {
	ID          string
	Type        string
	Payload     []byte
	Status      Status
	ScheduledAt time.Time
	Attempts    int
	MaxAttempts int
	LockedAt    *time.Time
	LockedBy    *string
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
