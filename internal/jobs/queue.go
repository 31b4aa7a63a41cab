package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"taskhive/internal/postgres"
)

// Queue persists jobs and implements the atomic claim.
type Queue struct {
	db          postgres.DB
	maxAttempts int
}

// NewQueue builds a Queue. maxAttempts <= 0 falls back to 3.
func NewQueue(db postgres.DB, maxAttempts int) (*Queue, error) {
	if db == nil {
		return nil, errors.New("job queue requires db")
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Queue{db: db, maxAttempts: maxAttempts}, nil
}

const jobColumns = `id, job_type, payload, status, scheduled_at, attempts, max_attempts, locked_at, locked_by, last_error, created_at, updated_at`

// Enqueue inserts a pending job on the caller's querier so the job commits
// with the work that scheduled it.
func (q *Queue) Enqueue(ctx context.Context, querier postgres.Querier, jobType string, payload any, runAt time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	_, err = querier.Exec(ctx, `
INSERT INTO jobs (id, job_type, payload, status, scheduled_at, max_attempts)
VALUES ($1, $2, $3, 'pending', $4, $5)`,
		uuid.NewString(), jobType, body, runAt.UTC(), q.maxAttempts)
	if err != nil {
		return fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	return nil
}

// Claim atomically takes one due pending job for workerID. Returns nil when
// the queue is empty. The inner SELECT skips rows locked by concurrent
// claims, so two workers can never take the same job.
func (q *Queue) Claim(ctx context.Context, workerID string) (*Job, error) {
	row := q.db.QueryRow(ctx, `
UPDATE jobs SET
    status = 'processing',
    locked_at = NOW(),
    locked_by = $1,
    attempts = attempts + 1,
    updated_at = NOW()
WHERE id = (
    SELECT id FROM jobs
    WHERE status = 'pending' AND scheduled_at <= NOW()
    ORDER BY scheduled_at
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
RETURNING `+jobColumns, workerID)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete marks a processing job done and records the handler's outcome.
func (q *Queue) Complete(ctx context.Context, jobID string, outcome Outcome) error {
	_, err := q.db.Exec(ctx, `
UPDATE jobs SET status = 'completed', last_error = $2, locked_at = NULL, locked_by = NULL, updated_at = NOW()
WHERE id = $1`, jobID, string(outcome))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Retry routes a failed attempt: back to pending with backoff, or to the
// dead letter state once attempts are exhausted. Reports whether the job
// died.
func (q *Queue) Retry(ctx context.Context, job *Job, cause error) (bool, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if job.Attempts >= job.MaxAttempts {
		_, err := q.db.Exec(ctx, `
UPDATE jobs SET status = 'dead', last_error = $2, locked_at = NULL, locked_by = NULL, updated_at = NOW()
WHERE id = $1`, job.ID, msg)
		if err != nil {
			return false, fmt.Errorf("dead-letter job: %w", err)
		}
		return true, nil
	}

	delay := backoffFor(job.Attempts)
	_, err := q.db.Exec(ctx, `
UPDATE jobs SET status = 'pending', scheduled_at = NOW() + $2, last_error = $3, locked_at = NULL, locked_by = NULL, updated_at = NOW()
WHERE id = $1`, job.ID, delay, msg)
	if err != nil {
		return false, fmt.Errorf("requeue job: %w", err)
	}
	return false, nil
}

// ReleaseStale returns jobs whose worker died mid-flight to pending. Their
// attempt counter keeps the failed try, so repeated crashes still converge
// on dead.
func (q *Queue) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := q.db.Exec(ctx, `
UPDATE jobs SET status = 'pending', locked_at = NULL, locked_by = NULL, last_error = 'stale lock released', updated_at = NOW()
WHERE status = 'processing' AND locked_at < NOW() - $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("release stale locks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ResetDead manually re-queues a dead job with a fresh attempt budget.
func (q *Queue) ResetDead(ctx context.Context, jobID string) error {
	tag, err := q.db.Exec(ctx, `
UPDATE jobs SET status = 'pending', attempts = 0, last_error = '', scheduled_at = NOW(), updated_at = NOW()
WHERE id = $1 AND status = 'dead'`, jobID)
	if err != nil {
		return fmt.Errorf("reset dead job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not dead or does not exist", jobID)
	}
	return nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var status string
	err := row.Scan(&j.ID, &j.Type, &j.Payload, &status, &j.ScheduledAt, &j.Attempts, &j.MaxAttempts,
		&j.LockedAt, &j.LockedBy, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	return &j, nil
}
