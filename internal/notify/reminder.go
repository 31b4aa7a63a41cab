package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/postgres"
)

// ReminderKind positions a reminder relative to the task's due date.
type ReminderKind string

const (
	ReminderBefore   ReminderKind = "before"
	ReminderAfter    ReminderKind = "after"
	ReminderAbsolute ReminderKind = "absolute"
)

// ReminderMethod is the delivery channel.
type ReminderMethod string

const (
	MethodPush  ReminderMethod = "push"
	MethodInApp ReminderMethod = "in_app"
)

const reminderMaxPerTask = 5

// Reminder is tied to a task; relative reminders track the task's due date.
type Reminder struct {
	ID            string
	TaskID        string
	UserID        string
	Kind          ReminderKind
	OffsetMinutes *int
	ScheduledAt   time.Time
	Method        ReminderMethod
	Fired         bool
	FiredAt       *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// scheduleFor computes when a reminder fires. Relative kinds need the task's
// due date.
func scheduleFor(kind ReminderKind, offsetMinutes *int, absolute *time.Time, dueDate *time.Time) (time.Time, error) {
	switch kind {
	case ReminderBefore, ReminderAfter:
		if dueDate == nil {
			return time.Time{}, apperr.Validation("relative reminders require a task due date")
		}
		if offsetMinutes == nil || *offsetMinutes <= 0 {
			return time.Time{}, apperr.Validation("offset_minutes must be positive")
		}
		offset := time.Duration(*offsetMinutes) * time.Minute
		if kind == ReminderBefore {
			return dueDate.Add(-offset), nil
		}
		return dueDate.Add(offset), nil
	case ReminderAbsolute:
		if absolute == nil {
			return time.Time{}, apperr.Validation("absolute reminders require scheduled_at")
		}
		return *absolute, nil
	default:
		return time.Time{}, apperr.Validation("reminder kind must be before, after, or absolute")
	}
}

const reminderColumns = `id, task_id, user_id, kind, offset_minutes, scheduled_at, method, fired, fired_at, created_at, updated_at`

// InsertReminder appends a reminder, enforcing the per-task cap.
func (s *Store) InsertReminder(ctx context.Context, q postgres.Querier, r *Reminder) error {
	var count int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM reminders WHERE task_id = $1`, r.TaskID).Scan(&count); err != nil {
		return fmt.Errorf("count reminders: %w", err)
	}
	if count >= reminderMaxPerTask {
		return apperr.LimitExceeded("reminder", reminderMaxPerTask)
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err := q.Exec(ctx, `
INSERT INTO reminders (`+reminderColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,NULL,$8,$9)`,
		r.ID, r.TaskID, r.UserID, string(r.Kind), r.OffsetMinutes, r.ScheduledAt, string(r.Method),
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

// ListRemindersForTask returns the task's reminders.
func (s *Store) ListRemindersForTask(ctx context.Context, userID, taskID string) ([]*Reminder, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+reminderColumns+` FROM reminders
WHERE task_id = $1 AND user_id = $2
ORDER BY scheduled_at`, taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	var out []*Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteReminder removes one reminder with ownership confinement.
func (s *Store) DeleteReminder(ctx context.Context, userID, reminderID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM reminders WHERE id = $1 AND user_id = $2`, reminderID, userID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("reminder")
	}
	return nil
}

// RecalculateForTask recomputes relative reminders after a due date change.
// Reminders whose new schedule lands in the future become fireable again.
func (s *Store) RecalculateForTask(ctx context.Context, q postgres.Querier, taskID string, dueDate *time.Time, now time.Time) error {
	rows, err := q.Query(ctx, `
SELECT `+reminderColumns+` FROM reminders
WHERE task_id = $1 AND kind IN ('before', 'after')`, taskID)
	if err != nil {
		return fmt.Errorf("query relative reminders: %w", err)
	}
	reminders := make([]*Reminder, 0, 4)
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			rows.Close()
			return err
		}
		reminders = append(reminders, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range reminders {
		if dueDate == nil {
			// due date removed; park the reminder as fired so it
			// cannot trigger against a stale schedule
			_, err := q.Exec(ctx, `
UPDATE reminders SET fired = TRUE, fired_at = NULL, updated_at = NOW() WHERE id = $1`, r.ID)
			if err != nil {
				return fmt.Errorf("park reminder %s: %w", r.ID, err)
			}
			continue
		}
		scheduled, err := scheduleFor(r.Kind, r.OffsetMinutes, nil, dueDate)
		if err != nil {
			return err
		}
		refire := scheduled.After(now)
		_, err = q.Exec(ctx, `
UPDATE reminders SET scheduled_at = $2, fired = NOT $3, fired_at = CASE WHEN $3 THEN NULL ELSE fired_at END, updated_at = NOW()
WHERE id = $1`, r.ID, scheduled, refire)
		if err != nil {
			return fmt.Errorf("recalculate reminder %s: %w", r.ID, err)
		}
	}
	return nil
}

// ClaimDueReminders locks and returns pending reminders due at now.
func (s *Store) ClaimDueReminders(ctx context.Context, q postgres.Querier, now time.Time, limit int) ([]*Reminder, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.Query(ctx, `
SELECT `+reminderColumns+` FROM reminders
WHERE NOT fired AND scheduled_at <= $1
ORDER BY scheduled_at
LIMIT $2
FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}
	defer rows.Close()

	var out []*Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkFired stamps a delivered reminder.
func (s *Store) MarkFired(ctx context.Context, q postgres.Querier, reminderID string, at time.Time) error {
	_, err := q.Exec(ctx, `
UPDATE reminders SET fired = TRUE, fired_at = $2, updated_at = NOW() WHERE id = $1`, reminderID, at)
	if err != nil {
		return fmt.Errorf("mark reminder fired: %w", err)
	}
	return nil
}

func scanReminder(row pgx.Row) (*Reminder, error) {
	var r Reminder
	var kind, method string
	err := row.Scan(&r.ID, &r.TaskID, &r.UserID, &kind, &r.OffsetMinutes, &r.ScheduledAt, &method,
		&r.Fired, &r.FiredAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("reminder")
	}
	if err != nil {
		return nil, fmt.Errorf("scan reminder: %w", err)
	}
	r.Kind = ReminderKind(kind)
	r.Method = ReminderMethod(method)
	return &r, nil
}
