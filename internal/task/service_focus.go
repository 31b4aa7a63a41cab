package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/events"
	"taskhive/internal/observability"
	"taskhive/internal/postgres"
)

// FocusSession is a timed work interval on a task.
type FocusSession struct {
	ID        string
	UserID    string
	TaskID    string
	StartedAt time.Time
	EndedAt   *time.Time
	Seconds   int64
}

// StartFocus opens a focus session on the task, closing any session the user
// left dangling.
func (s *Service) StartFocus(ctx context.Context, userID, taskID string) (*FocusSession, error) {
	var session *FocusSession
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := s.store.Get(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		if t.Archived {
			return apperr.TaskArchived()
		}
		now := s.now()
		_, err = tx.Exec(ctx, `
UPDATE focus_sessions SET ended_at = $2, seconds = EXTRACT(EPOCH FROM ($2 - started_at))::bigint
WHERE user_id = $1 AND ended_at IS NULL`, userID, now)
		if err != nil {
			return err
		}
		session = &FocusSession{
			ID:        uuid.NewString(),
			UserID:    userID,
			TaskID:    taskID,
			StartedAt: now,
		}
		_, err = tx.Exec(ctx, `
INSERT INTO focus_sessions (id, user_id, task_id, started_at)
VALUES ($1,$2,$3,$4)`, session.ID, userID, taskID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// EndFocus closes the user's open session, accumulates the elapsed time on
// the task, and emits a focus completion when cumulative focus reaches half
// the task's estimated duration.
func (s *Service) EndFocus(ctx context.Context, userID string) (*FocusSession, error) {
	var session *FocusSession
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		now := s.now()
		session = &FocusSession{}
		err := tx.QueryRow(ctx, `
UPDATE focus_sessions SET ended_at = $2, seconds = EXTRACT(EPOCH FROM ($2 - started_at))::bigint
WHERE user_id = $1 AND ended_at IS NULL
RETURNING id, user_id, task_id, started_at, ended_at, seconds`, userID, now).
			Scan(&session.ID, &session.UserID, &session.TaskID, &session.StartedAt, &session.EndedAt, &session.Seconds)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("focus session")
		}
		if err != nil {
			return err
		}

		total, err := s.store.AddFocusSeconds(ctx, tx, userID, session.TaskID, session.Seconds)
		if err != nil {
			return err
		}

		t, err := s.store.Get(ctx, tx, userID, session.TaskID)
		if err != nil {
			return err
		}
		if t.EstimatedMinutes != nil && *t.EstimatedMinutes > 0 {
			estimated := int64(*t.EstimatedMinutes) * 60
			before := total - session.Seconds
			// count the crossing once
			if before < estimated/2 && total >= estimated/2 {
				s.bus.Dispatch(ctx, tx, events.Event{
					Type:       events.FocusCompleted,
					UserID:     userID,
					EntityID:   session.TaskID,
					EntityType: "task",
					Source:     events.SourceUser,
					OccurredAt: now,
					RequestID:  observability.RequestIDFromContext(ctx),
					Extra:      map[string]any{"focus_seconds": total},
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}
