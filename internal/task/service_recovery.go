package task

import (
	"context"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/events"
	"taskhive/internal/postgres"
)

// ListTombstones returns the user's recoverable deletions, newest first.
func (s *Service) ListTombstones(ctx context.Context, userID string) ([]*Tombstone, error) {
	return s.store.ListTombstones(ctx, userID)
}

// Recover recreates a deleted task from its tombstone with the original id
// and timestamps. Tombstones older than the 14-day window read as not found.
// The emitted TaskCreated event carries the recovery flag so the achievement
// engine skips it.
func (s *Service) Recover(ctx context.Context, userID, tombstoneID string) (*Task, error) {
	var recovered *Task
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		ts, err := s.store.GetTombstone(ctx, tx, userID, tombstoneID)
		if err != nil {
			return err
		}
		if s.now().Sub(ts.DeletedAt) > recoveryWindow {
			return apperr.NotFound("tombstone")
		}
		if ts.Payload.SchemaVersion > tombstonePayloadVersion {
			return apperr.Conflict("tombstone payload version %d is newer than this server understands", ts.Payload.SchemaVersion)
		}

		t := ts.Payload.Task
		if t.TemplateID != nil {
			// the template may have been deleted since; only keep the
			// reference when it still exists
			if _, err := s.store.GetTemplateAnyUser(ctx, tx, *t.TemplateID); err != nil {
				if !apperr.IsCode(err, apperr.CodeNotFound) {
					return err
				}
				t.TemplateID = nil
			}
		}
		if err := s.store.Insert(ctx, tx, &t); err != nil {
			return err
		}
		for _, sub := range ts.Payload.Subtasks {
			if err := s.insertSubtaskSnapshot(ctx, tx, sub); err != nil {
				return err
			}
		}
		now := s.now()
		for _, rem := range ts.Payload.Reminders {
			// past-scheduled reminders stay dead
			if !rem.ScheduledAt.After(now) {
				continue
			}
			if err := s.insertReminderSnapshot(ctx, tx, t.ID, t.UserID, rem); err != nil {
				return err
			}
		}
		if err := s.store.DeleteTombstone(ctx, tx, userID, tombstoneID); err != nil {
			return err
		}

		evt := s.event(ctx, events.TaskCreated, &t, events.SourceUser, map[string]any{"recovered_from": tombstoneID})
		evt.Recovered = true
		s.bus.Dispatch(ctx, tx, evt)
		recovered = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recovered, nil
}

func (s *Service) insertSubtaskSnapshot(ctx context.Context, q postgres.Querier, sub Subtask) error {
	_, err := q.Exec(ctx, `
INSERT INTO subtasks (id, task_id, title, completed, completed_at, order_index, source, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		sub.ID, sub.TaskID, sub.Title, sub.Completed, sub.CompletedAt, sub.OrderIndex,
		string(sub.Source), sub.CreatedAt, sub.UpdatedAt)
	return err
}

func (s *Service) insertReminderSnapshot(ctx context.Context, q postgres.Querier, taskID, userID string, rem TombstoneReminder) error {
	_, err := q.Exec(ctx, `
INSERT INTO reminders (id, task_id, user_id, kind, offset_minutes, scheduled_at, method, fired, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,$8,NOW())`,
		rem.ID, taskID, userID, rem.Kind, rem.OffsetMinutes, rem.ScheduledAt, rem.Method, rem.CreatedAt)
	return err
}
