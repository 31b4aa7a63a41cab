package task

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/events"
	"taskhive/internal/observability"
	"taskhive/internal/postgres"
)

// AddSubtask appends a subtask, enforcing the per-task cap for the owner's
// tier.
func (s *Service) AddSubtask(ctx context.Context, userID, taskID, title string, source SubtaskSource) (*Subtask, error) {
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" || len(title) > titleMax {
		return nil, apperr.Validation("title must be 1-%d characters", titleMax)
	}
	if source == "" {
		source = SubtaskSourceUser
	}

	var sub *Subtask
	err = postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := s.store.Get(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		if t.Archived {
			return apperr.TaskArchived()
		}
		limits, err := s.engine.EffectiveLimits(ctx, tx, userID, owner.Tier)
		if err != nil {
			return err
		}
		count, err := s.store.CountSubtasks(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if count >= limits.SubtaskMax {
			return apperr.LimitExceeded("subtask", limits.SubtaskMax)
		}
		sub, err = s.store.InsertSubtask(ctx, tx, taskID, title, source)
		if err != nil {
			return err
		}
		s.bus.Dispatch(ctx, tx, s.subtaskEvent(ctx, events.SubtaskCreated, userID, sub, events.Source(source)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// CompleteSubtask marks a subtask done. The auto-complete handler then
// completes the parent when this was the last open subtask.
func (s *Service) CompleteSubtask(ctx context.Context, userID, subtaskID string) (*Subtask, error) {
	var sub *Subtask
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		current, err := s.store.GetSubtask(ctx, tx, userID, subtaskID)
		if err != nil {
			return err
		}
		t, err := s.store.Get(ctx, tx, userID, current.TaskID)
		if err != nil {
			return err
		}
		if t.Archived {
			return apperr.TaskArchived()
		}
		if current.Completed {
			sub = current
			return nil
		}
		sub, err = s.store.SetSubtaskCompleted(ctx, tx, userID, subtaskID, true)
		if err != nil {
			return err
		}
		s.bus.Dispatch(ctx, tx, s.subtaskEvent(ctx, events.SubtaskCompleted, userID, sub, events.SourceUser))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ReopenSubtask clears the completed flag.
func (s *Service) ReopenSubtask(ctx context.Context, userID, subtaskID string) (*Subtask, error) {
	var sub *Subtask
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		current, err := s.store.GetSubtask(ctx, tx, userID, subtaskID)
		if err != nil {
			return err
		}
		t, err := s.store.Get(ctx, tx, userID, current.TaskID)
		if err != nil {
			return err
		}
		if t.Archived {
			return apperr.TaskArchived()
		}
		sub, err = s.store.SetSubtaskCompleted(ctx, tx, userID, subtaskID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// RenameSubtask changes a subtask title.
func (s *Service) RenameSubtask(ctx context.Context, userID, subtaskID, title string) (*Subtask, error) {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > titleMax {
		return nil, apperr.Validation("title must be 1-%d characters", titleMax)
	}
	var sub *Subtask
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		sub, err = s.store.UpdateSubtaskTitle(ctx, tx, userID, subtaskID, title)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// DeleteSubtask removes a subtask and compacts sibling order.
func (s *Service) DeleteSubtask(ctx context.Context, userID, subtaskID string) error {
	return postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		sub, err := s.store.GetSubtask(ctx, tx, userID, subtaskID)
		if err != nil {
			return err
		}
		if err := s.store.DeleteSubtask(ctx, tx, userID, subtaskID); err != nil {
			return err
		}
		s.bus.Dispatch(ctx, tx, s.subtaskEvent(ctx, events.SubtaskDeleted, userID, sub, events.SourceUser))
		return nil
	})
}

// ReorderSubtasks atomically assigns indices 0..N-1 following orderedIDs,
// rejecting lists that are not a permutation of the current sibling set.
func (s *Service) ReorderSubtasks(ctx context.Context, userID, taskID string, orderedIDs []string) ([]*Subtask, error) {
	var out []*Subtask
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := s.store.Get(ctx, tx, userID, taskID); err != nil {
			return err
		}
		current, err := s.store.ListSubtasks(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		if err := validateReorder(current, orderedIDs); err != nil {
			return err
		}
		if err := s.store.ApplySubtaskOrder(ctx, tx, taskID, orderedIDs); err != nil {
			return err
		}
		out, err = s.store.ListSubtasks(ctx, tx, userID, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListSubtasks returns the task's subtasks in order.
func (s *Service) ListSubtasks(ctx context.Context, userID, taskID string) ([]*Subtask, error) {
	if _, err := s.store.Get(ctx, s.db, userID, taskID); err != nil {
		return nil, err
	}
	return s.store.ListSubtasks(ctx, s.db, userID, taskID)
}

// onSubtaskCompleted auto-completes the parent task when its last open
// subtask just completed.
func (s *Service) onSubtaskCompleted(ctx context.Context, tx pgx.Tx, evt events.Event) error {
	taskID, _ := evt.Extra["task_id"].(string)
	if taskID == "" {
		return nil
	}
	open, err := s.store.CountIncompleteSubtasks(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if open > 0 {
		return nil
	}
	t, err := s.store.Get(ctx, tx, evt.UserID, taskID)
	if err != nil {
		return err
	}
	if t.Completed || t.Archived {
		return nil
	}
	now := s.now()
	by := CompletedAuto
	t.Completed = true
	t.CompletedAt = &now
	t.CompletedBy = &by
	if err := s.updateVersioned(ctx, tx, t, t.Version); err != nil {
		return err
	}
	s.bus.Dispatch(ctx, tx, s.event(ctx, events.TaskCompleted, t, evt.Source, nil))
	return nil
}

func (s *Service) subtaskEvent(ctx context.Context, typ events.Type, userID string, sub *Subtask, src events.Source) events.Event {
	return events.Event{
		Type:       typ,
		UserID:     userID,
		EntityID:   sub.ID,
		EntityType: "subtask",
		Source:     src,
		OccurredAt: s.now(),
		RequestID:  observability.RequestIDFromContext(ctx),
		Extra:      map[string]any{"task_id": sub.TaskID},
	}
}
