package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/events"
	"taskhive/internal/logging"
	"taskhive/internal/postgres"
	"taskhive/internal/task"
)

// Service wires reminders to tasks and notifications to delivery.
type Service struct {
	db     postgres.DB
	store  *Store
	tasks  *task.Store
	sender *PushSender
	logger logging.Logger

	now func() time.Time
}

// NewService builds the notify service.
func NewService(db postgres.DB, store *Store, tasks *task.Store, sender *PushSender, logger logging.Logger) (*Service, error) {
	if db == nil || store == nil || tasks == nil {
		return nil, errors.New("notify service requires db, store, and tasks")
	}
	return &Service{
		db:     db,
		store:  store,
		tasks:  tasks,
		sender: sender,
		logger: logging.OrNop(logger),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register subscribes the service's handlers: reminder recalculation on due
// date changes and in-app alerts for unlocked achievements.
func (s *Service) Register(bus *events.Bus) {
	bus.Subscribe(events.TaskUpdated, s.onTaskUpdated)
	bus.Subscribe(events.AchievementUnlocked, s.onAchievementUnlocked)
}

// ReminderParams is the input of CreateReminder.
type ReminderParams struct {
	Kind          ReminderKind
	OffsetMinutes *int
	ScheduledAt   *time.Time
	Method        ReminderMethod
}

// CreateReminder attaches a reminder to a task the user owns.
func (s *Service) CreateReminder(ctx context.Context, userID, taskID string, params ReminderParams) (*Reminder, error) {
	if params.Method == "" {
		params.Method = MethodPush
	}
	if params.Method != MethodPush && params.Method != MethodInApp {
		return nil, apperr.Validation("reminder method must be push or in_app")
	}

	var r *Reminder
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := s.tasks.Get(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		scheduled, err := scheduleFor(params.Kind, params.OffsetMinutes, params.ScheduledAt, t.DueDate)
		if err != nil {
			return err
		}
		r = &Reminder{
			TaskID:        taskID,
			UserID:        userID,
			Kind:          params.Kind,
			OffsetMinutes: params.OffsetMinutes,
			ScheduledAt:   scheduled,
			Method:        params.Method,
		}
		return s.store.InsertReminder(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListForTask returns a task's reminders after an ownership check.
func (s *Service) ListForTask(ctx context.Context, userID, taskID string) ([]*Reminder, error) {
	if _, err := s.tasks.Get(ctx, s.db, userID, taskID); err != nil {
		return nil, err
	}
	return s.store.ListRemindersForTask(ctx, userID, taskID)
}

// DeleteReminder removes a reminder.
func (s *Service) DeleteReminder(ctx context.Context, userID, reminderID string) error {
	return s.store.DeleteReminder(ctx, userID, reminderID)
}

// onTaskUpdated recomputes relative reminders when the due date moved.
func (s *Service) onTaskUpdated(ctx context.Context, tx pgx.Tx, evt events.Event) error {
	changed, _ := evt.Extra["due_date_changed"].(bool)
	if !changed {
		return nil
	}
	t, err := s.tasks.Get(ctx, tx, evt.UserID, evt.EntityID)
	if err != nil {
		return err
	}
	return s.store.RecalculateForTask(ctx, tx, t.ID, t.DueDate, s.now())
}

// onAchievementUnlocked drops an in-app notification for the unlock.
func (s *Service) onAchievementUnlocked(ctx context.Context, tx pgx.Tx, evt events.Event) error {
	name, _ := evt.Extra["name"].(string)
	if name == "" {
		name = evt.EntityID
	}
	return s.store.InsertNotification(ctx, tx, &Notification{
		UserID:    evt.UserID,
		Kind:      "achievement_unlocked",
		Title:     "Achievement unlocked",
		Body:      name,
		ActionURL: "/achievements",
	})
}

// FireDue drains one batch of due reminders: notification row, optional
// push, fired stamp. Returns how many reminders fired. Push delivery is
// best-effort; a down push vendor must not wedge the reminder queue.
func (s *Service) FireDue(ctx context.Context, batchSize int) (int, error) {
	fired := 0
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		now := s.now()
		due, err := s.store.ClaimDueReminders(ctx, tx, now, batchSize)
		if err != nil {
			return err
		}
		for _, r := range due {
			t, err := s.tasks.Get(ctx, tx, r.UserID, r.TaskID)
			if err != nil {
				// task deleted between scheduling and firing
				s.logger.Warn("reminder %s has no task, marking fired: %v", r.ID, err)
				if err := s.store.MarkFired(ctx, tx, r.ID, now); err != nil {
					return err
				}
				continue
			}

			n := &Notification{
				UserID:    r.UserID,
				Kind:      "reminder",
				Title:     "Task reminder",
				Body:      t.Title,
				ActionURL: fmt.Sprintf("/tasks/%s", t.ID),
			}
			if err := s.store.InsertNotification(ctx, tx, n); err != nil {
				return err
			}
			if r.Method == MethodPush && s.sender != nil {
				if err := s.sender.Send(ctx, tx, r.UserID, n); err != nil {
					s.logger.Warn("push delivery incomplete for reminder %s: %v", r.ID, err)
				}
			}
			if err := s.store.MarkFired(ctx, tx, r.ID, now); err != nil {
				return err
			}
			fired++
		}
		return nil
	})
	if err != nil {
		return fired, err
	}
	return fired, nil
}

// Notify writes an in-app notification and fans it out over push.
func (s *Service) Notify(ctx context.Context, q postgres.Querier, n *Notification) error {
	if err := s.store.InsertNotification(ctx, q, n); err != nil {
		return err
	}
	if s.sender != nil {
		if err := s.sender.Send(ctx, q, n.UserID, n); err != nil {
			s.logger.Warn("push delivery incomplete: user=%s kind=%s err=%v", n.UserID, n.Kind, err)
		}
	}
	return nil
}
