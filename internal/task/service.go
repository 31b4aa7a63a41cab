package task

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"taskhive/internal/achievement"
	"taskhive/internal/apperr"
	"taskhive/internal/events"
	"taskhive/internal/logging"
	"taskhive/internal/observability"
	"taskhive/internal/postgres"
	"taskhive/internal/user"
)

// Enqueuer schedules a background job on the caller's transaction.
type Enqueuer interface {
	Enqueue(ctx context.Context, q postgres.Querier, jobType string, payload any, runAt time.Time) error
}

// JobTypeRecurringGenerate is the job that materializes the next instance of
// a recurring template.
const JobTypeRecurringGenerate = "recurring_task_generate"

// RecurringGeneratePayload is the payload of a JobTypeRecurringGenerate job.
type RecurringGeneratePayload struct {
	TemplateID string `json:"template_id"`
}

// Service orchestrates task writes: validation, caps, versioning, cascade,
// events. Every write runs in one transaction together with its event
// handlers.
type Service struct {
	db      postgres.DB
	store   *Store
	users   *user.Store
	engine  *achievement.Engine
	bus     *events.Bus
	jobs    Enqueuer
	logger  logging.Logger
	metrics *observability.MetricsCollector

	now func() time.Time
}

// NewService wires the task service.
func NewService(db postgres.DB, store *Store, users *user.Store, engine *achievement.Engine, bus *events.Bus, jobs Enqueuer, logger logging.Logger, metrics *observability.MetricsCollector) (*Service, error) {
	if db == nil || store == nil || users == nil || engine == nil || bus == nil {
		return nil, errors.New("task service requires db, store, users, engine, and bus")
	}
	return &Service{
		db:      db,
		store:   store,
		users:   users,
		engine:  engine,
		bus:     bus,
		jobs:    jobs,
		logger:  logging.OrNop(logger),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register subscribes the service's standard handlers: subtask-driven
// auto-complete and recurring next-instance enqueue.
func (s *Service) Register(bus *events.Bus) {
	bus.Subscribe(events.SubtaskCompleted, s.onSubtaskCompleted)
	bus.Subscribe(events.TaskCompleted, s.onTaskCompletedEnqueueRecurring)
}

// CreateParams is the validated input of Create.
type CreateParams struct {
	Title            string
	Description      string
	Priority         Priority
	DueDate          *time.Time
	EstimatedMinutes *int
	TemplateID       *string
	Source           events.Source
}

// Create validates and inserts a task, enforcing the effective active-task
// cap and the due-date horizon.
func (s *Service) Create(ctx context.Context, userID string, params CreateParams) (*Task, error) {
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if params.Priority == "" {
		params.Priority = PriorityMedium
	}
	if err := s.validateTaskFields(params.Title, params.Description, params.Priority, params.DueDate, params.EstimatedMinutes, owner.Tier); err != nil {
		return nil, err
	}
	source := params.Source
	if source == "" {
		source = events.SourceUser
	}

	now := s.now()
	t := &Task{
		ID:               uuid.NewString(),
		UserID:           userID,
		TemplateID:       params.TemplateID,
		Title:            strings.TrimSpace(params.Title),
		Description:      params.Description,
		Priority:         params.Priority,
		DueDate:          params.DueDate,
		EstimatedMinutes: params.EstimatedMinutes,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		limits, err := s.engine.EffectiveLimits(ctx, tx, userID, owner.Tier)
		if err != nil {
			return err
		}
		active, err := s.store.CountActive(ctx, tx, userID)
		if err != nil {
			return err
		}
		if active >= limits.TaskMax {
			return apperr.LimitExceeded("task", limits.TaskMax)
		}
		if err := s.store.Insert(ctx, tx, t); err != nil {
			return err
		}
		s.bus.Dispatch(ctx, tx, s.event(ctx, events.TaskCreated, t, source, nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns one task with ownership confinement.
func (s *Service) Get(ctx context.Context, userID, taskID string) (*Task, error) {
	return s.store.Get(ctx, s.db, userID, taskID)
}

// EffectiveLimits resolves the user's caps including achievement perks.
func (s *Service) EffectiveLimits(ctx context.Context, userID string, tier user.Tier) (achievement.Limits, error) {
	return s.engine.EffectiveLimits(ctx, s.db, userID, tier)
}

// List returns a page of the user's visible tasks.
func (s *Service) List(ctx context.Context, userID string, filter ListFilter) ([]*Task, int, error) {
	return s.store.List(ctx, userID, filter)
}

// UpdateParams is a partial task update guarded by the optimistic version.
// Nil pointer fields are left unchanged.
type UpdateParams struct {
	Version          int64
	Title            *string
	Description      *string
	Priority         *Priority
	DueDate          *time.Time
	ClearDueDate     bool
	EstimatedMinutes *int
	Completed        *bool
	Hidden           *bool
	Archived         *bool
	Source           events.Source
}

// Update applies a partial update. Mutating an archived task fails unless
// the update itself unarchives it. Completion through here is manual.
func (s *Service) Update(ctx context.Context, userID, taskID string, params UpdateParams) (*Task, error) {
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	source := params.Source
	if source == "" {
		source = events.SourceUser
	}

	var updated *Task
	err = postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := s.store.Get(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		unarchiving := params.Archived != nil && !*params.Archived
		if t.Archived && !unarchiving {
			return apperr.TaskArchived()
		}

		dueDateChanged := false
		if params.Title != nil {
			t.Title = strings.TrimSpace(*params.Title)
		}
		if params.Description != nil {
			t.Description = *params.Description
		}
		if params.Priority != nil {
			t.Priority = *params.Priority
		}
		if params.ClearDueDate {
			dueDateChanged = t.DueDate != nil
			t.DueDate = nil
		} else if params.DueDate != nil {
			dueDateChanged = t.DueDate == nil || !t.DueDate.Equal(*params.DueDate)
			t.DueDate = params.DueDate
		}
		if params.EstimatedMinutes != nil {
			t.EstimatedMinutes = params.EstimatedMinutes
		}
		if params.Hidden != nil {
			t.Hidden = *params.Hidden
		}
		if params.Archived != nil {
			t.Archived = *params.Archived
		}

		if err := s.validateTaskFields(t.Title, t.Description, t.Priority, t.DueDate, t.EstimatedMinutes, owner.Tier); err != nil {
			return err
		}

		completing := false
		if params.Completed != nil && *params.Completed != t.Completed {
			if *params.Completed {
				if t.Archived {
					return apperr.TaskArchived()
				}
				now := s.now()
				by := CompletedManual
				t.Completed = true
				t.CompletedAt = &now
				t.CompletedBy = &by
				completing = true
			} else {
				t.Completed = false
				t.CompletedAt = nil
				t.CompletedBy = nil
			}
		}

		if err := s.updateVersioned(ctx, tx, t, params.Version); err != nil {
			return err
		}

		extra := map[string]any{}
		if dueDateChanged {
			extra["due_date_changed"] = true
		}
		s.bus.Dispatch(ctx, tx, s.event(ctx, events.TaskUpdated, t, source, extra))
		if completing {
			s.bus.Dispatch(ctx, tx, s.event(ctx, events.TaskCompleted, t, source, nil))
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ForceComplete completes the task and every open subtask in one
// transaction.
func (s *Service) ForceComplete(ctx context.Context, userID, taskID string, version int64) (*Task, error) {
	var updated *Task
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := s.store.Get(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		if t.Archived {
			return apperr.TaskArchived()
		}
		if t.Completed {
			updated = t
			return nil
		}
		if err := s.store.CompleteAllSubtasks(ctx, tx, t.ID); err != nil {
			return err
		}
		now := s.now()
		by := CompletedForce
		t.Completed = true
		t.CompletedAt = &now
		t.CompletedBy = &by
		if err := s.updateVersioned(ctx, tx, t, version); err != nil {
			return err
		}
		s.bus.Dispatch(ctx, tx, s.event(ctx, events.TaskCompleted, t, events.SourceUser, nil))
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete hard-deletes the task, snapshotting it and its children into a
// tombstone first. Subtasks and reminders cascade away with the row.
func (s *Service) Delete(ctx context.Context, userID, taskID string) (*Tombstone, error) {
	var ts *Tombstone
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := s.store.Get(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		subs, err := s.store.ListSubtasks(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		reminders, err := s.snapshotReminders(ctx, tx, taskID)
		if err != nil {
			return err
		}

		payload := TombstonePayload{Task: *t, Reminders: reminders}
		for _, sub := range subs {
			payload.Subtasks = append(payload.Subtasks, *sub)
		}
		ts, err = s.store.InsertTombstone(ctx, tx, userID, payload)
		if err != nil {
			return err
		}
		if err := s.store.Delete(ctx, tx, userID, taskID); err != nil {
			return err
		}
		s.bus.Dispatch(ctx, tx, s.event(ctx, events.TaskDeleted, t, events.SourceUser,
			map[string]any{"tombstone_id": ts.ID}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ts, nil
}

// snapshotReminders captures the task's not-yet-fired reminders for the
// tombstone payload.
func (s *Service) snapshotReminders(ctx context.Context, q postgres.Querier, taskID string) ([]TombstoneReminder, error) {
	rows, err := q.Query(ctx, `
SELECT id, kind, offset_minutes, scheduled_at, method, created_at
FROM reminders WHERE task_id = $1 AND NOT fired`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TombstoneReminder
	for rows.Next() {
		var r TombstoneReminder
		if err := rows.Scan(&r.ID, &r.Kind, &r.OffsetMinutes, &r.ScheduledAt, &r.Method, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// updateVersioned wraps the store call so every version conflict lands in
// metrics.
func (s *Service) updateVersioned(ctx context.Context, q postgres.Querier, t *Task, version int64) error {
	err := s.store.UpdateVersioned(ctx, q, t, version)
	if apperr.IsCode(err, apperr.CodeVersionConflict) {
		s.metrics.RecordVersionConflict(ctx)
	}
	return err
}

// onTaskCompletedEnqueueRecurring schedules generation of the next instance
// when a template-backed task completes.
func (s *Service) onTaskCompletedEnqueueRecurring(ctx context.Context, tx pgx.Tx, evt events.Event) error {
	if s.jobs == nil || evt.Recovered {
		return nil
	}
	templateID, _ := evt.Extra["template_id"].(string)
	if templateID == "" {
		return nil
	}
	return s.jobs.Enqueue(ctx, tx, JobTypeRecurringGenerate,
		RecurringGeneratePayload{TemplateID: templateID}, s.now())
}

// event builds the common event envelope for a task.
func (s *Service) event(ctx context.Context, typ events.Type, t *Task, source events.Source, extra map[string]any) events.Event {
	if extra == nil {
		extra = map[string]any{}
	}
	if t.TemplateID != nil {
		extra["template_id"] = *t.TemplateID
	}
	return events.Event{
		Type:       typ,
		UserID:     t.UserID,
		EntityID:   t.ID,
		EntityType: "task",
		Source:     source,
		OccurredAt: s.now(),
		RequestID:  observability.RequestIDFromContext(ctx),
		Extra:      extra,
	}
}

func (s *Service) validateTaskFields(title, description string, priority Priority, dueDate *time.Time, estimated *int, tier user.Tier) error {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > titleMax {
		return apperr.Validation("title must be 1-%d characters", titleMax)
	}
	descMax := descriptionMaxFree
	if tier == user.TierPro {
		descMax = descriptionMaxPro
	}
	if len(description) > descMax {
		return apperr.Validation("description must be at most %d characters", descMax)
	}
	if !validPriority(priority) {
		return apperr.Validation("priority must be low, medium, or high")
	}
	if dueDate != nil && dueDate.After(s.now().Add(dueDateHorizon)) {
		return apperr.DueDateExceeded()
	}
	if estimated != nil && (*estimated < estimatedMinMin || *estimated > estimatedMinMax) {
		return apperr.Validation("estimated duration must be %d-%d minutes", estimatedMinMin, estimatedMinMax)
	}
	return nil
}
