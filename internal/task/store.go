package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/postgres"
)

// Store persists tasks and subtasks. Methods that participate in a larger
// write take an explicit querier so they run on the caller's transaction;
// cross-user rows surface as NOT_FOUND, never FORBIDDEN.
type Store struct {
	db postgres.DB
}

// NewStore builds a Store backed by the provided connection pool.
func NewStore(db postgres.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("task store requires db")
	}
	return &Store{db: db}, nil
}

const taskColumns = `id, user_id, template_id, title, description, priority, due_date, estimated_minutes, focus_seconds, completed, completed_at, completed_by, hidden, archived, version, created_at, updated_at`

// Insert writes a new task row.
func (s *Store) Insert(ctx context.Context, q postgres.Querier, t *Task) error {
	_, err := q.Exec(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		t.ID, t.UserID, t.TemplateID, t.Title, t.Description, string(t.Priority), t.DueDate,
		t.EstimatedMinutes, t.FocusSeconds, t.Completed, t.CompletedAt, completedByValue(t.CompletedBy),
		t.Hidden, t.Archived, t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperr.IDCollision(t.ID)
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get loads one task confined to the owner.
func (s *Store) Get(ctx context.Context, q postgres.Querier, userID, taskID string) (*Task, error) {
	row := q.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`, taskID, userID)
	return scanTask(row)
}

// ListFilter narrows List results.
type ListFilter struct {
	Completed *bool
	Priority  *Priority
	Offset    int
	Limit     int
}

// List returns a page of visible tasks plus the total matching count.
func (s *Store) List(ctx context.Context, userID string, filter ListFilter) ([]*Task, int, error) {
	where := `user_id = $1 AND NOT hidden`
	args := []any{userID}
	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		where += fmt.Sprintf(` AND completed = $%d`, len(args))
	}
	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		where += fmt.Sprintf(` AND priority = $%d`, len(args))
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT `+taskColumns+` FROM tasks WHERE `+where+` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

// CountActive counts the user's visible, unarchived, incomplete tasks. The
// effective task cap applies to this number.
func (s *Store) CountActive(ctx context.Context, q postgres.Querier, userID string) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
SELECT COUNT(*) FROM tasks
WHERE user_id = $1 AND NOT hidden AND NOT archived AND NOT completed`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active tasks: %w", err)
	}
	return n, nil
}

// UpdateVersioned writes the task's mutable fields guarded by the optimistic
// version check. The stored row must still carry expectedVersion; on success
// the row holds expectedVersion+1. A stale version returns VERSION_CONFLICT.
func (s *Store) UpdateVersioned(ctx context.Context, q postgres.Querier, t *Task, expectedVersion int64) error {
	tag, err := q.Exec(ctx, `
UPDATE tasks SET
    title             = $4,
    description       = $5,
    priority          = $6,
    due_date          = $7,
    estimated_minutes = $8,
    focus_seconds     = $9,
    completed         = $10,
    completed_at      = $11,
    completed_by      = $12,
    hidden            = $13,
    archived          = $14,
    version           = $3 + 1,
    updated_at        = NOW()
WHERE id = $1 AND user_id = $2 AND version = $3`,
		t.ID, t.UserID, expectedVersion,
		t.Title, t.Description, string(t.Priority), t.DueDate, t.EstimatedMinutes, t.FocusSeconds,
		t.Completed, t.CompletedAt, completedByValue(t.CompletedBy), t.Hidden, t.Archived)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 1 {
		t.Version = expectedVersion + 1
		return nil
	}

	// zero rows: either the row is gone or the version is stale
	var current int64
	err = q.QueryRow(ctx, `SELECT version FROM tasks WHERE id = $1 AND user_id = $2`, t.ID, t.UserID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("task")
	}
	if err != nil {
		return fmt.Errorf("check task version: %w", err)
	}
	return apperr.VersionConflict(current, expectedVersion)
}

// Delete removes the task row. Subtasks and reminders go with it via ON
// DELETE CASCADE; the caller writes the tombstone first.
func (s *Store) Delete(ctx context.Context, q postgres.Querier, userID, taskID string) error {
	tag, err := q.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, taskID, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("task")
	}
	return nil
}

// AddFocusSeconds accumulates focus time on the task without touching the
// optimistic version; focus accrual never conflicts with field edits.
func (s *Store) AddFocusSeconds(ctx context.Context, q postgres.Querier, userID, taskID string, seconds int64) (int64, error) {
	var total int64
	err := q.QueryRow(ctx, `
UPDATE tasks SET focus_seconds = focus_seconds + $3, updated_at = NOW()
WHERE id = $1 AND user_id = $2
RETURNING focus_seconds`, taskID, userID, seconds).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("task")
	}
	if err != nil {
		return 0, fmt.Errorf("add focus seconds: %w", err)
	}
	return total, nil
}

func completedByValue(by *CompletedBy) *string {
	if by == nil {
		return nil
	}
	v := string(*by)
	return &v
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var priority string
	var completedBy *string
	err := row.Scan(&t.ID, &t.UserID, &t.TemplateID, &t.Title, &t.Description, &priority,
		&t.DueDate, &t.EstimatedMinutes, &t.FocusSeconds, &t.Completed, &t.CompletedAt, &completedBy,
		&t.Hidden, &t.Archived, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("task")
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Priority = Priority(priority)
	if completedBy != nil {
		by := CompletedBy(*completedBy)
		t.CompletedBy = &by
	}
	return &t, nil
}
