package task

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

// Subtasks are reached only through their parent task, so every method here
// takes the owner's user id and joins through tasks for the ownership check.

const subtaskColumns = `s.id, s.task_id, s.title, s.completed, s.completed_at, s.order_index, s.source, s.created_at, s.updated_at`

// ListSubtasks returns the task's subtasks in order.
func (s *Store) ListSubtasks(ctx context.Context, q postgres.Querier, userID, taskID string) ([]*Subtask, error) {
	rows, err := q.Query(ctx, `
SELECT `+subtaskColumns+`
FROM subtasks s
JOIN tasks t ON t.id = s.task_id
WHERE s.task_id = $1 AND t.user_id = $2
ORDER BY s.order_index`, taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("query subtasks: %w", err)
	}
	defer rows.Close()

	var subs []*Subtask
	for rows.Next() {
		sub, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// GetSubtask loads one subtask confined to the parent task's owner.
func (s *Store) GetSubtask(ctx context.Context, q postgres.Querier, userID, subtaskID string) (*Subtask, error) {
	row := q.QueryRow(ctx, `
SELECT `+subtaskColumns+`
FROM subtasks s
JOIN tasks t ON t.id = s.task_id
WHERE s.id = $1 AND t.user_id = $2`, subtaskID, userID)
	return scanSubtask(row)
}

// InsertSubtask appends a subtask at order_index = current sibling count.
func (s *Store) InsertSubtask(ctx context.Context, q postgres.Querier, taskID, title string, source SubtaskSource) (*Subtask, error) {
	now := time.Now().UTC()
	sub := &Subtask{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Title:     title,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := q.QueryRow(ctx, `
INSERT INTO subtasks (id, task_id, title, completed, order_index, source, created_at, updated_at)
VALUES ($1, $2, $3, FALSE, (SELECT COUNT(*) FROM subtasks WHERE task_id = $2), $4, $5, $5)
RETURNING order_index`, sub.ID, taskID, title, string(source), now).Scan(&sub.OrderIndex)
	if err != nil {
		return nil, fmt.Errorf("insert subtask: %w", err)
	}
	return sub, nil
}

// SetSubtaskCompleted flips the completed flag and returns the fresh row.
func (s *Store) SetSubtaskCompleted(ctx context.Context, q postgres.Querier, userID, subtaskID string, completed bool) (*Subtask, error) {
	var completedAt *time.Time
	if completed {
		now := time.Now().UTC()
		completedAt = &now
	}
	row := q.QueryRow(ctx, `
UPDATE subtasks s SET completed = $3, completed_at = $4, updated_at = NOW()
FROM tasks t
WHERE s.id = $1 AND t.id = s.task_id AND t.user_id = $2
RETURNING `+subtaskColumns, subtaskID, userID, completed, completedAt)
	return scanSubtask(row)
}

// UpdateSubtaskTitle renames a subtask.
func (s *Store) UpdateSubtaskTitle(ctx context.Context, q postgres.Querier, userID, subtaskID, title string) (*Subtask, error) {
	row := q.QueryRow(ctx, `
UPDATE subtasks s SET title = $3, updated_at = NOW()
FROM tasks t
WHERE s.id = $1 AND t.id = s.task_id AND t.user_id = $2
RETURNING `+subtaskColumns, subtaskID, userID, title)
	return scanSubtask(row)
}

// DeleteSubtask removes a subtask and compacts the order indices of siblings
// above it, keeping the gapless 0..N-1 invariant.
func (s *Store) DeleteSubtask(ctx context.Context, q postgres.Querier, userID, subtaskID string) error {
	var taskID string
	var orderIndex int
	err := q.QueryRow(ctx, `
DELETE FROM subtasks s
USING tasks t
WHERE s.id = $1 AND t.id = s.task_id AND t.user_id = $2
RETURNING s.task_id, s.order_index`, subtaskID, userID).Scan(&taskID, &orderIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("subtask")
	}
	if err != nil {
		return fmt.Errorf("delete subtask: %w", err)
	}

	_, err = q.Exec(ctx, `
UPDATE subtasks SET order_index = order_index - 1, updated_at = NOW()
WHERE task_id = $1 AND order_index > $2`, taskID, orderIndex)
	if err != nil {
		return fmt.Errorf("compact subtask order: %w", err)
	}
	return nil
}

// ApplySubtaskOrder assigns order_index 0..N-1 following the given id list.
// The caller has already validated the list is a permutation of the current
// sibling set.
func (s *Store) ApplySubtaskOrder(ctx context.Context, q postgres.Querier, taskID string, orderedIDs []string) error {
	// two-phase shift avoids transient duplicate indices without needing a
	// deferred constraint
	_, err := q.Exec(ctx, `UPDATE subtasks SET order_index = order_index + $2 WHERE task_id = $1`,
		taskID, len(orderedIDs))
	if err != nil {
		return fmt.Errorf("shift subtask order: %w", err)
	}
	for i, id := range orderedIDs {
		_, err := q.Exec(ctx, `
UPDATE subtasks SET order_index = $3, updated_at = NOW()
WHERE id = $1 AND task_id = $2`, id, taskID, i)
		if err != nil {
			return fmt.Errorf("reorder subtask %s: %w", id, err)
		}
	}
	return nil
}

// CountIncompleteSubtasks returns how many of the task's subtasks are still
// open. Auto-complete fires when this reaches zero.
func (s *Store) CountIncompleteSubtasks(ctx context.Context, q postgres.Querier, taskID string) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM subtasks WHERE task_id = $1 AND NOT completed`, taskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count incomplete subtasks: %w", err)
	}
	return n, nil
}

// CountSubtasks returns the sibling count for cap checks.
func (s *Store) CountSubtasks(ctx context.Context, q postgres.Querier, taskID string) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM subtasks WHERE task_id = $1`, taskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count subtasks: %w", err)
	}
	return n, nil
}

// CompleteAllSubtasks marks every open subtask complete. Used by
// force-complete.
func (s *Store) CompleteAllSubtasks(ctx context.Context, q postgres.Querier, taskID string) error {
	_, err := q.Exec(ctx, `
UPDATE subtasks SET completed = TRUE, completed_at = NOW(), updated_at = NOW()
WHERE task_id = $1 AND NOT completed`, taskID)
	if err != nil {
		return fmt.Errorf("complete all subtasks: %w", err)
	}
	return nil
}

func scanSubtask(row pgx.Row) (*Subtask, error) {
	var sub Subtask
	var source string
	err := row.Scan(&sub.ID, &sub.TaskID, &sub.Title, &sub.Completed, &sub.CompletedAt,
		&sub.OrderIndex, &source, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("subtask")
	}
	if err != nil {
		return nil, fmt.Errorf("scan subtask: %w", err)
	}
	sub.Source = SubtaskSource(source)
	return &sub, nil
}
