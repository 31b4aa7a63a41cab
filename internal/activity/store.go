package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taskhive/internal/postgres"
)

// Store persists audit rows.
type Store struct {
	db postgres.DB
}

// NewStore builds a Store backed by the provided connection pool.
func NewStore(db postgres.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("activity store requires db")
	}
	return &Store{db: db}, nil
}

// Insert appends one audit row on the caller's querier.
func (s *Store) Insert(ctx context.Context, q postgres.Querier, rec *Record) error {
	extra := rec.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("encode activity extra: %w", err)
	}
	_, err = q.Exec(ctx, `
INSERT INTO activity_logs (id, user_id, entity_type, entity_id, action, source, extra, request_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.UserID, rec.EntityType, rec.EntityID, rec.Action, rec.Source, extraJSON, rec.RequestID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// List returns a page of the user's activity, newest first, plus the total.
func (s *Store) List(ctx context.Context, userID string, offset, limit int) ([]*Record, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM activity_logs WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count activity: %w", err)
	}

	rows, err := s.db.Query(ctx, `
SELECT id, user_id, entity_type, entity_id, action, source, extra, request_id, created_at
FROM activity_logs
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var extraJSON []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.EntityType, &rec.EntityID, &rec.Action,
			&rec.Source, &extraJSON, &rec.RequestID, &rec.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan activity: %w", err)
		}
		if len(extraJSON) > 0 {
			if err := json.Unmarshal(extraJSON, &rec.Extra); err != nil {
				return nil, 0, fmt.Errorf("decode activity extra: %w", err)
			}
		}
		records = append(records, &rec)
	}
	return records, total, rows.Err()
}

// CountForTask counts AI-sourced activity targeting one task. The hard
// per-task AI cap consults this so the limit survives process restarts.
func (s *Store) CountForTask(ctx context.Context, userID, taskID, source string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
SELECT COUNT(*) FROM activity_logs
WHERE user_id = $1 AND entity_type = 'task' AND entity_id = $2 AND source = $3`,
		userID, taskID, source).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count task activity: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes one batch of rows past the cutoff and reports how
// many went. The cleanup job loops until a short batch comes back.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	tag, err := s.db.Exec(ctx, `
DELETE FROM activity_logs
WHERE id IN (
    SELECT id FROM activity_logs WHERE created_at < $1 LIMIT $2
)`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old activity: %w", err)
	}
	return tag.RowsAffected(), nil
}
