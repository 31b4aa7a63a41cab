package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/postgres"
)

// tombstonePayloadVersion tags serialized payloads so recovery can keep
// round-tripping across schema changes.
const tombstonePayloadVersion = 1

// TombstonePayload is the serialized snapshot written on hard delete. It
// carries everything needed to recreate the task with its original id,
// timestamps, children, and future reminders.
type TombstonePayload struct {
	SchemaVersion int                `json:"schema_version"`
	Task          Task               `json:"task"`
	Subtasks      []Subtask          `json:"subtasks"`
	Reminders     []TombstoneReminder `json:"reminders,omitempty"`
}

// TombstoneReminder is the reminder snapshot kept inside a tombstone.
// Already-fired reminders are not snapshotted.
type TombstoneReminder struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	OffsetMinutes *int       `json:"offset_minutes,omitempty"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	Method        string     `json:"method"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Tombstone is a ring buffer entry; each user keeps at most three.
type Tombstone struct {
	ID         string
	UserID     string
	EntityType string
	EntityID   string
	Payload    TombstonePayload
	DeletedAt  time.Time
}

// InsertTombstone writes the snapshot and drops the user's oldest tombstones
// beyond the ring size.
func (s *Store) InsertTombstone(ctx context.Context, q postgres.Querier, userID string, payload TombstonePayload) (*Tombstone, error) {
	payload.SchemaVersion = tombstonePayloadVersion
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode tombstone payload: %w", err)
	}

	ts := &Tombstone{
		ID:         uuid.NewString(),
		UserID:     userID,
		EntityType: "task",
		EntityID:   payload.Task.ID,
		Payload:    payload,
		DeletedAt:  time.Now().UTC(),
	}
	_, err = q.Exec(ctx, `
INSERT INTO tombstones (id, user_id, entity_type, entity_id, payload, deleted_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
		ts.ID, ts.UserID, ts.EntityType, ts.EntityID, raw, ts.DeletedAt)
	if err != nil {
		return nil, fmt.Errorf("insert tombstone: %w", err)
	}

	_, err = q.Exec(ctx, `
DELETE FROM tombstones
WHERE user_id = $1 AND id NOT IN (
    SELECT id FROM tombstones WHERE user_id = $1 ORDER BY deleted_at DESC LIMIT $2
)`, userID, tombstoneMaxPerUser)
	if err != nil {
		return nil, fmt.Errorf("trim tombstones: %w", err)
	}
	return ts, nil
}

// GetTombstone loads one tombstone confined to the owner.
func (s *Store) GetTombstone(ctx context.Context, q postgres.Querier, userID, tombstoneID string) (*Tombstone, error) {
	row := q.QueryRow(ctx, `
SELECT id, user_id, entity_type, entity_id, payload, deleted_at
FROM tombstones WHERE id = $1 AND user_id = $2`, tombstoneID, userID)
	return scanTombstone(row)
}

// ListTombstones returns the user's tombstones, newest first.
func (s *Store) ListTombstones(ctx context.Context, userID string) ([]*Tombstone, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, entity_type, entity_id, payload, deleted_at
FROM tombstones WHERE user_id = $1 ORDER BY deleted_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query tombstones: %w", err)
	}
	defer rows.Close()

	var out []*Tombstone
	for rows.Next() {
		ts, err := scanTombstone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// DeleteTombstone removes a consumed tombstone.
func (s *Store) DeleteTombstone(ctx context.Context, q postgres.Querier, userID, tombstoneID string) error {
	tag, err := q.Exec(ctx, `DELETE FROM tombstones WHERE id = $1 AND user_id = $2`, tombstoneID, userID)
	if err != nil {
		return fmt.Errorf("delete tombstone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("tombstone")
	}
	return nil
}

func scanTombstone(row pgx.Row) (*Tombstone, error) {
	var ts Tombstone
	var raw []byte
	err := row.Scan(&ts.ID, &ts.UserID, &ts.EntityType, &ts.EntityID, &raw, &ts.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("tombstone")
	}
	if err != nil {
		return nil, fmt.Errorf("scan tombstone: %w", err)
	}
	if err := json.Unmarshal(raw, &ts.Payload); err != nil {
		return nil, fmt.Errorf("decode tombstone payload: %w", err)
	}
	return &ts, nil
}
