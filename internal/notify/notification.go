// Package notify covers in-app notifications, browser push delivery, and
// task reminders.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskhive/internal/apperr"
	"taskhive/internal/postgres"
)

// Notification is a user-scoped alert.
type Notification struct {
	ID        string
	UserID    string
	Kind      string
	Title     string
	Body      string
	ActionURL string
	Read      bool
	ReadAt    *time.Time
	CreatedAt time.Time
}

// Store persists notifications and push subscriptions.
type Store struct {
	db postgres.DB
}

// NewStore builds a Store backed by the provided connection pool.
func NewStore(db postgres.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("notify store requires db")
	}
	return &Store{db: db}, nil
}

// InsertNotification appends a notification on the caller's querier.
func (s *Store) InsertNotification(ctx context.Context, q postgres.Querier, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
INSERT INTO notifications (id, user_id, kind, title, body, action_url, read, created_at)
VALUES ($1,$2,$3,$4,$5,$6,FALSE,$7)`,
		n.ID, n.UserID, n.Kind, n.Title, n.Body, n.ActionURL, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a page of the user's notifications, newest
// first, plus the unread count.
func (s *Store) ListNotifications(ctx context.Context, userID string, offset, limit int) ([]*Notification, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var unread int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID).Scan(&unread); err != nil {
		return nil, 0, fmt.Errorf("count unread notifications: %w", err)
	}

	rows, err := s.db.Query(ctx, `
SELECT id, user_id, kind, title, body, action_url, read, read_at, created_at
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.ActionURL,
			&n.Read, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, &n)
	}
	return out, unread, rows.Err()
}

// MarkRead flags one notification read.
func (s *Store) MarkRead(ctx context.Context, userID, notificationID string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE notifications SET read = TRUE, read_at = NOW()
WHERE id = $1 AND user_id = $2 AND NOT read`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// distinguish already-read from missing
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)`,
			notificationID, userID).Scan(&exists); err != nil {
			return fmt.Errorf("check notification: %w", err)
		}
		if !exists {
			return apperr.NotFound("notification")
		}
	}
	return nil
}

// MarkAllRead flags every unread notification read and returns the count.
func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE notifications SET read = TRUE, read_at = NOW()
WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}
