package note

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/postgres"
)

// Store persists notes.
type Store struct {
	db postgres.DB
}

// NewStore builds a Store backed by the provided connection pool.
func NewStore(db postgres.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("note store requires db")
	}
	return &Store{db: db}, nil
}

const noteColumns = `id, user_id, body, voice_url, voice_seconds, transcription_status, archived, created_at, updated_at`

// Insert writes a new note row.
func (s *Store) Insert(ctx context.Context, q postgres.Querier, n *Note) error {
	_, err := q.Exec(ctx, `
INSERT INTO notes (`+noteColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		n.ID, n.UserID, n.Body, n.VoiceURL, n.VoiceSeconds, statusValue(n.TranscriptionStatus),
		n.Archived, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// Get loads one note confined to the owner.
func (s *Store) Get(ctx context.Context, q postgres.Querier, userID, noteID string) (*Note, error) {
	row := q.QueryRow(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = $1 AND user_id = $2`, noteID, userID)
	return scanNote(row)
}

// List returns a page of the user's unarchived notes plus the total.
func (s *Store) List(ctx context.Context, userID string, offset, limit int) ([]*Note, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var total int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notes WHERE user_id = $1 AND NOT archived`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notes: %w", err)
	}

	rows, err := s.db.Query(ctx, `
SELECT `+noteColumns+` FROM notes
WHERE user_id = $1 AND NOT archived
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		notes = append(notes, n)
	}
	return notes, total, rows.Err()
}

// CountActive counts unarchived notes for the cap check.
func (s *Store) CountActive(ctx context.Context, q postgres.Querier, userID string) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM notes WHERE user_id = $1 AND NOT archived`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active notes: %w", err)
	}
	return n, nil
}

// UpdateBody rewrites the note text.
func (s *Store) UpdateBody(ctx context.Context, q postgres.Querier, userID, noteID, body string) (*Note, error) {
	row := q.QueryRow(ctx, `
UPDATE notes SET body = $3, updated_at = NOW()
WHERE id = $1 AND user_id = $2 AND NOT archived
RETURNING `+noteColumns, noteID, userID, body)
	return scanNote(row)
}

// SetTranscription records the outcome of a voice transcription.
func (s *Store) SetTranscription(ctx context.Context, q postgres.Querier, userID, noteID string, status TranscriptionStatus, body string) error {
	tag, err := q.Exec(ctx, `
UPDATE notes SET transcription_status = $3, body = COALESCE(NULLIF($4, ''), body), updated_at = NOW()
WHERE id = $1 AND user_id = $2`, noteID, userID, string(status), body)
	if err != nil {
		return fmt.Errorf("set transcription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("note")
	}
	return nil
}

// Archive flags the note archived. Conversion to a task archives rather
// than deletes.
func (s *Store) Archive(ctx context.Context, q postgres.Querier, userID, noteID string) error {
	tag, err := q.Exec(ctx, `
UPDATE notes SET archived = TRUE, updated_at = NOW()
WHERE id = $1 AND user_id = $2 AND NOT archived`, noteID, userID)
	if err != nil {
		return fmt.Errorf("archive note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("note")
	}
	return nil
}

// Delete removes the note row.
func (s *Store) Delete(ctx context.Context, q postgres.Querier, userID, noteID string) error {
	tag, err := q.Exec(ctx, `DELETE FROM notes WHERE id = $1 AND user_id = $2`, noteID, userID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("note")
	}
	return nil
}

func statusValue(s *TranscriptionStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func scanNote(row pgx.Row) (*Note, error) {
	var n Note
	var status *string
	err := row.Scan(&n.ID, &n.UserID, &n.Body, &n.VoiceURL, &n.VoiceSeconds, &status,
		&n.Archived, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("note")
	}
	if err != nil {
		return nil, fmt.Errorf("scan note: %w", err)
	}
	if status != nil {
		st := TranscriptionStatus(*status)
		n.TranscriptionStatus = &st
	}
	return &n, nil
}
