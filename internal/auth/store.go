package auth

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

// refreshRecord is one stored refresh token hash.
type refreshRecord struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Store persists refresh token hashes.
type Store struct {
	db postgres.DB
}

// NewStore builds a Store backed by the provided connection pool.
func NewStore(db postgres.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("auth store requires db")
	}
	return &Store{db: db}, nil
}

func (s *Store) insertRefresh(ctx context.Context, q postgres.Querier, userID, tokenHash string, expiresAt time.Time) error {
	_, err := q.Exec(ctx, `
INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
VALUES ($1, $2, $3, $4)`, uuid.NewString(), userID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// getRefresh loads a token record by hash. Unknown hashes are indistinct
// from revoked ones at the service layer.
func (s *Store) getRefresh(ctx context.Context, q postgres.Querier, tokenHash string) (*refreshRecord, error) {
	var r refreshRecord
	err := q.QueryRow(ctx, `
SELECT id, user_id, token_hash, expires_at, revoked_at
FROM refresh_tokens WHERE token_hash = $1`, tokenHash).
		Scan(&r.ID, &r.UserID, &r.TokenHash, &r.ExpiresAt, &r.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Unauthorized("unknown refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	return &r, nil
}

func (s *Store) revokeRefresh(ctx context.Context, q postgres.Querier, id string) error {
	_, err := q.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// revokeAllForUser invalidates every live refresh token. Used by logout.
func (s *Store) revokeAllForUser(ctx context.Context, q postgres.Querier, userID string) error {
	_, err := q.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}
