package user

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

// Store persists users.
type Store struct {
	db postgres.DB
}

// NewStore builds a Store backed by the provided connection pool.
func NewStore(db postgres.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("user store requires db")
	}
	return &Store{db: db}, nil
}

const userColumns = `id, provider_subject, email, display_name, avatar_url, timezone, tier, created_at, updated_at`

// GetByID loads a user by id.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetBySubject loads a user by external identity-provider subject.
func (s *Store) GetBySubject(ctx context.Context, subject string) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE provider_subject = $1`, subject)
	return scanUser(row)
}

// NewUserParams is the identity payload of a first sign-in.
type NewUserParams struct {
	ProviderSubject string
	Email           string
	DisplayName     string
	AvatarURL       string
}

// Create inserts a fresh free-tier account. On a concurrent first sign-in the
// unique subject index wins the race; the caller should re-read by subject
// when Create reports a conflict.
func (s *Store) Create(ctx context.Context, q postgres.Querier, params NewUserParams) (*User, error) {
	now := time.Now().UTC()
	u := &User{
		ID:              uuid.NewString(),
		ProviderSubject: params.ProviderSubject,
		Email:           params.Email,
		DisplayName:     params.DisplayName,
		AvatarURL:       params.AvatarURL,
		Timezone:        "UTC",
		Tier:            TierFree,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := q.Exec(ctx, `
INSERT INTO users (id, provider_subject, email, display_name, avatar_url, timezone, tier, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.ProviderSubject, u.Email, u.DisplayName, u.AvatarURL, u.Timezone, string(u.Tier), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, apperr.Conflict("account already exists")
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// UpdateProfile applies a partial profile update and returns the fresh row.
func (s *Store) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error) {
	row := s.db.QueryRow(ctx, `
UPDATE users SET
    display_name = COALESCE($2, display_name),
    avatar_url   = COALESCE($3, avatar_url),
    timezone     = COALESCE($4, timezone),
    updated_at   = NOW()
WHERE id = $1
RETURNING `+userColumns,
		id, update.DisplayName, update.AvatarURL, update.Timezone)
	return scanUser(row)
}

// ListIDsByTier returns the ids of every user on the given tier. Used by
// the nightly credit grant.
func (s *Store) ListIDsByTier(ctx context.Context, q postgres.Querier, tier Tier) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT id FROM users WHERE tier = $1 ORDER BY created_at`, string(tier))
	if err != nil {
		return nil, fmt.Errorf("query users by tier: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetTier flips the subscription tier. Runs on the caller's transaction so
// the tier change commits with the subscription state change.
func (s *Store) SetTier(ctx context.Context, q postgres.Querier, id string, tier Tier) error {
	tag, err := q.Exec(ctx, `UPDATE users SET tier = $2, updated_at = NOW() WHERE id = $1`, id, string(tier))
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var tier string
	err := row.Scan(&u.ID, &u.ProviderSubject, &u.Email, &u.DisplayName, &u.AvatarURL, &u.Timezone, &tier, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Tier = Tier(tier)
	return &u, nil
}
