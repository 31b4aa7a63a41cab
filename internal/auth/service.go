package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/credit"
	"taskhive/internal/logging"
	"taskhive/internal/postgres"
	"taskhive/internal/user"
)

// TokenPair is what sign-in and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Service owns sign-in, token issuance, rotation, and logout.
type Service struct {
	db       postgres.DB
	store    *Store
	users    *user.Store
	credits  *credit.Service
	verifier IdentityVerifier
	keys     *Keypair

	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration

	logger logging.Logger
	now    func() time.Time
}

// NewService wires the auth service.
func NewService(db postgres.DB, store *Store, users *user.Store, credits *credit.Service, verifier IdentityVerifier, keys *Keypair, issuer string, accessTTL, refreshTTL time.Duration, logger logging.Logger) (*Service, error) {
	if db == nil || store == nil || users == nil || credits == nil || verifier == nil || keys == nil {
		return nil, errors.New("auth service requires db, store, users, credits, verifier, and keys")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Service{
		db:         db,
		store:      store,
		users:      users,
		credits:    credits,
		verifier:   verifier,
		keys:       keys,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logging.OrNop(logger),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// JWKS exposes the public signing key set.
func (s *Service) JWKS() map[string]any {
	return s.keys.JWKS()
}

// SignIn exchanges a provider id token for a session, creating the account
// and its kickstart grant on first sign-in.
func (s *Service) SignIn(ctx context.Context, idToken string) (*user.User, *TokenPair, error) {
	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, nil, err
	}

	u, err := s.users.GetBySubject(ctx, identity.Subject)
	if apperr.IsCode(err, apperr.CodeNotFound) {
		u, err = s.signUp(ctx, identity)
	}
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.issuePair(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// signUp creates the account and its one-time kickstart grant atomically. A
// concurrent first sign-in loses the unique-subject race and re-reads.
func (s *Service) signUp(ctx context.Context, identity *Identity) (*user.User, error) {
	var u *user.User
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		created, err := s.users.Create(ctx, tx, user.NewUserParams{
			ProviderSubject: identity.Subject,
			Email:           identity.Email,
			DisplayName:     identity.Name,
			AvatarURL:       identity.Picture,
		})
		if err != nil {
			return err
		}
		if err := s.credits.GrantKickstart(ctx, tx, created.ID); err != nil {
			return err
		}
		u = created
		return nil
	})
	if apperr.IsCode(err, apperr.CodeConflict) {
		s.logger.Info("concurrent first sign-in for subject, re-reading")
		return s.users.GetBySubject(ctx, identity.Subject)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("new account created: user=%s", u.ID)
	return u, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. A revoked or expired token fails with 401.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	now := s.now()
	var pair *TokenPair
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		rec, err := s.store.getRefresh(ctx, tx, hashRefreshToken(rawRefresh))
		if err != nil {
			return err
		}
		if rec.RevokedAt != nil {
			return apperr.Unauthorized("refresh token already used")
		}
		if now.After(rec.ExpiresAt) {
			return apperr.Unauthorized("refresh token expired")
		}
		if err := s.store.revokeRefresh(ctx, tx, rec.ID); err != nil {
			return err
		}

		u, err := s.users.GetByID(ctx, rec.UserID)
		if err != nil {
			return err
		}
		pair, err = s.issuePairTx(ctx, tx, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes every live refresh token for the user. Outstanding access
// tokens simply age out within their 15-minute lifetime.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.store.revokeAllForUser(ctx, s.db, userID)
}

func (s *Service) issuePair(ctx context.Context, u *user.User) (*TokenPair, error) {
	var pair *TokenPair
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		pair, err = s.issuePairTx(ctx, tx, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *Service) issuePairTx(ctx context.Context, tx pgx.Tx, u *user.User) (*TokenPair, error) {
	now := s.now()
	access, err := s.IssueAccessToken(u.ID, string(u.Tier), now)
	if err != nil {
		return nil, err
	}
	raw, hash, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.store.insertRefresh(ctx, tx, u.ID, hash, now.Add(s.refreshTTL)); err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresAt:    now.Add(s.accessTTL),
	}, nil
}
