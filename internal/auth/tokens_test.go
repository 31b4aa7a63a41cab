package auth

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"taskhive/internal/apperr"
	"taskhive/internal/config"
	"taskhive/internal/credit"
	"taskhive/internal/user"
)

type staticVerifier struct{ identity *Identity }

func (v staticVerifier) Verify(context.Context, string) (*Identity, error) {
	return v.identity, nil
}

func newTestService(t *testing.T) (pgxmock.PgxPoolIface, *Service) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to build pgx mock: %v", err)
	}
	t.Cleanup(pool.Close)

	keys, err := LoadOrCreateKeypair(t.TempDir())
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	store, err := NewStore(pool)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	users, err := user.NewStore(pool)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	creditStore, err := credit.NewStore(pool)
	if err != nil {
		t.Fatalf("credit store: %v", err)
	}
	credits, err := credit.NewService(pool, creditStore, config.CreditConfig{KickstartAmount: 25}, nil, nil)
	if err != nil {
		t.Fatalf("credits: %v", err)
	}
	svc, err := NewService(pool, store, users, credits, staticVerifier{&Identity{Subject: "sub-1", Email: "a@b.c"}},
		keys, "taskhive", 15*time.Minute, 7*24*time.Hour, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return pool, svc
}

func TestAccessTokenRoundTrip(t *testing.T) {
	_, svc := newTestService(t)
	now := time.Now().UTC()

	token, err := svc.IssueAccessToken("u1", "pro", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u1" || claims.Tier != "pro" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestExpiredAccessTokenReportsTokenExpired(t *testing.T) {
	_, svc := newTestService(t)

	token, err := svc.IssueAccessToken("u1", "free", time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, err = svc.VerifyAccessToken(token)
	if !apperr.IsCode(err, apperr.CodeTokenExpired) {
		t.Fatalf("expected TOKEN_EXPIRED, got %v", err)
	}
}

func TestTamperedAccessTokenIsUnauthorized(t *testing.T) {
	_, svc := newTestService(t)

	token, err := svc.IssueAccessToken("u1", "free", time.Now().UTC())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, err = svc.VerifyAccessToken(token + "x")
	if !apperr.IsCode(err, apperr.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestRefreshTokenHashIsStable(t *testing.T) {
	raw, hash, err := newRefreshToken()
	if err != nil {
		t.Fatalf("new refresh token: %v", err)
	}
	if raw == "" || hash == "" {
		t.Fatal("empty token or hash")
	}
	if hashRefreshToken(raw) != hash {
		t.Fatal("hash does not match raw token")
	}

	raw2, hash2, _ := newRefreshToken()
	if raw == raw2 || hash == hash2 {
		t.Fatal("tokens must be unique")
	}
}

func TestRefreshRejectsRevokedToken(t *testing.T) {
	pool, svc := newTestService(t)
	revoked := time.Now().UTC().Add(-time.Hour)

	raw, hash, _ := newRefreshToken()
	pool.ExpectBegin()
	pool.ExpectQuery("SELECT id, user_id, token_hash, expires_at, revoked_at").
		WithArgs(hash).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "revoked_at"}).
			AddRow("r1", "u1", hash, time.Now().Add(24*time.Hour), &revoked))
	pool.ExpectRollback()

	_, err := svc.Refresh(context.Background(), raw)
	if !apperr.IsCode(err, apperr.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED for revoked token, got %v", err)
	}
}

func TestKeypairReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateKeypair(dir)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := LoadOrCreateKeypair(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if first.KeyID != second.KeyID {
		t.Fatalf("key id changed across reload: %s vs %s", first.KeyID, second.KeyID)
	}

	jwks := first.JWKS()
	keys, ok := jwks["keys"].([]map[string]any)
	if !ok || len(keys) != 1 {
		t.Fatalf("unexpected jwks shape %v", jwks)
	}
	if keys[0]["alg"] != "RS256" || keys[0]["kid"] != first.KeyID {
		t.Fatalf("unexpected jwk %v", keys[0])
	}
}
