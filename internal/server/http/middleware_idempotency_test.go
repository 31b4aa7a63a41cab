package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"taskhive/internal/auth"
)

func newIdempotencyFixture(t *testing.T) (pgxmock.PgxPoolIface, http.Handler) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to build pgx mock: %v", err)
	}
	t.Cleanup(pool.Close)

	store, err := NewIdempotencyStore(pool)
	if err != nil {
		t.Fatalf("new idempotency store: %v", err)
	}
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"t1"}}`))
	}), IdempotencyMiddleware(store, nil))
	return pool, h
}

func authedRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	claims := &auth.Claims{UserID: "u1", Tier: "free"}
	return req.WithContext(context.WithValue(req.Context(), claimsContextKey, claims))
}

func bodyHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func TestIdempotencyMiddlewareSkipsWithoutKey(t *testing.T) {
	pool, h := newIdempotencyFixture(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/tasks", `{}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatalf("no queries expected without a key: %v", err)
	}
}

func TestIdempotencyMiddlewareStoresFreshResponse(t *testing.T) {
	pool, h := newIdempotencyFixture(t)
	body := `{"title":"buy milk"}`

	pool.ExpectExec(`INSERT INTO idempotency_keys`).
		WithArgs("key-1", "u1", "/api/v1/tasks", bodyHash(body), idempotencyTTL).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec(`UPDATE idempotency_keys SET response_status`).
		WithArgs("key-1", "u1", "/api/v1/tasks", http.StatusCreated, []byte(`{"data":{"id":"t1"}}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	req := authedRequest(http.MethodPost, "/api/v1/tasks", body)
	req.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if rec.Header().Get("X-Idempotent-Replayed") != "" {
		t.Fatal("fresh request must not be marked replayed")
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	pool, h := newIdempotencyFixture(t)
	body := `{"title":"buy milk"}`
	status := http.StatusCreated

	pool.ExpectExec(`INSERT INTO idempotency_keys`).
		WithArgs("key-1", "u1", "/api/v1/tasks", bodyHash(body), idempotencyTTL).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	pool.ExpectQuery(`SELECT body_hash, response_status, response_body`).
		WithArgs("key-1", "u1", "/api/v1/tasks").
		WillReturnRows(pgxmock.NewRows([]string{"body_hash", "response_status", "response_body"}).
			AddRow(bodyHash(body), &status, []byte(`{"data":{"id":"t1"}}`)))

	req := authedRequest(http.MethodPost, "/api/v1/tasks", body)
	req.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if rec.Header().Get("X-Idempotent-Replayed") != "true" {
		t.Fatal("replay must set X-Idempotent-Replayed")
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestIdempotencyMiddlewareRejectsChangedBody(t *testing.T) {
	pool, h := newIdempotencyFixture(t)
	status := http.StatusCreated

	pool.ExpectExec(`INSERT INTO idempotency_keys`).
		WithArgs("key-1", "u1", "/api/v1/tasks", bodyHash(`{"title":"different"}`), idempotencyTTL).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	pool.ExpectQuery(`SELECT body_hash, response_status, response_body`).
		WithArgs("key-1", "u1", "/api/v1/tasks").
		WillReturnRows(pgxmock.NewRows([]string{"body_hash", "response_status", "response_body"}).
			AddRow(bodyHash(`{"title":"original"}`), &status, []byte(`{}`)))

	req := authedRequest(http.MethodPost, "/api/v1/tasks", `{"title":"different"}`)
	req.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "IDEMPOTENCY_CONFLICT") {
		t.Fatalf("body = %s, want IDEMPOTENCY_CONFLICT", rec.Body.String())
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestIdempotencyMiddlewareInFlightDuplicate(t *testing.T) {
	pool, h := newIdempotencyFixture(t)
	body := `{"title":"buy milk"}`

	pool.ExpectExec(`INSERT INTO idempotency_keys`).
		WithArgs("key-1", "u1", "/api/v1/tasks", bodyHash(body), idempotencyTTL).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	pool.ExpectQuery(`SELECT body_hash, response_status, response_body`).
		WithArgs("key-1", "u1", "/api/v1/tasks").
		WillReturnRows(pgxmock.NewRows([]string{"body_hash", "response_status", "response_body"}).
			AddRow(bodyHash(body), nil, nil))

	req := authedRequest(http.MethodPost, "/api/v1/tasks", body)
	req.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
