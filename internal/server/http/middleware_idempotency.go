package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/logging"
	"taskhive/internal/postgres"
)

const idempotencyTTL = 24 * time.Hour

// IdempotencyStore persists request keys and their cached responses.
type IdempotencyStore struct {
	db postgres.DB
}

// NewIdempotencyStore builds the store.
func NewIdempotencyStore(db postgres.DB) (*IdempotencyStore, error) {
	if db == nil {
		return nil, errors.New("idempotency store requires db")
	}
	return &IdempotencyStore{db: db}, nil
}

type idempotencyRecord struct {
	BodyHash       string
	ResponseStatus *int
	ResponseBody   []byte
}

func (s *IdempotencyStore) get(ctx context.Context, key, userID, path string) (*idempotencyRecord, error) {
	var rec idempotencyRecord
	err := s.db.QueryRow(ctx, `
SELECT body_hash, response_status, response_body
FROM idempotency_keys
WHERE key = $1 AND user_id = $2 AND path = $3 AND expires_at > NOW()`, key, userID, path).
		Scan(&rec.BodyHash, &rec.ResponseStatus, &rec.ResponseBody)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotency key: %w", err)
	}
	return &rec, nil
}

// reserve claims the key before the request runs. The primary key makes a
// concurrent duplicate lose the race and read the stored response instead.
func (s *IdempotencyStore) reserve(ctx context.Context, key, userID, path, bodyHash string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
INSERT INTO idempotency_keys (key, user_id, path, body_hash, expires_at)
VALUES ($1, $2, $3, $4, NOW() + $5)
ON CONFLICT (key, user_id, path) DO NOTHING`, key, userID, path, bodyHash, idempotencyTTL)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *IdempotencyStore) storeResponse(ctx context.Context, key, userID, path string, status int, body []byte) error {
	_, err := s.db.Exec(ctx, `
UPDATE idempotency_keys SET response_status = $4, response_body = $5
WHERE key = $1 AND user_id = $2 AND path = $3`, key, userID, path, status, body)
	if err != nil {
		return fmt.Errorf("store idempotent response: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) release(ctx context.Context, key, userID, path string) {
	_, _ = s.db.Exec(ctx, `
DELETE FROM idempotency_keys WHERE key = $1 AND user_id = $2 AND path = $3 AND response_status IS NULL`,
		key, userID, path)
}

// bufferingWriter captures the response so it can be replayed later.
type bufferingWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *bufferingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *bufferingWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	return w.ResponseWriter.Write(p)
}

// IdempotencyMiddleware deduplicates authenticated POST/PATCH requests that
// carry an Idempotency-Key header. A replay with the same body returns the
// stored response with X-Idempotent-Replayed; a replay with a different
// body fails with IDEMPOTENCY_CONFLICT.
func IdempotencyMiddleware(store *IdempotencyStore, logger logging.Logger) Middleware {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			userID := currentUserID(r.Context())
			if key == "" || userID == "" || (r.Method != http.MethodPost && r.Method != http.MethodPatch) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
			if err != nil {
				respondError(w, r, logger, apperr.Validation("unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			sum := sha256.Sum256(body)
			bodyHash := hex.EncodeToString(sum[:])
			path := r.URL.Path

			fresh, err := store.reserve(r.Context(), key, userID, path, bodyHash)
			if err != nil {
				respondError(w, r, logger, err)
				return
			}
			if !fresh {
				rec, err := store.get(r.Context(), key, userID, path)
				if err != nil {
					respondError(w, r, logger, err)
					return
				}
				if rec == nil || rec.BodyHash != bodyHash {
					respondError(w, r, logger, apperr.IdempotencyConflict())
					return
				}
				if rec.ResponseStatus == nil {
					// original request still in flight
					respondError(w, r, logger, apperr.Conflict("request with this idempotency key is still processing"))
					return
				}
				w.Header().Set("X-Idempotent-Replayed", "true")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(*rec.ResponseStatus)
				_, _ = w.Write(rec.ResponseBody)
				return
			}

			rec := &bufferingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// only 2xx and 4xx responses are worth replaying; a 5xx should
			// let the client retry the real operation
			if rec.status < 500 {
				if err := store.storeResponse(r.Context(), key, userID, path, rec.status, rec.buf.Bytes()); err != nil {
					logger.Error("persist idempotent response: %v", err)
				}
			} else {
				store.release(r.Context(), key, userID, path)
			}
		})
	}
}
