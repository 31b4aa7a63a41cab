package http

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"taskhive/internal/apperr"
	"taskhive/internal/config"
	"taskhive/internal/logging"
)

// bucket selects which rate limit applies to a path.
type bucket int

const (
	bucketGeneral bucket = iota
	bucketAI
	bucketAuth
)

func bucketFor(path string) bucket {
	switch {
	case strings.HasPrefix(path, "/api/v1/ai/"):
		return bucketAI
	// Note conversion and transcription live under /notes but are vendor
	// calls, so they share the AI budget.
	case strings.HasPrefix(path, "/api/v1/notes/") &&
		(strings.HasSuffix(path, "/convert") || strings.HasSuffix(path, "/transcribe")):
		return bucketAI
	case strings.HasPrefix(path, "/api/v1/auth/"):
		return bucketAuth
	default:
		return bucketGeneral
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiter holds one token bucket per key with TTL eviction.
type keyedLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	entries     map[string]*limiterEntry
	lastCleanup time.Time
}

const (
	limiterEntryTTL        = 15 * time.Minute
	limiterCleanupInterval = 5 * time.Minute
)

func newKeyedLimiter(perMinute int) *keyedLimiter {
	return &keyedLimiter{
		limit:       rate.Every(time.Minute / time.Duration(perMinute)),
		burst:       perMinute,
		entries:     make(map[string]*limiterEntry),
		lastCleanup: time.Now(),
	}
}

func (l *keyedLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) >= limiterCleanupInterval {
		for k, e := range l.entries {
			if now.Sub(e.lastSeen) > limiterEntryTTL {
				delete(l.entries, k)
			}
		}
		l.lastCleanup = now
	}

	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// RateLimitMiddleware enforces the three per-minute buckets: general by
// user (IP when anonymous), AI by user, auth by client IP.
func RateLimitMiddleware(cfg config.RateLimitConfig, logger logging.Logger) Middleware {
	limiters := map[bucket]*keyedLimiter{
		bucketGeneral: newKeyedLimiter(cfg.GeneralPerMinute),
		bucketAI:      newKeyedLimiter(cfg.AIPerMinute),
		bucketAuth:    newKeyedLimiter(cfg.AuthPerMinute),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			b := bucketFor(r.URL.Path)
			key := "ip:" + clientIP(r)
			if b != bucketAuth {
				if userID := currentUserID(r.Context()); userID != "" {
					key = "user:" + userID
				}
			}
			if !limiters[b].allow(key) {
				respondError(w, r, logger, apperr.RateLimited(60))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
