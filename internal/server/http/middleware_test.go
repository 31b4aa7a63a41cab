package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskhive/internal/config"
)

func TestChainAppliesOutermostFirst(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := strings.Join(order, ","); got != "outer,inner,handler" {
		t.Fatalf("unexpected execution order %q", got)
	}
}

func TestRequestIDMiddlewareMintsWhenMissing(t *testing.T) {
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), RequestIDMiddleware())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a minted request id")
	}
}

func TestRequestIDMiddlewareKeepsClientValue(t *testing.T) {
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), RequestIDMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("request id = %q, want req-123", got)
	}
}

func TestIsAuthExempt(t *testing.T) {
	cases := []struct {
		path   string
		exempt bool
	}{
		{"/health/live", true},
		{"/metrics", true},
		{"/api/v1/auth/google/callback", true},
		{"/api/v1/auth/refresh", true},
		{"/api/v1/.well-known/jwks.json", true},
		{"/api/v1/webhooks/checkout", true},
		{"/api/v1/auth/logout", false},
		{"/api/v1/tasks", false},
		{"/api/v1/users/me", false},
	}
	for _, tc := range cases {
		if got := isAuthExempt(tc.path); got != tc.exempt {
			t.Errorf("isAuthExempt(%q) = %v, want %v", tc.path, got, tc.exempt)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc", "abc"},
		{"Basic dXNlcg==", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := bearerToken(tc.header); got != tc.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestRateLimitMiddlewareDeniesAfterBurst(t *testing.T) {
	cfg := config.RateLimitConfig{GeneralPerMinute: 2, AIPerMinute: 2, AuthPerMinute: 2}
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), RateLimitMiddleware(cfg, nil))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		h.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on 429")
	}
}

func TestRateLimitMiddlewareSeparatesClients(t *testing.T) {
	cfg := config.RateLimitConfig{GeneralPerMinute: 1, AIPerMinute: 1, AuthPerMinute: 1}
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), RateLimitMiddleware(cfg, nil))

	for i, addr := range []string{"10.0.0.1:80", "10.0.0.2:80"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
		req.RemoteAddr = addr
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("client %d status = %d, want 204", i, rec.Code)
		}
	}
}

func TestBucketFor(t *testing.T) {
	if bucketFor("/api/v1/ai/chat") != bucketAI {
		t.Error("ai path should use the ai bucket")
	}
	if bucketFor("/api/v1/notes/n1/convert") != bucketAI {
		t.Error("note conversion should use the ai bucket")
	}
	if bucketFor("/api/v1/notes/n1/transcribe") != bucketAI {
		t.Error("note transcription should use the ai bucket")
	}
	if bucketFor("/api/v1/notes/n1") != bucketGeneral {
		t.Error("plain note path should use the general bucket")
	}
	if bucketFor("/api/v1/auth/refresh") != bucketAuth {
		t.Error("auth path should use the auth bucket")
	}
	if bucketFor("/api/v1/tasks") != bucketGeneral {
		t.Error("task path should use the general bucket")
	}
}

func TestCORSMiddlewareRejectsUnknownOrigin(t *testing.T) {
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		CORSMiddleware([]string{"https://app.example.com"}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unknown origin must not be allowed")
	}
}

func TestCORSMiddlewareShortCircuitsPreflight(t *testing.T) {
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}), CORSMiddleware([]string{"https://app.example.com"}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatal("allowed origin should be echoed")
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("clientIP = %q, want 203.0.113.7", got)
	}
}

func TestCompletedQuery(t *testing.T) {
	if v, err := completedQuery(""); err != nil || v != nil {
		t.Fatal("empty value should mean no filter")
	}
	if v, err := completedQuery("true"); err != nil || v == nil || !*v {
		t.Fatal("true should parse")
	}
	if _, err := completedQuery("yes"); err == nil {
		t.Fatal("invalid literal should fail")
	}
}
