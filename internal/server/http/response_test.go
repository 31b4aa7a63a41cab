package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskhive/internal/apperr"
)

func TestRespondErrorShapesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/nope", nil)
	respondError(rec, req, nil, apperr.NotFound("task"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "NOT_FOUND" {
		t.Fatalf("code = %q, want NOT_FOUND", envelope.Error.Code)
	}
}

func TestRespondErrorHidesUntypedDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	respondError(rec, req, nil, json.Unmarshal([]byte("{"), &struct{}{}))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "unexpected end") {
		t.Fatal("internal error detail leaked to the client")
	}
}

func TestRespondErrorSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat", nil)
	respondError(rec, req, nil, apperr.RateLimited(60))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}
}

func TestDecodeBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(`{"title":"x","bogus":1}`))
	var dst struct {
		Title string `json:"title"`
	}
	if err := decodeBody(req, &dst); err == nil {
		t.Fatal("unknown field should fail validation")
	}
}

func TestQueryIntBounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?limit=500", nil)
	if got := queryInt(req, "limit", 50, 1, 100); got != 100 {
		t.Fatalf("limit = %d, want clamp to 100", got)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks?limit=abc", nil)
	if got := queryInt(req, "limit", 50, 1, 100); got != 50 {
		t.Fatalf("limit = %d, want default 50", got)
	}
}

func TestValidateStructReportsFields(t *testing.T) {
	req := createTaskRequest{Title: ""}
	err := validateStruct(req)
	if err == nil {
		t.Fatal("missing title should fail")
	}
	appErr, ok := apperr.As(err)
	if !ok || appErr.Code != apperr.CodeValidation {
		t.Fatalf("want VALIDATION error, got %v", err)
	}
	if _, ok := appErr.Details["Title"]; !ok {
		t.Fatalf("details should name the failing field, got %v", appErr.Details)
	}
}
