// Package http is the request pipeline and resource handlers: envelope
// shaping, auth, idempotency, rate limiting, and the /api/v1 route table.
package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"taskhive/internal/apperr"
	"taskhive/internal/logging"
	"taskhive/internal/observability"
)

// Pagination is the list envelope's paging block.
type Pagination struct {
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type listEnvelope struct {
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	RetryAfter int            `json:"retry_after,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataEnvelope{Data: data})
}

func respondList(w http.ResponseWriter, data any, p Pagination) {
	writeJSON(w, http.StatusOK, listEnvelope{Data: data, Pagination: p})
}

func respondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// respondError translates a typed domain error into the error envelope.
// Untyped errors become opaque 500s.
func respondError(w http.ResponseWriter, r *http.Request, logger logging.Logger, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		logging.OrNop(logger).Error("unhandled error: %s %s: %v", r.Method, r.URL.Path, err)
		appErr = apperr.Internal(err)
	}

	body := errorBody{
		Code:      string(appErr.Code),
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: observability.RequestIDFromContext(r.Context()),
	}
	if appErr.RetryAfter > 0 {
		body.RetryAfter = appErr.RetryAfter
		w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
	}
	writeJSON(w, appErr.Status, errorEnvelope{Error: body})
}

// decodeBody parses a JSON request body into dst with unknown fields
// rejected.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid request body").WithCause(err)
	}
	return nil
}

// queryInt reads an integer query parameter with a default and bounds.
func queryInt(r *http.Request, key string, def, min, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return def
	}
	if v > max {
		return max
	}
	return v
}
