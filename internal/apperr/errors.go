// Package apperr defines the typed errors raised by domain services and
// translated into the HTTP error envelope by the request pipeline.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable machine-readable error code exposed to clients.
type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeTokenExpired         Code = "TOKEN_EXPIRED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeTierRequired         Code = "TIER_REQUIRED"
	CodeNotFound             Code = "NOT_FOUND"
	CodeConflict             Code = "CONFLICT"
	CodeVersionConflict      Code = "VERSION_CONFLICT"
	CodeLimitExceeded        Code = "LIMIT_EXCEEDED"
	CodeTaskArchived         Code = "TASK_ARCHIVED"
	CodeDueDateExceeded      Code = "DUE_DATE_EXCEEDED"
	CodeIDCollision          Code = "ID_COLLISION"
	CodeInsufficientCredits  Code = "INSUFFICIENT_CREDITS"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"
	CodeAIServiceUnavailable Code = "AI_SERVICE_UNAVAILABLE"
	CodeAILimitExceeded      Code = "AI_LIMIT_EXCEEDED"
	CodeMaxDurationExceeded  Code = "MAX_DURATION_EXCEEDED"
	CodeIdempotencyConflict  Code = "IDEMPOTENCY_CONFLICT"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Error is a typed domain error with a stable code and an HTTP status.
type Error struct {
	Code       Code
	Message    string
	Status     int
	Details    map[string]any
	RetryAfter int // seconds; only for rate-limit errors
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches structured details, returning the same error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithCause attaches an underlying cause, returning the same error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// New constructs a typed error with an explicit code and status.
func New(code Code, status int, format string, args ...any) *Error {
	return &Error{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a request that failed a schema or domain constraint.
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, http.StatusBadRequest, format, args...)
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(format string, args ...any) *Error {
	return New(CodeUnauthorized, http.StatusUnauthorized, format, args...)
}

// TokenExpired signals the client to refresh its access token.
func TokenExpired() *Error {
	return New(CodeTokenExpired, http.StatusUnauthorized, "access token expired")
}

// Forbidden reports an operation the caller may not perform.
func Forbidden(format string, args ...any) *Error {
	return New(CodeForbidden, http.StatusForbidden, format, args...)
}

// TierRequired reports a feature gated behind the pro tier.
func TierRequired(feature string) *Error {
	return New(CodeTierRequired, http.StatusForbidden, "%s requires a pro subscription", feature)
}

// NotFound reports an unknown id. Cross-user access reports the same error so
// existence never leaks.
func NotFound(entity string) *Error {
	return New(CodeNotFound, http.StatusNotFound, "%s not found", entity)
}

// Conflict reports a state conflict that is not a version conflict.
func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, http.StatusConflict, format, args...)
}

// VersionConflict reports an optimistic lock failure.
func VersionConflict(expected, supplied int64) *Error {
	return New(CodeVersionConflict, http.StatusConflict, "version mismatch: stored %d, supplied %d", expected, supplied)
}

// LimitExceeded reports a write that would exceed an effective cap.
func LimitExceeded(what string, limit int) *Error {
	return New(CodeLimitExceeded, http.StatusConflict, "%s limit of %d reached", what, limit).
		WithDetails(map[string]any{"limit": limit})
}

// TaskArchived reports mutation of an archived task.
func TaskArchived() *Error {
	return New(CodeTaskArchived, http.StatusConflict, "task is archived")
}

// DueDateExceeded reports a due date more than one year out.
func DueDateExceeded() *Error {
	return New(CodeDueDateExceeded, http.StatusBadRequest, "due date is more than one year from now")
}

// IDCollision reports a recovery target id that already exists.
func IDCollision(id string) *Error {
	return New(CodeIDCollision, http.StatusConflict, "entity %s already exists", id)
}

// InsufficientCredits reports an AI operation the balance cannot cover.
func InsufficientCredits(required, available int64) *Error {
	return New(CodeInsufficientCredits, http.StatusPaymentRequired, "insufficient credits: need %d, have %d", required, available).
		WithDetails(map[string]any{"required": required, "available": available})
}

// RateLimited reports bucket exhaustion with a retry hint.
func RateLimited(retryAfter int) *Error {
	err := New(CodeRateLimitExceeded, http.StatusTooManyRequests, "rate limit exceeded")
	err.RetryAfter = retryAfter
	return err
}

// AIUnavailable reports a vendor timeout or malformed vendor response.
func AIUnavailable(format string, args ...any) *Error {
	return New(CodeAIServiceUnavailable, http.StatusServiceUnavailable, format, args...)
}

// AILimitExceeded reports the hard per-task AI request cap.
func AILimitExceeded(taskID string) *Error {
	return New(CodeAILimitExceeded, http.StatusConflict, "AI request limit reached for task %s", taskID)
}

// IdempotencyConflict reports a replayed key with a different body.
func IdempotencyConflict() *Error {
	return New(CodeIdempotencyConflict, http.StatusConflict, "idempotency key reused with a different request body")
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal error", Err: err}
}

// As extracts a typed error from an error chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	if appErr, ok := As(err); ok && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
