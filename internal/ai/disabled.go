package ai

import (
	"context"

	"taskhive/internal/apperr"
)

// disabledVendor rejects every call. Used when no provider is configured so
// the rest of the API still serves.
type disabledVendor struct{}

// Disabled returns a vendor that always reports the assistant unavailable.
func Disabled() Vendor {
	return disabledVendor{}
}

func (disabledVendor) Chat(context.Context, ChatInput) (*ChatOutput, error) {
	return nil, apperr.AIUnavailable("assistant is not configured")
}

func (disabledVendor) ChatStream(context.Context, ChatInput, StreamFunc) (*ChatOutput, error) {
	return nil, apperr.AIUnavailable("assistant is not configured")
}

func (disabledVendor) GenerateSubtasks(context.Context, SubtaskInput) (*SubtaskOutput, error) {
	return nil, apperr.AIUnavailable("assistant is not configured")
}

func (disabledVendor) SuggestTask(context.Context, string, int) (*TaskSuggestion, error) {
	return nil, apperr.AIUnavailable("assistant is not configured")
}

func (disabledVendor) Transcribe(context.Context, string, int) (string, bool, error) {
	return "", false, apperr.AIUnavailable("assistant is not configured")
}
