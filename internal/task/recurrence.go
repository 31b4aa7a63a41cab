package task

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"taskhive/internal/apperr"
)

// parseRecurrence validates an RFC 5545 recurrence string anchored at start.
func parseRecurrence(rule string, start time.Time) (*rrule.RRule, error) {
	rule = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if rule == "" {
		return nil, apperr.Validation("recurrence rule is required")
	}
	opts, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, apperr.Validation("invalid recurrence rule: %v", err)
	}
	opts.Dtstart = start.UTC()
	r, err := rrule.NewRRule(*opts)
	if err != nil {
		return nil, apperr.Validation("invalid recurrence rule: %v", err)
	}
	return r, nil
}

// nextOccurrence returns the first occurrence strictly after the given time,
// or nil when the rule is exhausted.
func nextOccurrence(rule string, anchor, after time.Time) (*time.Time, error) {
	r, err := parseRecurrence(rule, anchor)
	if err != nil {
		return nil, err
	}
	next := r.After(after.UTC(), false)
	if next.IsZero() {
		return nil, nil
	}
	next = next.UTC()
	return &next, nil
}
