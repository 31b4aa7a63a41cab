package task

import (
	"testing"
	"time"

	"taskhive/internal/apperr"
)

func TestNextOccurrenceDaily(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	after := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	next, err := nextOccurrence("FREQ=DAILY", anchor, after)
	if err != nil {
		t.Fatalf("next occurrence: %v", err)
	}
	if next == nil {
		t.Fatal("expected an occurrence")
	}
	want := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextOccurrenceWeeklyByDay(t *testing.T) {
	// anchored on a Sunday, recurring Mondays
	anchor := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	next, err := nextOccurrence("FREQ=WEEKLY;BYDAY=MO", anchor, anchor)
	if err != nil {
		t.Fatalf("next occurrence: %v", err)
	}
	if next == nil {
		t.Fatal("expected an occurrence")
	}
	if next.Weekday() != time.Monday {
		t.Fatalf("expected a Monday, got %v", next.Weekday())
	}
}

func TestNextOccurrenceExhaustedRule(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	next, err := nextOccurrence("FREQ=DAILY;COUNT=2", anchor, anchor.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("next occurrence: %v", err)
	}
	if next != nil {
		t.Fatalf("expected exhausted rule, got %v", next)
	}
}

func TestNextOccurrenceStripsRRulePrefix(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := nextOccurrence("RRULE:FREQ=DAILY", anchor, anchor); err != nil {
		t.Fatalf("prefixed rule rejected: %v", err)
	}
}

func TestParseRecurrenceRejectsGarbage(t *testing.T) {
	_, err := nextOccurrence("FREQ=SOMETIMES", time.Now(), time.Now())
	if !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}

	_, err = nextOccurrence("   ", time.Now(), time.Now())
	if !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for empty rule, got %v", err)
	}
}
