package ai

import (
	"testing"

	"taskhive/internal/apperr"
)

func TestTranscriptionCost(t *testing.T) {
	cases := []struct {
		seconds int
		want    int64
	}{
		{1, 5},
		{59, 5},
		{60, 5},
		{61, 10},
		{120, 10},
		{121, 15},
		{300, 25},
		{0, 5},
	}
	for _, c := range cases {
		if got := transcriptionCost(c.seconds); got != c.want {
			t.Fatalf("transcriptionCost(%d) = %d, want %d", c.seconds, got, c.want)
		}
	}
}

func TestSubtaskTitles(t *testing.T) {
	titles, err := subtaskTitles(map[string]any{"titles": []any{"a", "b"}}, "titles")
	if err != nil {
		t.Fatalf("valid titles rejected: %v", err)
	}
	if len(titles) != 2 || titles[0] != "a" {
		t.Fatalf("unexpected titles %v", titles)
	}

	if _, err := subtaskTitles(map[string]any{}, "titles"); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("missing titles should be a validation error, got %v", err)
	}
	if _, err := subtaskTitles(map[string]any{"titles": []any{"a", 3}}, "titles"); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("non-string title should be a validation error, got %v", err)
	}
	if _, err := subtaskTitles(map[string]any{"titles": []any{"  "}}, "titles"); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("blank title should be a validation error, got %v", err)
	}
}

func TestTimeParam(t *testing.T) {
	ts, err := timeParam(map[string]any{"due_date": "2026-07-01T10:00:00Z"}, "due_date")
	if err != nil || ts == nil {
		t.Fatalf("valid timestamp rejected: %v", err)
	}

	ts, err = timeParam(map[string]any{}, "due_date")
	if err != nil || ts != nil {
		t.Fatalf("absent timestamp should be nil, got %v / %v", ts, err)
	}

	if _, err := timeParam(map[string]any{"due_date": "tomorrow"}, "due_date"); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("garbage timestamp should be a validation error, got %v", err)
	}
}

func TestIntParam(t *testing.T) {
	// JSON decoding yields float64
	if got := intParam(map[string]any{"estimated_minutes": float64(30)}, "estimated_minutes"); got == nil || *got != 30 {
		t.Fatalf("float param not decoded, got %v", got)
	}
	if got := intParam(map[string]any{}, "estimated_minutes"); got != nil {
		t.Fatalf("absent param should be nil, got %v", got)
	}
}
