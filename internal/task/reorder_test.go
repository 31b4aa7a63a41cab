package task

import (
	"testing"

	"taskhive/internal/apperr"
)

func siblings(ids ...string) []*Subtask {
	subs := make([]*Subtask, len(ids))
	for i, id := range ids {
		subs[i] = &Subtask{ID: id, OrderIndex: i}
	}
	return subs
}

func TestValidateReorderAcceptsPermutation(t *testing.T) {
	current := siblings("a", "b", "c")
	if err := validateReorder(current, []string{"c", "a", "b"}); err != nil {
		t.Fatalf("valid permutation rejected: %v", err)
	}
}

func TestValidateReorderRejectsShortList(t *testing.T) {
	err := validateReorder(siblings("a", "b", "c"), []string{"a", "b"})
	if !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestValidateReorderRejectsUnknownID(t *testing.T) {
	err := validateReorder(siblings("a", "b"), []string{"a", "x"})
	if !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestValidateReorderRejectsDuplicates(t *testing.T) {
	err := validateReorder(siblings("a", "b"), []string{"a", "a"})
	if !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestValidateReorderEmpty(t *testing.T) {
	if err := validateReorder(nil, nil); err != nil {
		t.Fatalf("empty sets should be a valid no-op: %v", err)
	}
}
