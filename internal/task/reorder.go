package task

import "taskhive/internal/apperr"

// validateReorder checks that orderedIDs is a permutation of the current
// sibling id set.
func validateReorder(current []*Subtask, orderedIDs []string) error {
	if len(orderedIDs) != len(current) {
		return apperr.Validation("reorder list must contain all %d subtasks", len(current))
	}
	existing := make(map[string]bool, len(current))
	for _, sub := range current {
		existing[sub.ID] = true
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !existing[id] {
			return apperr.Validation("unknown subtask id %s in reorder list", id)
		}
		if seen[id] {
			return apperr.Validation("duplicate subtask id %s in reorder list", id)
		}
		seen[id] = true
	}
	return nil
}
