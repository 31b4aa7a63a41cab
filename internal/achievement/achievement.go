// Package achievement tracks per-user lifetime stats, streaks, and unlocked
// milestones, and computes the effective entity caps their perks grant.
package achievement

import "time"

// Category groups achievement definitions by the stat that drives them.
type Category string

const (
	CategoryTasks   Category = "tasks"
	CategoryStreaks Category = "streaks"
	CategoryFocus   Category = "focus"
	CategoryNotes   Category = "notes"
)

// PerkType names the cap an unlocked achievement raises.
type PerkType string

const (
	PerkMaxTasks     PerkType = "max_tasks"
	PerkMaxNotes     PerkType = "max_notes"
	PerkDailyCredits PerkType = "daily_credits"
)

// Definition is a static achievement row. Definitions are seeded by
// migration and read at startup.
type Definition struct {
	ID        string
	Name      string
	Category  Category
	Threshold int64
	PerkType  PerkType
	PerkValue int64
}

// State is the per-user stat row. Unlocked ids are append-only: perks are
// permanent even when the underlying stat later regresses.
type State struct {
	UserID             string
	TasksCompleted     int64
	CurrentStreak      int
	LongestStreak      int
	LastCompletionDate *time.Time
	FocusCompletions   int64
	NotesConverted     int64
	Unlocked           []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasUnlocked reports whether the achievement id is already in the set.
func (s *State) HasUnlocked(id string) bool {
	for _, got := range s.Unlocked {
		if got == id {
			return true
		}
	}
	return false
}

// statFor returns the stat value a category is judged against.
func (s *State) statFor(category Category) int64 {
	switch category {
	case CategoryTasks:
		return s.TasksCompleted
	case CategoryStreaks:
		return int64(s.CurrentStreak)
	case CategoryFocus:
		return s.FocusCompletions
	case CategoryNotes:
		return s.NotesConverted
	}
	return 0
}

// newlyMet returns the definitions in category whose threshold the state now
// meets and which are not yet unlocked.
func newlyMet(state *State, defs []Definition, category Category) []Definition {
	var met []Definition
	stat := state.statFor(category)
	for _, def := range defs {
		if def.Category != category || state.HasUnlocked(def.ID) {
			continue
		}
		if stat >= def.Threshold {
			met = append(met, def)
		}
	}
	return met
}

// Limits is the effective per-user entity cap set.
type Limits struct {
	TaskMax      int
	NoteMax      int
	SubtaskMax   int
	DailyCredits int64
}

// ApplyPerks folds the perks of the unlocked set into base limits. The
// subtask cap takes no perk.
func ApplyPerks(base Limits, defs []Definition, unlocked []string) Limits {
	byID := make(map[string]Definition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}
	out := base
	for _, id := range unlocked {
		def, ok := byID[id]
		if !ok {
			continue
		}
		switch def.PerkType {
		case PerkMaxTasks:
			out.TaskMax += int(def.PerkValue)
		case PerkMaxNotes:
			out.NoteMax += int(def.PerkValue)
		case PerkDailyCredits:
			out.DailyCredits += def.PerkValue
		}
	}
	return out
}
