package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day string) time.Time {
	t, err := time.Parse(time.RFC3339, day)
	if err != nil {
		panic(err)
	}
	return t
}

func TestStreakFirstCompletion(t *testing.T) {
	state := &State{}
	applyCompletion(state, at("2026-03-04T09:30:00Z"))

	assert.Equal(t, 1, state.CurrentStreak)
	assert.Equal(t, 1, state.LongestStreak)
	require.NotNil(t, state.LastCompletionDate)
	assert.Equal(t, at("2026-03-04T00:00:00Z"), *state.LastCompletionDate)
}

func TestStreakSameDayIsNoop(t *testing.T) {
	state := &State{}
	applyCompletion(state, at("2026-03-04T09:30:00Z"))
	applyCompletion(state, at("2026-03-04T22:00:00Z"))

	assert.Equal(t, 1, state.CurrentStreak)
}

func TestStreakConsecutiveDayExtends(t *testing.T) {
	state := &State{}
	applyCompletion(state, at("2026-03-04T09:30:00Z"))
	applyCompletion(state, at("2026-03-05T01:00:00Z"))

	assert.Equal(t, 2, state.CurrentStreak)
	assert.Equal(t, 2, state.LongestStreak)
}

func TestStreakGapRestartsButKeepsLongest(t *testing.T) {
	state := &State{}
	applyCompletion(state, at("2026-03-01T12:00:00Z"))
	applyCompletion(state, at("2026-03-02T12:00:00Z"))
	applyCompletion(state, at("2026-03-03T12:00:00Z"))
	applyCompletion(state, at("2026-03-09T12:00:00Z"))

	assert.Equal(t, 1, state.CurrentStreak)
	assert.Equal(t, 3, state.LongestStreak)
}

func TestStreakCrossesUTCMidnightNotLocal(t *testing.T) {
	state := &State{}
	// 23:30Z on the 4th and 00:30Z on the 5th are adjacent UTC days
	applyCompletion(state, at("2026-03-04T23:30:00Z"))
	applyCompletion(state, at("2026-03-05T00:30:00Z"))

	assert.Equal(t, 2, state.CurrentStreak)
}

func TestStreakBroken(t *testing.T) {
	day := at("2026-03-05T00:00:00Z")
	state := &State{CurrentStreak: 2, LastCompletionDate: &day}

	assert.False(t, streakBroken(state, at("2026-03-06T00:05:00Z")), "completed yesterday, streak holds")
	assert.True(t, streakBroken(state, at("2026-03-07T00:05:00Z")), "no completion yesterday")
	assert.False(t, streakBroken(&State{}, at("2026-03-07T00:05:00Z")), "zero streak has nothing to reset")
}

func TestApplyPerks(t *testing.T) {
	defs := []Definition{
		{ID: "tasks-10", Category: CategoryTasks, Threshold: 10, PerkType: PerkMaxTasks, PerkValue: 5},
		{ID: "notes-5", Category: CategoryNotes, Threshold: 5, PerkType: PerkMaxNotes, PerkValue: 3},
		{ID: "streak-7", Category: CategoryStreaks, Threshold: 7, PerkType: PerkDailyCredits, PerkValue: 2},
		{ID: "focus-10", Category: CategoryFocus, Threshold: 10},
	}
	base := Limits{TaskMax: 20, NoteMax: 10, SubtaskMax: 4}

	got := ApplyPerks(base, defs, []string{"tasks-10", "streak-7", "focus-10", "unknown"})
	assert.Equal(t, Limits{TaskMax: 25, NoteMax: 10, SubtaskMax: 4, DailyCredits: 2}, got)
}

func TestNewlyMet(t *testing.T) {
	defs := []Definition{
		{ID: "tasks-10", Category: CategoryTasks, Threshold: 10},
		{ID: "tasks-50", Category: CategoryTasks, Threshold: 50},
		{ID: "notes-5", Category: CategoryNotes, Threshold: 5},
	}
	state := &State{TasksCompleted: 50, Unlocked: []string{"tasks-10"}}

	met := newlyMet(state, defs, CategoryTasks)
	require.Len(t, met, 1)
	assert.Equal(t, "tasks-50", met[0].ID)
}
