package achievement

import "time"

// utcDate truncates t to its UTC calendar date.
func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns whole UTC days from a to b.
func daysBetween(a, b time.Time) int {
	return int(utcDate(b).Sub(utcDate(a)) / (24 * time.Hour))
}

// applyCompletion advances the streak stats for a task completion at
// completedAt. Same-day repeats are no-ops for the streak; a one-day gap
// extends it; anything larger restarts at 1.
func applyCompletion(state *State, completedAt time.Time) {
	day := utcDate(completedAt)

	switch {
	case state.LastCompletionDate == nil:
		state.CurrentStreak = 1
	default:
		switch delta := daysBetween(*state.LastCompletionDate, day); {
		case delta == 0:
			// second completion on the same UTC day
		case delta == 1:
			state.CurrentStreak++
		default:
			state.CurrentStreak = 1
		}
	}

	if state.CurrentStreak > state.LongestStreak {
		state.LongestStreak = state.CurrentStreak
	}
	state.LastCompletionDate = &day
}

// streakBroken reports whether the nightly sweep at now should reset the
// streak: the user completed nothing yesterday or earlier than yesterday.
func streakBroken(state *State, now time.Time) bool {
	if state.CurrentStreak == 0 || state.LastCompletionDate == nil {
		return false
	}
	return daysBetween(*state.LastCompletionDate, now) > 1
}
