package achievement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/postgres"
)

// Store persists user achievement state and reads the static definitions.
type Store struct{}

// NewStore builds a Store. State rows are always read and written on a
// caller-provided querier so handler writes share the emitting transaction.
func NewStore() *Store {
	return &Store{}
}

const stateColumns = `user_id, tasks_completed, current_streak, longest_streak, last_completion_date, focus_completions, notes_converted, unlocked, created_at, updated_at`

// GetOrCreate loads the state row for a user, inserting the zero row on
// first touch.
func (s *Store) GetOrCreate(ctx context.Context, q postgres.Querier, userID string) (*State, error) {
	state, err := s.Get(ctx, q, userID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = q.Exec(ctx, `
INSERT INTO user_achievement_states (user_id, created_at, updated_at)
VALUES ($1, $2, $2)
ON CONFLICT (user_id) DO NOTHING`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("insert achievement state: %w", err)
	}
	return s.Get(ctx, q, userID)
}

// Get loads the state row. Returns pgx.ErrNoRows when the user has none yet.
func (s *Store) Get(ctx context.Context, q postgres.Querier, userID string) (*State, error) {
	row := q.QueryRow(ctx, `SELECT `+stateColumns+` FROM user_achievement_states WHERE user_id = $1`, userID)

	var state State
	var unlockedJSON []byte
	err := row.Scan(&state.UserID, &state.TasksCompleted, &state.CurrentStreak, &state.LongestStreak,
		&state.LastCompletionDate, &state.FocusCompletions, &state.NotesConverted, &unlockedJSON,
		&state.CreatedAt, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan achievement state: %w", err)
	}
	if len(unlockedJSON) > 0 {
		if err := json.Unmarshal(unlockedJSON, &state.Unlocked); err != nil {
			return nil, fmt.Errorf("decode unlocked set: %w", err)
		}
	}
	return &state, nil
}

// Save writes back every mutable stat of the state row.
func (s *Store) Save(ctx context.Context, q postgres.Querier, state *State) error {
	unlocked := state.Unlocked
	if unlocked == nil {
		unlocked = []string{}
	}
	unlockedJSON, err := json.Marshal(unlocked)
	if err != nil {
		return fmt.Errorf("encode unlocked set: %w", err)
	}

	_, err = q.Exec(ctx, `
UPDATE user_achievement_states SET
    tasks_completed      = $2,
    current_streak       = $3,
    longest_streak       = $4,
    last_completion_date = $5,
    focus_completions    = $6,
    notes_converted      = $7,
    unlocked             = $8,
    updated_at           = NOW()
WHERE user_id = $1`,
		state.UserID, state.TasksCompleted, state.CurrentStreak, state.LongestStreak,
		state.LastCompletionDate, state.FocusCompletions, state.NotesConverted, unlockedJSON)
	if err != nil {
		return fmt.Errorf("update achievement state: %w", err)
	}
	return nil
}

// ResetBrokenStreaks zeroes current_streak for every user whose last
// completion is before yesterday. Used by the nightly sweep, which is
// authoritative for resets.
func (s *Store) ResetBrokenStreaks(ctx context.Context, q postgres.Querier, now time.Time) (int64, error) {
	cutoff := utcDate(now).AddDate(0, 0, -1)
	tag, err := q.Exec(ctx, `
UPDATE user_achievement_states
SET current_streak = 0, updated_at = NOW()
WHERE current_streak > 0 AND last_completion_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset streaks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListDefinitions reads all static achievement definitions.
func (s *Store) ListDefinitions(ctx context.Context, q postgres.Querier) ([]Definition, error) {
	rows, err := q.Query(ctx, `
SELECT id, name, category, threshold, perk_type, perk_value
FROM achievement_definitions
ORDER BY category, threshold`)
	if err != nil {
		return nil, fmt.Errorf("query achievement definitions: %w", err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var def Definition
		var perkType *string
		var perkValue *int64
		if err := rows.Scan(&def.ID, &def.Name, &def.Category, &def.Threshold, &perkType, &perkValue); err != nil {
			return nil, fmt.Errorf("scan achievement definition: %w", err)
		}
		if perkType != nil {
			def.PerkType = PerkType(*perkType)
		}
		if perkValue != nil {
			def.PerkValue = *perkValue
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}
