package achievement

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/config"
	"taskhive/internal/events"
	"taskhive/internal/logging"
	"taskhive/internal/postgres"
	"taskhive/internal/user"
)

// Engine folds domain events into per-user achievement state. It runs inside
// the emitting operation's transaction, so stat updates and unlocks commit
// atomically with the domain change that caused them.
type Engine struct {
	store  *Store
	defs   []Definition
	bus    *events.Bus
	limits config.LimitConfig
	logger logging.Logger
}

// NewEngine builds the engine. Definitions are loaded once; they are static
// seeded rows.
func NewEngine(ctx context.Context, db postgres.Querier, store *Store, bus *events.Bus, limits config.LimitConfig, logger logging.Logger) (*Engine, error) {
	defs, err := store.ListDefinitions(ctx, db)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:  store,
		defs:   defs,
		bus:    bus,
		limits: limits,
		logger: logging.OrNop(logger),
	}, nil
}

// Register subscribes the engine's handlers on the bus.
func (e *Engine) Register(bus *events.Bus) {
	bus.Subscribe(events.TaskCompleted, e.onTaskCompleted)
	bus.Subscribe(events.NoteConverted, e.onNoteConverted)
	bus.Subscribe(events.FocusCompleted, e.onFocusCompleted)
}

// Definitions returns the static definition set.
func (e *Engine) Definitions() []Definition {
	return e.defs
}

func (e *Engine) onTaskCompleted(ctx context.Context, tx pgx.Tx, evt events.Event) error {
	if evt.Recovered {
		// tombstone recovery replays completions without streak or
		// milestone credit
		return nil
	}
	state, err := e.store.GetOrCreate(ctx, tx, evt.UserID)
	if err != nil {
		return err
	}
	state.TasksCompleted++
	applyCompletion(state, evt.OccurredAt)

	e.checkCategory(ctx, tx, state, evt, CategoryTasks)
	e.checkCategory(ctx, tx, state, evt, CategoryStreaks)
	return e.store.Save(ctx, tx, state)
}

func (e *Engine) onNoteConverted(ctx context.Context, tx pgx.Tx, evt events.Event) error {
	state, err := e.store.GetOrCreate(ctx, tx, evt.UserID)
	if err != nil {
		return err
	}
	state.NotesConverted++
	e.checkCategory(ctx, tx, state, evt, CategoryNotes)
	return e.store.Save(ctx, tx, state)
}

func (e *Engine) onFocusCompleted(ctx context.Context, tx pgx.Tx, evt events.Event) error {
	state, err := e.store.GetOrCreate(ctx, tx, evt.UserID)
	if err != nil {
		return err
	}
	state.FocusCompletions++
	e.checkCategory(ctx, tx, state, evt, CategoryFocus)
	return e.store.Save(ctx, tx, state)
}

// checkCategory unlocks any newly met achievement in the category and emits
// an unlock event for each.
func (e *Engine) checkCategory(ctx context.Context, tx pgx.Tx, state *State, cause events.Event, category Category) {
	for _, def := range newlyMet(state, e.defs, category) {
		state.Unlocked = append(state.Unlocked, def.ID)
		e.logger.Info("achievement unlocked: user=%s achievement=%s", state.UserID, def.ID)
		e.bus.Dispatch(ctx, tx, events.Event{
			Type:       events.AchievementUnlocked,
			UserID:     state.UserID,
			EntityID:   def.ID,
			EntityType: "achievement",
			Source:     events.SourceSystem,
			OccurredAt: cause.OccurredAt,
			RequestID:  cause.RequestID,
			Extra:      map[string]any{"name": def.Name, "category": string(def.Category)},
		})
	}
}

// EffectiveLimits resolves the user's caps: tier base plus unlocked perks.
func (e *Engine) EffectiveLimits(ctx context.Context, q postgres.Querier, userID string, tier user.Tier) (Limits, error) {
	base := e.baseLimits(tier)
	state, err := e.store.GetOrCreate(ctx, q, userID)
	if err != nil {
		return Limits{}, err
	}
	return ApplyPerks(base, e.defs, state.Unlocked), nil
}

// State returns the user's stat row for the stats endpoint.
func (e *Engine) State(ctx context.Context, q postgres.Querier, userID string) (*State, error) {
	return e.store.GetOrCreate(ctx, q, userID)
}

// ResetBrokenStreaks is the nightly sweep entry point.
func (e *Engine) ResetBrokenStreaks(ctx context.Context, q postgres.Querier, now time.Time) (int64, error) {
	return e.store.ResetBrokenStreaks(ctx, q, now)
}

func (e *Engine) baseLimits(tier user.Tier) Limits {
	if tier == user.TierPro {
		return Limits{
			TaskMax:    e.limits.TaskMaxPro,
			NoteMax:    e.limits.NoteMaxPro,
			SubtaskMax: e.limits.SubtaskMaxPro,
		}
	}
	return Limits{
		TaskMax:    e.limits.TaskMaxFree,
		NoteMax:    e.limits.NoteMaxFree,
		SubtaskMax: e.limits.SubtaskMaxFree,
	}
}
