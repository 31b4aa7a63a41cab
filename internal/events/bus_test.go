package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRunsHandlersInRegistrationOrder(t *testing.T) {
	bus := NewBus(nil, nil)

	var order []string
	bus.SubscribeAll(func(ctx context.Context, tx pgx.Tx, evt Event) error {
		order = append(order, "all")
		return nil
	})
	bus.Subscribe(TaskCompleted, func(ctx context.Context, tx pgx.Tx, evt Event) error {
		order = append(order, "first")
		return nil
	})
	bus.Subscribe(TaskCompleted, func(ctx context.Context, tx pgx.Tx, evt Event) error {
		order = append(order, "second")
		return nil
	})

	errs := bus.Dispatch(context.Background(), nil, Event{Type: TaskCompleted, OccurredAt: time.Now()})
	require.Empty(t, errs)
	assert.Equal(t, []string{"all", "first", "second"}, order)
}

func TestDispatchIsolatesHandlerFailures(t *testing.T) {
	bus := NewBus(nil, nil)

	boom := errors.New("boom")
	var secondRan bool
	bus.Subscribe(TaskDeleted, func(ctx context.Context, tx pgx.Tx, evt Event) error {
		return boom
	})
	bus.Subscribe(TaskDeleted, func(ctx context.Context, tx pgx.Tx, evt Event) error {
		secondRan = true
		return nil
	})

	errs := bus.Dispatch(context.Background(), nil, Event{Type: TaskDeleted})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.True(t, secondRan, "a failing handler must not mask later handlers")
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	bus := NewBus(nil, nil)

	bus.Subscribe(NoteConverted, func(ctx context.Context, tx pgx.Tx, evt Event) error {
		panic("unexpected")
	})

	errs := bus.Dispatch(context.Background(), nil, Event{Type: NoteConverted})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "handler panic")
}

func TestDispatchWithNoHandlers(t *testing.T) {
	bus := NewBus(nil, nil)
	errs := bus.Dispatch(context.Background(), nil, Event{Type: ReminderFired})
	assert.Empty(t, errs)
}
