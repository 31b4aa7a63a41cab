package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/logging"
	"taskhive/internal/observability"
)

// Handler reacts to a dispatched event. It receives the transaction of the
// emitting operation and must not commit or roll it back.
type Handler func(ctx context.Context, tx pgx.Tx, evt Event) error

// Bus maps event types to ordered handler lists. Registration happens once at
// startup; Dispatch is safe for concurrent use afterwards.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler

	logger  logging.Logger
	metrics *observability.MetricsCollector
}

// NewBus creates an empty bus.
func NewBus(logger logging.Logger, metrics *observability.MetricsCollector) *Bus {
	return &Bus{
		handlers: make(map[Type][]Handler),
		logger:   logging.OrNop(logger),
		metrics:  metrics,
	}
}

// Subscribe appends a handler for one event type. Handlers run in
// registration order.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll appends a handler that receives every event. All-handlers run
// before type-specific ones so the activity log records an event even when a
// downstream handler fails.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Dispatch runs every subscribed handler for evt in order. Handler errors are
// logged and collected; the returned slice is empty when all handlers
// succeeded. Panics inside a handler are converted to errors so one handler
// cannot take down the emitting request.
func (b *Bus) Dispatch(ctx context.Context, tx pgx.Tx, evt Event) []error {
	b.mu.RLock()
	chain := make([]Handler, 0, len(b.all)+len(b.handlers[evt.Type]))
	chain = append(chain, b.all...)
	chain = append(chain, b.handlers[evt.Type]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range chain {
		if err := b.invoke(ctx, tx, h, evt); err != nil {
			b.logger.Error("event handler failed: type=%s user=%s entity=%s err=%v",
				evt.Type, evt.UserID, evt.EntityID, err)
			errs = append(errs, err)
		}
	}
	b.metrics.RecordEventDispatch(ctx, string(evt.Type), len(errs))
	return errs
}

func (b *Bus) invoke(ctx context.Context, tx pgx.Tx, h Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, tx, evt)
}
