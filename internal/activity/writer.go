package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"taskhive/internal/events"
)

// Writer is the bus handler that turns every domain event into an audit row.
type Writer struct {
	store *Store
}

// NewWriter builds the writer.
func NewWriter(store *Store) *Writer {
	return &Writer{store: store}
}

// Register subscribes the writer to every event.
func (w *Writer) Register(bus *events.Bus) {
	bus.SubscribeAll(w.handle)
}

func (w *Writer) handle(ctx context.Context, tx pgx.Tx, evt events.Event) error {
	if evt.UserID == "" {
		return nil
	}
	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return w.store.Insert(ctx, tx, &Record{
		ID:         uuid.NewString(),
		UserID:     evt.UserID,
		EntityType: evt.EntityType,
		EntityID:   evt.EntityID,
		Action:     string(evt.Type),
		Source:     string(evt.Source),
		Extra:      evt.Extra,
		RequestID:  evt.RequestID,
		CreatedAt:  occurred,
	})
}

// CleanupOnce prunes rows older than the retention window in batches,
// returning the total removed.
func (w *Writer) CleanupOnce(ctx context.Context, batchSize int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -RetentionDays)
	var total int64
	for {
		n, err := w.store.DeleteOlderThan(ctx, cutoff, batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(batchSize) {
			return total, nil
		}
	}
}
