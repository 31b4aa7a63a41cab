package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/postgres"
)

// Store persists subscriptions and the webhook dedupe ledger.
type Store struct {
	db postgres.DB
}

// NewStore builds a Store backed by the provided connection pool.
func NewStore(db postgres.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("billing store requires db")
	}
	return &Store{db: db}, nil
}

const subscriptionColumns = `id, user_id, external_id, status, period_start, period_end, grace_end, failed_payments, grace_warning_sent, cancelled_at, created_at, updated_at`

// GetByUser loads the user's subscription.
func (s *Store) GetByUser(ctx context.Context, q postgres.Querier, userID string) (*Subscription, error) {
	row := q.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)
	return scanSubscription(row)
}

// GetByExternalIDForUpdate locks and loads a subscription by the gateway's
// id. Webhook processing holds this lock for the whole transition.
func (s *Store) GetByExternalIDForUpdate(ctx context.Context, q postgres.Querier, externalID string) (*Subscription, error) {
	row := q.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_id = $1 FOR UPDATE`, externalID)
	return scanSubscription(row)
}

// Upsert writes the full subscription row keyed by user.
func (s *Store) Upsert(ctx context.Context, q postgres.Querier, sub *Subscription) error {
	_, err := q.Exec(ctx, `
INSERT INTO subscriptions (`+subscriptionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
ON CONFLICT (user_id) DO UPDATE SET
    external_id        = EXCLUDED.external_id,
    status             = EXCLUDED.status,
    period_start       = EXCLUDED.period_start,
    period_end         = EXCLUDED.period_end,
    grace_end          = EXCLUDED.grace_end,
    failed_payments    = EXCLUDED.failed_payments,
    grace_warning_sent = EXCLUDED.grace_warning_sent,
    cancelled_at       = EXCLUDED.cancelled_at,
    updated_at         = NOW()`,
		sub.ID, sub.UserID, sub.ExternalID, string(sub.Status), sub.PeriodStart, sub.PeriodEnd,
		sub.GraceEnd, sub.FailedPayments, sub.GraceWarningSent, sub.CancelledAt, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// RecordWebhookEvent claims an event id. Returns false when the id was
// already processed; the unique primary key makes duplicate deliveries
// no-ops.
func (s *Store) RecordWebhookEvent(ctx context.Context, q postgres.Querier, eventID, eventType string) (bool, error) {
	tag, err := q.Exec(ctx, `
INSERT INTO webhook_events (event_id, event_type)
VALUES ($1, $2)
ON CONFLICT (event_id) DO NOTHING`, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListDueForSweep locks and returns subscriptions the daily job must
// examine: in grace or cancelled with a passed deadline, or in grace and
// unwarned.
func (s *Store) ListDueForSweep(ctx context.Context, q postgres.Querier, now time.Time, limit int) ([]*Subscription, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := q.Query(ctx, `
SELECT `+subscriptionColumns+` FROM subscriptions
WHERE (status = 'grace')
   OR (status = 'cancelled' AND period_end IS NOT NULL AND period_end <= $1)
ORDER BY updated_at
LIMIT $2
FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query sweep subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// MarkGraceWarned flags the warning notification as sent.
func (s *Store) MarkGraceWarned(ctx context.Context, q postgres.Querier, subID string) error {
	_, err := q.Exec(ctx,
		`UPDATE subscriptions SET grace_warning_sent = TRUE, updated_at = NOW() WHERE id = $1`, subID)
	if err != nil {
		return fmt.Errorf("mark grace warned: %w", err)
	}
	return nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	var status string
	err := row.Scan(&sub.ID, &sub.UserID, &sub.ExternalID, &status, &sub.PeriodStart, &sub.PeriodEnd,
		&sub.GraceEnd, &sub.FailedPayments, &sub.GraceWarningSent, &sub.CancelledAt,
		&sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("subscription")
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.Status = Status(status)
	return &sub, nil
}
