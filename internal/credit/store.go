package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskhive/internal/postgres"
)

// Store reads and appends ledger rows. All mutation paths run on a caller
// transaction; the ledger itself is append-only apart from the consumed
// counter and the expired flag.
type Store struct {
	db postgres.DB
}

// NewStore builds a Store backed by the provided connection pool.
func NewStore(db postgres.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("credit store requires db")
	}
	return &Store{db: db}, nil
}

const entryColumns = `id, user_id, credit_type, operation, amount, consumed, balance_after, expires_at, expired, source_id, operation_ref, grant_day, created_at`

// LockActiveGrants locks and returns the user's spendable rows in creation
// order. FOR UPDATE serializes concurrent consumes on the same user.
func (s *Store) LockActiveGrants(ctx context.Context, q postgres.Querier, userID string, now time.Time) ([]*Entry, error) {
	rows, err := q.Query(ctx, `
SELECT `+entryColumns+`
FROM credit_ledger
WHERE user_id = $1
  AND operation IN ('grant', 'carryover')
  AND NOT expired
  AND (expires_at IS NULL OR expires_at > $2)
ORDER BY created_at
FOR UPDATE`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("lock credit grants: %w", err)
	}
	defer rows.Close()

	var grants []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, e)
	}
	return grants, rows.Err()
}

// Insert appends a ledger row.
func (s *Store) Insert(ctx context.Context, q postgres.Querier, e *Entry) error {
	_, err := q.Exec(ctx, `
INSERT INTO credit_ledger (`+entryColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.UserID, string(e.Type), string(e.Operation), e.Amount, e.Consumed, e.BalanceAfter,
		e.ExpiresAt, e.Expired, e.SourceID, e.OperationRef, e.GrantDay, e.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return errDuplicateGrant
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// errDuplicateGrant signals an idempotent grant already applied; callers
// treat it as a no-op.
var errDuplicateGrant = errors.New("duplicate grant")

// AddConsumed bumps the consumed counter of one grant row.
func (s *Store) AddConsumed(ctx context.Context, q postgres.Querier, entryID string, amount int64) error {
	_, err := q.Exec(ctx, `UPDATE credit_ledger SET consumed = consumed + $2 WHERE id = $1`, entryID, amount)
	if err != nil {
		return fmt.Errorf("debit grant %s: %w", entryID, err)
	}
	return nil
}

// MarkExpired flags a grant row as expired.
func (s *Store) MarkExpired(ctx context.Context, q postgres.Querier, entryID string) error {
	_, err := q.Exec(ctx, `UPDATE credit_ledger SET expired = TRUE WHERE id = $1`, entryID)
	if err != nil {
		return fmt.Errorf("expire grant %s: %w", entryID, err)
	}
	return nil
}

// BalanceFor computes the per-class spendable balance at now.
func (s *Store) BalanceFor(ctx context.Context, q postgres.Querier, userID string, now time.Time) (Balance, error) {
	rows, err := q.Query(ctx, `
SELECT credit_type, COALESCE(SUM(amount - consumed), 0)
FROM credit_ledger
WHERE user_id = $1
  AND operation IN ('grant', 'carryover')
  AND NOT expired
  AND (expires_at IS NULL OR expires_at > $2)
GROUP BY credit_type`, userID, now)
	if err != nil {
		return Balance{}, fmt.Errorf("query balance: %w", err)
	}
	defer rows.Close()

	var balance Balance
	for rows.Next() {
		var class string
		var sum int64
		if err := rows.Scan(&class, &sum); err != nil {
			return Balance{}, fmt.Errorf("scan balance: %w", err)
		}
		balance.add(Type(class), sum)
	}
	return balance, rows.Err()
}

// PurchasedThisMonth sums purchased grants inside the current calendar
// month, for the monthly purchase cap.
func (s *Store) PurchasedThisMonth(ctx context.Context, q postgres.Querier, userID string, now time.Time) (int64, error) {
	y, m, _ := now.UTC().Date()
	monthStart := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)

	var sum int64
	err := q.QueryRow(ctx, `
SELECT COALESCE(SUM(amount), 0)
FROM credit_ledger
WHERE user_id = $1 AND credit_type = 'purchased' AND operation = 'grant' AND created_at >= $2`,
		userID, monthStart).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum monthly purchases: %w", err)
	}
	return sum, nil
}

// ListExpirable locks and returns grant rows due for the expiry sweep.
func (s *Store) ListExpirable(ctx context.Context, q postgres.Querier, now time.Time, limit int) ([]*Entry, error) {
	rows, err := q.Query(ctx, `
SELECT `+entryColumns+`
FROM credit_ledger
WHERE operation IN ('grant', 'carryover')
  AND NOT expired
  AND expires_at IS NOT NULL
  AND expires_at <= $1
ORDER BY expires_at
LIMIT $2
FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query expirable grants: %w", err)
	}
	defer rows.Close()

	var grants []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, e)
	}
	return grants, rows.Err()
}

func scanEntry(row interface{ Scan(dest ...any) error }) (*Entry, error) {
	var e Entry
	var class, op string
	err := row.Scan(&e.ID, &e.UserID, &class, &op, &e.Amount, &e.Consumed, &e.BalanceAfter,
		&e.ExpiresAt, &e.Expired, &e.SourceID, &e.OperationRef, &e.GrantDay, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	e.Type = Type(class)
	e.Operation = Operation(op)
	return &e, nil
}
