package credit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/config"
	"taskhive/internal/logging"
	"taskhive/internal/observability"
	"taskhive/internal/postgres"
)

// Service owns the ledger rules: grant idempotency, FIFO consumption under
// row locks, expiry with carry-over, and the monthly purchase cap.
type Service struct {
	db      postgres.DB
	store   *Store
	cfg     config.CreditConfig
	logger  logging.Logger
	metrics *observability.MetricsCollector

	now func() time.Time
}

// NewService wires the credit service.
func NewService(db postgres.DB, store *Store, cfg config.CreditConfig, logger logging.Logger, metrics *observability.MetricsCollector) (*Service, error) {
	if db == nil || store == nil {
		return nil, errors.New("credit service requires db and store")
	}
	return &Service{
		db:      db,
		store:   store,
		cfg:     cfg,
		logger:  logging.OrNop(logger),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// GrantKickstart gives the one-time signup grant. A second call for the same
// user is a no-op; the partial unique index enforces at most one ever.
func (s *Service) GrantKickstart(ctx context.Context, q postgres.Querier, userID string) error {
	now := s.now()
	err := s.store.Insert(ctx, q, &Entry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Type:         TypeKickstart,
		Operation:    OpGrant,
		Amount:       s.cfg.KickstartAmount,
		BalanceAfter: 0,
		OperationRef: "signup",
		CreatedAt:    now,
	})
	if errors.Is(err, errDuplicateGrant) {
		return nil
	}
	return err
}

// GrantDaily gives the daily grant expiring at the next UTC midnight. The
// (user, grant_day) unique index makes same-day re-invocation a no-op.
// Amount includes any daily_credits achievement perk the caller resolved.
func (s *Service) GrantDaily(ctx context.Context, q postgres.Querier, userID string, amount int64) error {
	now := s.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	expires := nextUTCMidnight(now)
	err := s.store.Insert(ctx, q, &Entry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Type:         TypeDaily,
		Operation:    OpGrant,
		Amount:       amount,
		ExpiresAt:    &expires,
		OperationRef: "daily",
		GrantDay:     &day,
		CreatedAt:    now,
	})
	if errors.Is(err, errDuplicateGrant) {
		return nil
	}
	return err
}

// GrantMonthly gives the subscription grant expiring at the billing period
// end.
func (s *Service) GrantMonthly(ctx context.Context, q postgres.Querier, userID string, periodEnd time.Time, ref string) error {
	return s.store.Insert(ctx, q, &Entry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Type:         TypeSubscription,
		Operation:    OpGrant,
		Amount:       s.cfg.MonthlyAmount,
		ExpiresAt:    &periodEnd,
		OperationRef: ref,
		CreatedAt:    s.now(),
	})
}

// GrantPurchased records a credit purchase, enforcing the calendar-month
// purchase cap.
func (s *Service) GrantPurchased(ctx context.Context, userID string, amount int64, ref string) error {
	if amount <= 0 {
		return apperr.Validation("purchase amount must be positive")
	}
	return postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		bought, err := s.store.PurchasedThisMonth(ctx, tx, userID, s.now())
		if err != nil {
			return err
		}
		if bought+amount > s.cfg.MonthlyPurchaseCap {
			return apperr.LimitExceeded("monthly credit purchase", int(s.cfg.MonthlyPurchaseCap))
		}
		return s.store.Insert(ctx, tx, &Entry{
			ID:           uuid.NewString(),
			UserID:       userID,
			Type:         TypePurchased,
			Operation:    OpGrant,
			Amount:       amount,
			OperationRef: ref,
			CreatedAt:    s.now(),
		})
	})
}

// Consume debits n units FIFO across the user's locked grants and appends
// one consume row. Returns INSUFFICIENT_CREDITS and rolls back when the
// locked balance cannot cover n.
func (s *Service) Consume(ctx context.Context, userID string, n int64, ref string) (*ConsumeResult, error) {
	if n <= 0 {
		return nil, apperr.Validation("consume amount must be positive")
	}

	var result *ConsumeResult
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		result, err = s.ConsumeTx(ctx, tx, userID, n, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ConsumeTx is Consume on a caller-owned transaction, so an AI request can
// roll the debit back together with its own writes on cancellation.
func (s *Service) ConsumeTx(ctx context.Context, tx pgx.Tx, userID string, n int64, ref string) (*ConsumeResult, error) {
	now := s.now()
	grants, err := s.store.LockActiveGrants(ctx, tx, userID, now)
	if err != nil {
		return nil, err
	}

	plan, available := planConsumption(grants, n)
	if plan == nil {
		return nil, apperr.InsufficientCredits(n, available)
	}

	for _, d := range plan {
		if err := s.store.AddConsumed(ctx, tx, d.EntryID, d.Amount); err != nil {
			return nil, err
		}
	}

	entry := &Entry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Type:         plan[len(plan)-1].Type,
		Operation:    OpConsume,
		Amount:       -n,
		BalanceAfter: available - n,
		OperationRef: ref,
		CreatedAt:    now,
	}
	if err := s.store.Insert(ctx, tx, entry); err != nil {
		return nil, err
	}

	s.metrics.RecordCreditsConsumed(ctx, ref, n)
	return &ConsumeResult{
		EntryID:  entry.ID,
		PerClass: perClassTotals(plan),
		Balance:  available - n,
	}, nil
}

// Refund compensates a charged-but-failed operation: one grant row per class
// that the consume debited. Daily refunds keep the daily expiry; other
// classes come back without one.
func (s *Service) Refund(ctx context.Context, userID string, consumed *ConsumeResult, ref string) error {
	if consumed == nil || len(consumed.PerClass) == 0 {
		return nil
	}
	return postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		now := s.now()
		for _, class := range consumeOrder {
			amount := consumed.PerClass[class]
			if amount == 0 {
				continue
			}
			var expires *time.Time
			if class == TypeDaily {
				midnight := nextUTCMidnight(now)
				expires = &midnight
			}
			err := s.store.Insert(ctx, tx, &Entry{
				ID:           uuid.NewString(),
				UserID:       userID,
				Type:         class,
				Operation:    OpGrant,
				Amount:       amount,
				ExpiresAt:    expires,
				SourceID:     &consumed.EntryID,
				OperationRef: ref,
				CreatedAt:    now,
			})
			if err != nil {
				return err
			}
			s.metrics.RecordCreditsRefunded(ctx, ref, amount)
		}
		s.logger.Info("credits refunded: user=%s ref=%s total=%d", userID, ref, sumClasses(consumed.PerClass))
		return nil
	})
}

// BalanceFor returns the user's per-class balance.
func (s *Service) BalanceFor(ctx context.Context, userID string) (Balance, error) {
	return s.store.BalanceFor(ctx, s.db, userID, s.now())
}

// ExpireDue runs one sweep batch: fully expires due daily and non-capped
// grants, and partially expires subscription grants above the carry-over
// cap, preserving up to the cap with a deferred carryover row. Returns how
// many grant rows were settled.
func (s *Service) ExpireDue(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 200
	}
	settled := 0
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		now := s.now()
		grants, err := s.store.ListExpirable(ctx, tx, now, batchSize)
		if err != nil {
			return err
		}
		for _, g := range grants {
			if err := s.expireGrant(ctx, tx, g, now); err != nil {
				return err
			}
			settled++
		}
		return nil
	})
	if err != nil {
		return settled, err
	}
	return settled, nil
}

func (s *Service) expireGrant(ctx context.Context, tx pgx.Tx, g *Entry, now time.Time) error {
	remaining := g.Remaining()

	preserve := int64(0)
	if g.Type == TypeSubscription {
		preserve = remaining
		if preserve > s.cfg.CarryOverCap {
			preserve = s.cfg.CarryOverCap
		}
	}
	lost := remaining - preserve

	if lost > 0 {
		err := s.store.Insert(ctx, tx, &Entry{
			ID:           uuid.NewString(),
			UserID:       g.UserID,
			Type:         g.Type,
			Operation:    OpExpire,
			Amount:       -lost,
			SourceID:     &g.ID,
			OperationRef: "expiry_sweep",
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
	}
	if err := s.store.MarkExpired(ctx, tx, g.ID); err != nil {
		return err
	}

	if preserve > 0 {
		deferred := now.AddDate(0, 1, 0)
		err := s.store.Insert(ctx, tx, &Entry{
			ID:           uuid.NewString(),
			UserID:       g.UserID,
			Type:         TypeSubscription,
			Operation:    OpCarryover,
			Amount:       preserve,
			ExpiresAt:    &deferred,
			SourceID:     &g.ID,
			OperationRef: "carryover",
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func sumClasses(perClass map[Type]int64) int64 {
	var total int64
	for _, n := range perClass {
		total += n
	}
	return total
}
