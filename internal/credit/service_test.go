package credit

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"taskhive/internal/apperr"
	"taskhive/internal/config"
)

var testCreditConfig = config.CreditConfig{
	KickstartAmount:    25,
	DailyAmount:        10,
	MonthlyAmount:      300,
	CarryOverCap:       50,
	MonthlyPurchaseCap: 500,
}

func newMockService(t *testing.T) (pgxmock.PgxPoolIface, *Service) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to build pgx mock: %v", err)
	}
	t.Cleanup(pool.Close)

	store, err := NewStore(pool)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	svc, err := NewService(pool, store, testCreditConfig, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return pool, svc
}

func entryRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "user_id", "credit_type", "operation", "amount", "consumed", "balance_after",
		"expires_at", "expired", "source_id", "operation_ref", "grant_day", "created_at",
	})
}

func grantRow(rows *pgxmock.Rows, id string, class Type, amount, consumed int64, age time.Duration) *pgxmock.Rows {
	return rows.AddRow(id, "u1", string(class), "grant", amount, consumed, int64(0),
		(*time.Time)(nil), false, (*string)(nil), "seed", (*time.Time)(nil), time.Now().Add(-age))
}

func TestGrantKickstartDuplicateIsNoop(t *testing.T) {
	pool, svc := newMockService(t)

	pool.ExpectExec("INSERT INTO credit_ledger").
		WithArgs(pgxmock.AnyArg(), "u1", "kickstart", "grant", int64(25), int64(0), int64(0),
			(*time.Time)(nil), false, (*string)(nil), "signup", (*time.Time)(nil), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	if err := svc.GrantKickstart(context.Background(), pool, "u1"); err != nil {
		t.Fatalf("duplicate kickstart should be a no-op, got %v", err)
	}
}

func TestGrantDailyDuplicateIsNoop(t *testing.T) {
	pool, svc := newMockService(t)

	pool.ExpectExec("INSERT INTO credit_ledger").
		WithArgs(pgxmock.AnyArg(), "u1", "daily", "grant", int64(10), int64(0), int64(0),
			pgxmock.AnyArg(), false, (*string)(nil), "daily", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	if err := svc.GrantDaily(context.Background(), pool, "u1", 10); err != nil {
		t.Fatalf("same-day daily grant should be a no-op, got %v", err)
	}
}

func TestConsumeInsufficientRollsBack(t *testing.T) {
	pool, svc := newMockService(t)

	rows := entryRows()
	grantRow(rows, "g1", TypeDaily, 10, 5, time.Hour)
	grantRow(rows, "g2", TypeKickstart, 25, 20, time.Hour)

	pool.ExpectBegin()
	pool.ExpectQuery("FROM credit_ledger").WithArgs("u1", pgxmock.AnyArg()).WillReturnRows(rows)
	pool.ExpectRollback()

	_, err := svc.Consume(context.Background(), "u1", 15, "chat:c1")
	if !apperr.IsCode(err, apperr.CodeInsufficientCredits) {
		t.Fatalf("expected INSUFFICIENT_CREDITS, got %v", err)
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConsumeDebitsFIFOAndAppendsOneRow(t *testing.T) {
	pool, svc := newMockService(t)

	rows := entryRows()
	grantRow(rows, "g-daily", TypeDaily, 10, 0, 4*time.Hour)
	grantRow(rows, "g-sub", TypeSubscription, 100, 0, 3*time.Hour)

	pool.ExpectBegin()
	pool.ExpectQuery("FROM credit_ledger").WithArgs("u1", pgxmock.AnyArg()).WillReturnRows(rows)
	pool.ExpectExec("UPDATE credit_ledger SET consumed").
		WithArgs("g-daily", int64(10)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("UPDATE credit_ledger SET consumed").
		WithArgs("g-sub", int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("INSERT INTO credit_ledger").
		WithArgs(pgxmock.AnyArg(), "u1", "subscription", "consume", int64(-15), int64(0), int64(95),
			(*time.Time)(nil), false, (*string)(nil), "chat:c1", (*time.Time)(nil), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectCommit()

	result, err := svc.Consume(context.Background(), "u1", 15, "chat:c1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.Balance != 95 {
		t.Fatalf("expected balance 95, got %d", result.Balance)
	}
	if result.PerClass[TypeDaily] != 10 || result.PerClass[TypeSubscription] != 5 {
		t.Fatalf("unexpected per-class consumption: %v", result.PerClass)
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantPurchasedEnforcesMonthlyCap(t *testing.T) {
	pool, svc := newMockService(t)

	pool.ExpectBegin()
	pool.ExpectQuery("SELECT COALESCE").
		WithArgs("u1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(450)))
	pool.ExpectRollback()

	err := svc.GrantPurchased(context.Background(), "u1", 100, "purchase:p1")
	if !apperr.IsCode(err, apperr.CodeLimitExceeded) {
		t.Fatalf("expected LIMIT_EXCEEDED, got %v", err)
	}
}
