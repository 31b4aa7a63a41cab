package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"taskhive/internal/config"
	"taskhive/internal/credit"
	"taskhive/internal/events"
	"taskhive/internal/user"
)

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
	users, err := user.NewStore(pool)
	if err != nil {
		t.Fatalf("new user store: %v", err)
	}
	creditStore, err := credit.NewStore(pool)
	if err != nil {
		t.Fatalf("new credit store: %v", err)
	}
	credits, err := credit.NewService(pool, creditStore, config.CreditConfig{MonthlyAmount: 300}, nil, nil)
	if err != nil {
		t.Fatalf("new credit service: %v", err)
	}
	svc, err := NewService(pool, store, users, credits, nil, events.NewBus(nil, nil), nil, "whsec_test", nil)
	if err != nil {
		t.Fatalf("new billing service: %v", err)
	}
	return pool, svc
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	_, svc := newMockService(t)
	body := []byte(`{"event_id":"evt_1","type":"payment_captured"}`)

	if !svc.VerifySignature(body, signBody("whsec_test", body)) {
		t.Fatal("valid signature rejected")
	}
	if svc.VerifySignature(body, signBody("whsec_other", body)) {
		t.Fatal("signature from the wrong secret accepted")
	}
	if svc.VerifySignature(body, "deadbeef") {
		t.Fatal("garbage signature accepted")
	}
}

func TestProcessWebhookDuplicateEventIsNoop(t *testing.T) {
	pool, svc := newMockService(t)

	pool.ExpectBegin()
	pool.ExpectExec("INSERT INTO webhook_events").
		WithArgs("evt_1", EventPaymentCaptured).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	pool.ExpectCommit()

	err := svc.ProcessWebhook(context.Background(), WebhookPayload{
		EventID:        "evt_1",
		Type:           EventPaymentCaptured,
		SubscriptionID: "sub_ext_1",
	})
	if err != nil {
		t.Fatalf("duplicate delivery should succeed without state changes, got %v", err)
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries ran on a duplicate delivery: %v", err)
	}
}

func TestProcessWebhookCaptureActivatesAndGrants(t *testing.T) {
	pool, svc := newMockService(t)
	frozen := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return frozen })

	start := frozen
	end := frozen.AddDate(0, 1, 0)
	created := frozen.AddDate(0, -2, 0)

	subRow := pgxmock.NewRows([]string{
		"id", "user_id", "external_id", "status", "period_start", "period_end",
		"grace_end", "failed_payments", "grace_warning_sent", "cancelled_at", "created_at", "updated_at",
	}).AddRow("s1", "u1", "sub_ext_1", "past_due", &created, &frozen,
		(*time.Time)(nil), 2, false, (*time.Time)(nil), created, created)

	pool.ExpectBegin()
	pool.ExpectExec("INSERT INTO webhook_events").
		WithArgs("evt_2", EventPaymentCaptured).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectQuery("SELECT (.+) FROM subscriptions WHERE external_id").
		WithArgs("sub_ext_1").
		WillReturnRows(subRow)
	pool.ExpectExec("INSERT INTO subscriptions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec("UPDATE users SET tier").
		WithArgs("u1", "pro").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("INSERT INTO credit_ledger").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectCommit()

	err := svc.ProcessWebhook(context.Background(), WebhookPayload{
		EventID:        "evt_2",
		Type:           EventPaymentCaptured,
		SubscriptionID: "sub_ext_1",
		PeriodStart:    &start,
		PeriodEnd:      &end,
	})
	if err != nil {
		t.Fatalf("capture webhook failed: %v", err)
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcessWebhookRejectsUnknownType(t *testing.T) {
	_, svc := newMockService(t)

	err := svc.ProcessWebhook(context.Background(), WebhookPayload{EventID: "evt_3", Type: "chargeback_opened"})
	if err == nil {
		t.Fatal("unknown event type should be rejected")
	}
}
