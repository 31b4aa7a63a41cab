package jobs

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMockQueue(t *testing.T) (pgxmock.PgxPoolIface, *Queue) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to build pgx mock: %v", err)
	}
	t.Cleanup(pool.Close)

	q, err := NewQueue(pool, 3)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return pool, q
}

func jobRow(id, jobType string, attempts, maxAttempts int) *pgxmock.Rows {
	now := time.Now()
	locked := "worker-1"
	return pgxmock.NewRows([]string{
		"id", "job_type", "payload", "status", "scheduled_at", "attempts", "max_attempts",
		"locked_at", "locked_by", "last_error", "created_at", "updated_at",
	}).AddRow(id, jobType, []byte(`{}`), "processing", now, attempts, maxAttempts,
		&now, &locked, "", now, now)
}

func TestBackoffSchedule(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 60 * time.Second},
		{2, 300 * time.Second},
		{3, 900 * time.Second},
		{4, 1800 * time.Second},
		{5, 3600 * time.Second},
		{9, 3600 * time.Second},
		{0, 60 * time.Second},
	}
	for _, c := range cases {
		if got := backoffFor(c.attempt); got != c.want {
			t.Fatalf("backoffFor(%d) = %s, want %s", c.attempt, got, c.want)
		}
	}
}

func TestClaimReturnsJob(t *testing.T) {
	pool, q := newMockQueue(t)

	pool.ExpectQuery("UPDATE jobs SET").
		WithArgs("worker-1").
		WillReturnRows(jobRow("j1", TypeReminderFire, 1, 3))

	job, err := q.Claim(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil || job.ID != "j1" {
		t.Fatalf("expected job j1, got %+v", job)
	}
	if job.Status != StatusProcessing {
		t.Fatalf("claimed job should be processing, got %s", job.Status)
	}
}

func TestClaimEmptyQueueReturnsNil(t *testing.T) {
	pool, q := newMockQueue(t)

	pool.ExpectQuery("UPDATE jobs SET").
		WithArgs("worker-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	job, err := q.Claim(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("claim on empty queue: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job, got %+v", job)
	}
}

func TestRetryRequeuesWithBackoff(t *testing.T) {
	pool, q := newMockQueue(t)

	pool.ExpectExec("UPDATE jobs SET status = 'pending'").
		WithArgs("j1", 300*time.Second, "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	job := &Job{ID: "j1", Attempts: 2, MaxAttempts: 3}
	dead, err := q.Retry(context.Background(), job, errBoom)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if dead {
		t.Fatal("job with attempts left should not die")
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRetryDeadLettersAtMaxAttempts(t *testing.T) {
	pool, q := newMockQueue(t)

	pool.ExpectExec("UPDATE jobs SET status = 'dead'").
		WithArgs("j1", "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	job := &Job{ID: "j1", Attempts: 3, MaxAttempts: 3}
	dead, err := q.Retry(context.Background(), job, errBoom)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !dead {
		t.Fatal("exhausted job should dead-letter")
	}
}

func TestReleaseStale(t *testing.T) {
	pool, q := newMockQueue(t)

	pool.ExpectExec("UPDATE jobs SET status = 'pending'").
		WithArgs(600 * time.Second).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	released, err := q.ReleaseStale(context.Background(), 600*time.Second)
	if err != nil {
		t.Fatalf("release stale: %v", err)
	}
	if released != 2 {
		t.Fatalf("expected 2 released, got %d", released)
	}
}

func TestResetDeadRejectsLiveJob(t *testing.T) {
	pool, q := newMockQueue(t)

	pool.ExpectExec("UPDATE jobs SET status = 'pending'").
		WithArgs("j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := q.ResetDead(context.Background(), "j1"); err == nil {
		t.Fatal("resetting a non-dead job should fail")
	}
}

var errBoom = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }
