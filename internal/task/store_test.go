package task

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"taskhive/internal/apperr"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
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
	return pool, store
}

func TestUpdateVersionedBumpsVersion(t *testing.T) {
	pool, store := newMockStore(t)

	pool.ExpectExec("UPDATE tasks SET").
		WithArgs("t1", "u1", int64(3), "write report", "", "medium",
			(*time.Time)(nil), (*int)(nil), int64(0), false, (*time.Time)(nil), (*string)(nil), false, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	task := &Task{ID: "t1", UserID: "u1", Title: "write report", Priority: PriorityMedium, Version: 3}
	if err := store.UpdateVersioned(context.Background(), pool, task, 3); err != nil {
		t.Fatalf("update versioned: %v", err)
	}
	if task.Version != 4 {
		t.Fatalf("expected version 4, got %d", task.Version)
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateVersionedStaleVersionConflicts(t *testing.T) {
	pool, store := newMockStore(t)

	pool.ExpectExec("UPDATE tasks SET").
		WithArgs("t1", "u1", int64(4), "write report", "", "medium",
			(*time.Time)(nil), (*int)(nil), int64(0), false, (*time.Time)(nil), (*string)(nil), false, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	pool.ExpectQuery("SELECT version FROM tasks").
		WithArgs("t1", "u1").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(5)))

	task := &Task{ID: "t1", UserID: "u1", Title: "write report", Priority: PriorityMedium}
	err := store.UpdateVersioned(context.Background(), pool, task, 4)
	if !apperr.IsCode(err, apperr.CodeVersionConflict) {
		t.Fatalf("expected VERSION_CONFLICT, got %v", err)
	}
}

func TestUpdateVersionedMissingRowIsNotFound(t *testing.T) {
	pool, store := newMockStore(t)

	pool.ExpectExec("UPDATE tasks SET").
		WithArgs("gone", "u1", int64(1), "x", "", "low",
			(*time.Time)(nil), (*int)(nil), int64(0), false, (*time.Time)(nil), (*string)(nil), false, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	pool.ExpectQuery("SELECT version FROM tasks").
		WithArgs("gone", "u1").
		WillReturnRows(pgxmock.NewRows([]string{"version"}))

	task := &Task{ID: "gone", UserID: "u1", Title: "x", Priority: PriorityLow}
	err := store.UpdateVersioned(context.Background(), pool, task, 1)
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestDeleteMissingTaskIsNotFound(t *testing.T) {
	pool, store := newMockStore(t)

	pool.ExpectExec("DELETE FROM tasks").
		WithArgs("t-gone", "u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := store.Delete(context.Background(), pool, "u1", "t-gone")
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
