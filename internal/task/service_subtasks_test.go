package task

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"taskhive/internal/achievement"
	"taskhive/internal/apperr"
	"taskhive/internal/config"
	"taskhive/internal/events"
	"taskhive/internal/user"
)

func newMockTaskService(t *testing.T) (pgxmock.PgxPoolIface, *Service) {
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

	bus := events.NewBus(nil, nil)
	pool.ExpectQuery("FROM achievement_definitions").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "category", "threshold", "perk_type", "perk_value"}))
	engine, err := achievement.NewEngine(context.Background(), pool, achievement.NewStore(), bus, config.LimitConfig{}, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	svc, err := NewService(pool, store, users, engine, bus, nil, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return pool, svc
}

func archivedTaskRow(id string) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows([]string{
		"id", "user_id", "template_id", "title", "description", "priority",
		"due_date", "estimated_minutes", "focus_seconds", "completed", "completed_at", "completed_by",
		"hidden", "archived", "version", "created_at", "updated_at",
	}).AddRow(id, "u1", (*string)(nil), "trip prep", "", "medium",
		(*time.Time)(nil), (*int)(nil), int64(0), false, (*time.Time)(nil), (*string)(nil),
		false, true, int64(1), now, now)
}

func TestReopenSubtaskOnArchivedParentRejected(t *testing.T) {
	pool, svc := newMockTaskService(t)
	now := time.Now().UTC()
	doneAt := now.Add(-time.Hour)

	pool.ExpectBegin()
	pool.ExpectQuery("FROM subtasks").
		WithArgs("s1", "u1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "task_id", "title", "completed", "completed_at", "order_index", "source", "created_at", "updated_at",
		}).AddRow("s1", "t1", "pack slides", true, &doneAt, 0, "user", now, now))
	pool.ExpectQuery("FROM tasks").
		WithArgs("t1", "u1").
		WillReturnRows(archivedTaskRow("t1"))
	pool.ExpectRollback()

	_, err := svc.ReopenSubtask(context.Background(), "u1", "s1")
	if !apperr.IsCode(err, apperr.CodeTaskArchived) {
		t.Fatalf("expected TASK_ARCHIVED, got %v", err)
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
