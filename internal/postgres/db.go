package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the query surface stores depend on. Both *pgxpool.Pool and pgxmock
// satisfy it, and pgx.Tx satisfies Querier, so store methods can run against
// the pool or inside a caller-owned transaction.
type DB interface {
	Querier
	Beginner
}

// Querier is the read/write subset shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
