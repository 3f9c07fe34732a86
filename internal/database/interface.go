package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGXDB is an interface that both pgxpool.Pool and pgx.Tx implement.
// Repositories accept it so tests can hand them a rolled-back transaction.
type PGXDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pinger reports database liveness. Implemented by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ensure types implement the interface at compile time.
var (
	_ PGXDB  = (*pgxpool.Pool)(nil)
	_ PGXDB  = (pgx.Tx)(nil)
	_ Pinger = (*pgxpool.Pool)(nil)
)
