package db

import (
	"context"
	"database/sql"
)

// DBTX is what SQLiteTodoRepo runs statements on: the *sql.DB for reads and
// single-statement writes, or the *sql.Tx a UnitOfWork hands out for Apply.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)
