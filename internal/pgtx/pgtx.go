// Package pgtx holds the minimal executor interface that lets a
// repository built against *pgxpool.Pool run unchanged against an open
// pgx.Tx instead. It exists so a write the decision engine performs
// mid-transaction (the auto-create cascade on stage entry) can be handed
// the caller's own transaction rather than opening a second one.
package pgtx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx. Repositories
// that accept a Querier instead of a concrete pool can be constructed
// once against the pool for normal use, or scoped to a single
// in-flight transaction when a caller needs their writes to commit or
// abort atomically with its own.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
