// Package db is a hand-written, sqlc-shaped query layer over the
// relational store: one DBTX interface satisfied by both a pool and a
// transaction, and a Queries struct with one method per SQL operation.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so callers can run
// queries against either a pooled connection or an open transaction
// without the query layer knowing which.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a DBTX with one method per SQL operation the pipeline needs.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to the given connection or transaction.
func New(dbtx DBTX) *Queries {
	return &Queries{db: dbtx}
}
