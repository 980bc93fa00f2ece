// Package db is the Postgres store for watchlists and per-user dashboard
// settings. Queries are hand-written in the sqlc shape: a Queries struct
// over database/sql with one method per statement.
package db

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
)

// DBTX is the subset of database/sql used by Queries, so transactions and
// plain connections are interchangeable.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds the prepared query methods.
type Queries struct {
	db DBTX
}

// New creates Queries over a connection or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Init opens and pings a Postgres connection.
func Init(connStr string) (*Queries, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		return nil, err
	}
	return New(conn), nil
}
