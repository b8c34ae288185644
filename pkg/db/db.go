// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// Queryer is the statement-execution surface shared by *sql.Tx and Conn.
// Reads issued mid-command go through the open transaction so they observe
// its uncommitted state.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DB is the database surface the migrator needs: plain statement execution
// plus a single explicit transaction per command.
type DB interface {
	Queryer
	WithTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error
	Close() error
}

// Conn wraps a *sql.DB.
type Conn struct {
	DB *sql.DB
}

// Open connects to a Postgres database given either a postgres:// URL or a
// key=value DSN.
func Open(ctx context.Context, pgURL string) (*Conn, error) {
	dsn, err := pq.ParseURL(pgURL)
	if err != nil {
		dsn = pgURL
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return &Conn{DB: conn}, nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Conn {
	return &Conn{DB: db}
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.DB.ExecContext(ctx, query, args...)
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.DB.QueryContext(ctx, query, args...)
}

// WithTransaction runs f inside one transaction. The transaction commits
// only if f returns nil; any error rolls back every statement f issued.
// Nothing is retried.
func (c *Conn) WithTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := f(ctx, tx); err != nil {
		if errRollback := tx.Rollback(); errRollback != nil {
			return errRollback
		}
		return err
	}

	return tx.Commit()
}

func (c *Conn) Close() error {
	return c.DB.Close()
}
