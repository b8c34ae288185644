// SPDX-License-Identifier: Apache-2.0

// Package target owns the metadata schema inside a managed PostgreSQL
// database: it records which migrations have been applied, applies and
// reverts scripts, and reconciles recorded state with on-disk definitions.
package target

import (
	"context"
	"database/sql"

	"github.com/mitchtool/mitch/pkg/db"
	"github.com/mitchtool/mitch/pkg/migrations"
)

// SchemaName is the metadata schema created in every managed database.
const SchemaName = "mitch"

const sqlInit = `
create schema if not exists mitch;

create table if not exists mitch.repositories (
	repository_id text primary key
);

create table if not exists mitch.applied_migrations (
	repository_id text not null references mitch.repositories (repository_id) on update cascade on delete restrict,
	migration_id text not null,
	constraint applied_migrations_pk
		primary key (repository_id, migration_id),
	up_script_sha256 char(64) not null,
	reformatted_up_script_sha256 char(64),
	is_dependency boolean not null default false,
	applied_at timestamptz not null default statement_timestamp(),
	applied_by name not null default current_user
);

create index if not exists applied_migrations_on_applied_at on mitch.applied_migrations using btree (applied_at);
create index if not exists applied_migrations_on_up_script_sha256 on mitch.applied_migrations using hash (up_script_sha256);
create index if not exists applied_migrations_on_reformatted_up_script_sha256 on mitch.applied_migrations using hash (reformatted_up_script_sha256);
create index if not exists applied_migrations_on_composite_id on mitch.applied_migrations using btree ((repository_id || '::' || migration_id));
`

// Target is a handle to a managed database and its metadata schema. It
// caches a snapshot of the applied migrations; every mutating call
// invalidates the cache.
type Target struct {
	conn   db.DB
	logger Logger

	// exec is the transaction while a command transaction is open, the
	// plain connection otherwise. Reads issued mid-command must observe
	// the transaction's uncommitted state.
	exec db.Queryer

	apps    map[migrations.CompositeID]*migrations.Application
	appList []*migrations.Application
}

type Option func(*Target)

// WithLogger sets the progress logger.
func WithLogger(l Logger) Option {
	return func(t *Target) {
		t.logger = l
	}
}

// New connects to the database at pgURL and ensures the metadata schema
// exists.
func New(ctx context.Context, pgURL string, opts ...Option) (*Target, error) {
	conn, err := db.Open(ctx, pgURL)
	if err != nil {
		return nil, err
	}
	t, err := NewWithConn(ctx, conn, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

// NewWithConn builds a Target on an existing connection and ensures the
// metadata schema exists.
func NewWithConn(ctx context.Context, conn db.DB, opts ...Option) (*Target, error) {
	t := &Target{
		conn:   conn,
		exec:   conn,
		logger: NewNoopLogger(),
	}
	for _, o := range opts {
		o(t)
	}
	if err := t.init(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// init creates the metadata schema, tables and indexes inside a single
// transaction.
func (t *Target) init(ctx context.Context) error {
	return t.conn.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlInit)
		return err
	})
}

// WithTransaction opens the single transaction a command runs under.
// While it is open, all Target reads go through it.
func (t *Target) WithTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error {
	return t.conn.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		t.exec = tx
		defer func() { t.exec = t.conn }()
		return f(ctx, tx)
	})
}

func (t *Target) Close() error {
	return t.conn.Close()
}

func (t *Target) invalidate() {
	t.apps = nil
	t.appList = nil
}
