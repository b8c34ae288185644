// SPDX-License-Identifier: Apache-2.0

package target

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mitchtool/mitch/pkg/migrations"
	"github.com/mitchtool/mitch/pkg/repository"
)

const sqlUpsertRepository = `
insert into mitch.repositories (repository_id)
values ($1)
on conflict (repository_id) do nothing`

const sqlUpsertApplication = `
insert into mitch.applied_migrations
	(repository_id, migration_id, is_dependency, up_script_sha256, reformatted_up_script_sha256)
values ($1, $2, $3, $4, $5)
on conflict (repository_id, migration_id) do update set
	is_dependency = excluded.is_dependency,
	up_script_sha256 = excluded.up_script_sha256,
	reformatted_up_script_sha256 = excluded.reformatted_up_script_sha256,
	applied_at = excluded.applied_at,
	applied_by = excluded.applied_by`

const sqlDeleteApplication = `
delete from mitch.applied_migrations
where repository_id = $1 and migration_id = $2`

const sqlFixHashesAndStatus = `
update mitch.applied_migrations set
	is_dependency = $3,
	up_script_sha256 = $4,
	reformatted_up_script_sha256 = $5
where repository_id = $1
	and migration_id = $2
	and (
		up_script_sha256 is distinct from $4
		or reformatted_up_script_sha256 is distinct from $5
		or is_dependency is distinct from $3
	)`

// Up applies each migration's up script statement by statement, then
// upserts its application record with the given dependency flag. The
// owning repository row is upserted alongside.
func (t *Target) Up(ctx context.Context, tx *sql.Tx, asDependency bool, ms ...*migrations.Migration) error {
	defer t.invalidate()
	for _, m := range ms {
		t.logger.LogApply(m)

		stmts, err := m.UpStatements()
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			t.logger.LogStatement(stmt)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return StatementError{Migration: m.ID(), Statement: stmt, Err: err}
			}
		}

		rawHash, err := m.UpScriptSHA256()
		if err != nil {
			return err
		}
		canonicalHash, err := m.CanonicalUpScriptSHA256()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, sqlUpsertRepository, m.RepositoryName); err != nil {
			return fmt.Errorf("recording repository %q: %w", m.RepositoryName, err)
		}
		if _, err := tx.ExecContext(ctx, sqlUpsertApplication,
			m.RepositoryName, m.MigrationID, asDependency, rawHash, canonicalHash,
		); err != nil {
			return fmt.Errorf("recording migration %s: %w", m.ID(), err)
		}
	}
	return nil
}

// Down reverts each migration by running its down script statement by
// statement, then deletes its application record.
func (t *Target) Down(ctx context.Context, tx *sql.Tx, ms ...*migrations.Migration) error {
	defer t.invalidate()
	for _, m := range ms {
		t.logger.LogRevert(m)

		stmts, err := m.DownStatements()
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			t.logger.LogStatement(stmt)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return StatementError{Migration: m.ID(), Statement: stmt, Err: err}
			}
		}

		if _, err := tx.ExecContext(ctx, sqlDeleteApplication, m.RepositoryName, m.MigrationID); err != nil {
			return fmt.Errorf("deleting record of migration %s: %w", m.ID(), err)
		}
	}
	return nil
}

// FixHashesAndStatus replaces the stored hashes and dependency flag of an
// applied migration without running any script. The row is only touched
// when at least one of the three values actually differs.
func (t *Target) FixHashesAndStatus(ctx context.Context, tx *sql.Tx, m *migrations.Migration, isDependency bool) error {
	defer t.invalidate()

	rawHash, err := m.UpScriptSHA256()
	if err != nil {
		return err
	}
	canonicalHash, err := m.CanonicalUpScriptSHA256()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, sqlFixHashesAndStatus,
		m.RepositoryName, m.MigrationID, isDependency, rawHash, canonicalHash,
	); err != nil {
		return fmt.Errorf("updating record of migration %s: %w", m.ID(), err)
	}
	return nil
}

// Prune reverts every installed migration that is not in the except set or,
// when except is empty, not in the explicitly applied set. Dependencies of
// the kept migrations are not kept unless they are in that set themselves.
// Reverts run dependants first.
func (t *Target) Prune(ctx context.Context, tx *sql.Tx, repo *repository.Repository, except []*migrations.Migration) error {
	installed, err := t.InstalledMigrations(ctx, repo, true)
	if err != nil {
		return err
	}

	needed := except
	if len(needed) == 0 {
		needed, err = t.InstalledMigrations(ctx, repo, false)
		if err != nil {
			return err
		}
	}

	neededSet := map[migrations.CompositeID]bool{}
	for _, m := range needed {
		neededSet[m.ID()] = true
	}

	danglingSet := map[migrations.CompositeID]bool{}
	var dangling []*migrations.Migration
	for _, m := range installed {
		if !neededSet[m.ID()] {
			danglingSet[m.ID()] = true
			dangling = append(dangling, m)
		}
	}
	if len(dangling) == 0 {
		return nil
	}

	order, err := repo.DependenciesOf(dangling)
	if err != nil {
		return err
	}

	var toRevert []*migrations.Migration
	for i := len(order) - 1; i >= 0; i-- {
		if danglingSet[order[i].ID()] {
			toRevert = append(toRevert, order[i])
		}
	}
	return t.Down(ctx, tx, toRevert...)
}
