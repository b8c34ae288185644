// SPDX-License-Identifier: Apache-2.0

package target

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mitchtool/mitch/pkg/migrations"
	"github.com/mitchtool/mitch/pkg/repository"
)

const sqlSelectApplications = `
select repository_id, migration_id, up_script_sha256, reformatted_up_script_sha256, is_dependency, applied_at, applied_by
from mitch.applied_migrations
order by applied_at`

// Applications returns the application snapshot keyed by composite id,
// materializing it from the database on first use.
func (t *Target) Applications(ctx context.Context) (map[migrations.CompositeID]*migrations.Application, error) {
	if err := t.loadApplications(ctx); err != nil {
		return nil, err
	}
	return t.apps, nil
}

// ApplicationList returns the application snapshot ordered by applied_at.
func (t *Target) ApplicationList(ctx context.Context) ([]*migrations.Application, error) {
	if err := t.loadApplications(ctx); err != nil {
		return nil, err
	}
	return t.appList, nil
}

func (t *Target) loadApplications(ctx context.Context) error {
	if t.apps != nil {
		return nil
	}

	rows, err := t.exec.QueryContext(ctx, sqlSelectApplications)
	if err != nil {
		return fmt.Errorf("loading applied migrations: %w", err)
	}
	defer rows.Close()

	apps := map[migrations.CompositeID]*migrations.Application{}
	var list []*migrations.Application
	for rows.Next() {
		a := new(migrations.Application)
		var canonical sql.NullString
		if err := rows.Scan(
			&a.RepositoryID,
			&a.MigrationID,
			&a.UpScriptSHA256,
			&canonical,
			&a.IsDependency,
			&a.AppliedAt,
			&a.AppliedBy,
		); err != nil {
			return fmt.Errorf("scanning applied migration: %w", err)
		}
		a.CanonicalUpScriptSHA256 = canonical.String
		apps[a.ID()] = a
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading applied migrations: %w", err)
	}

	t.apps = apps
	t.appList = list
	return nil
}

// Applied pairs a migration in plan order with its current application,
// nil when the migration has not been applied.
type Applied struct {
	Migration   *migrations.Migration
	Application *migrations.Application
}

// WithApplications joins each migration of the plan with its application
// record.
func (t *Target) WithApplications(ctx context.Context, plan []*migrations.Migration) ([]Applied, error) {
	apps, err := t.Applications(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Applied, 0, len(plan))
	for _, m := range plan {
		out = append(out, Applied{Migration: m, Application: apps[m.ID()]})
	}
	return out, nil
}

// InstalledMigrations yields the applied migrations that still exist on
// disk, skipping dependency-applied ones unless includeDependencies is set.
func (t *Target) InstalledMigrations(ctx context.Context, repo *repository.Repository, includeDependencies bool) ([]*migrations.Migration, error) {
	apps, err := t.ApplicationList(ctx)
	if err != nil {
		return nil, err
	}
	var out []*migrations.Migration
	for _, p := range repo.WithMigrations(apps) {
		if p.Migration == nil {
			continue
		}
		if p.Application.IsDependency && !includeDependencies {
			continue
		}
		out = append(out, p.Migration)
	}
	return out, nil
}

// ModifiedMigrations yields every migration found on disk whose stored
// application no longer matches either of its current hashes.
func (t *Target) ModifiedMigrations(ctx context.Context, repo *repository.Repository) ([]*migrations.Migration, error) {
	apps, err := t.ApplicationList(ctx)
	if err != nil {
		return nil, err
	}
	var out []*migrations.Migration
	for _, p := range repo.WithMigrations(apps) {
		if p.Migration == nil {
			continue
		}
		ok, err := p.Application.Matches(p.Migration)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, p.Migration)
		}
	}
	return out, nil
}
