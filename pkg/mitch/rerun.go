// SPDX-License-Identifier: Apache-2.0

package mitch

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mitchtool/mitch/pkg/migrations"
	"github.com/mitchtool/mitch/pkg/target"
)

// RerunModified reverts every modified migration together with its applied
// dependants, then re-applies them dependencies-first, keeping each
// application's previous dependency flag. A non-empty selection restricts
// the operation to the given ids; selected-but-unmodified ids are reported.
func (m *Mitch) RerunModified(ctx context.Context, ids []string, yes bool) error {
	modified, err := m.target.ModifiedMigrations(ctx, m.repo)
	if err != nil {
		return err
	}

	selected, err := m.repo.ByIDs(ids)
	if err != nil {
		return err
	}
	selectedSet := map[migrations.CompositeID]bool{}
	for _, s := range selected {
		selectedSet[s.ID()] = true
	}

	if len(selected) > 0 {
		modifiedSet := map[migrations.CompositeID]bool{}
		for _, mod := range modified {
			modifiedSet[mod.ID()] = true
		}

		var restricted []*migrations.Migration
		for _, mod := range modified {
			if selectedSet[mod.ID()] {
				restricted = append(restricted, mod)
			}
		}
		modified = restricted

		var unmodified []*migrations.Migration
		for _, s := range selected {
			if !modifiedSet[s.ID()] {
				unmodified = append(unmodified, s)
			}
		}
		if len(unmodified) > 0 {
			fmt.Fprintln(m.out, "The following migrations have not been modified and don't need to be re-run:")
			for _, u := range unmodified {
				fmt.Fprintf(m.out, "- %s\n", u.ID())
			}
		}
	}
	if len(modified) == 0 {
		return nil
	}

	dependants, err := m.repo.DependantsOf(modified)
	if err != nil {
		return err
	}
	paired, err := m.target.WithApplications(ctx, dependants)
	if err != nil {
		return err
	}

	var withDependants []target.Applied
	var toConfirm []*migrations.Migration
	for _, p := range paired {
		if p.Application == nil {
			continue
		}
		withDependants = append(withDependants, p)
		if !selectedSet[p.Migration.ID()] {
			toConfirm = append(toConfirm, p.Migration)
		}
	}

	if !yes && len(toConfirm) > 0 {
		fmt.Fprintln(m.out, "Must also re-run the following migrations:")
		for _, c := range toConfirm {
			fmt.Fprintf(m.out, "- %s\n", c.ID())
		}
		ok, err := m.confirm("Do you want to re-run them?")
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	return m.target.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		toRevert := make([]*migrations.Migration, 0, len(withDependants))
		for _, p := range withDependants {
			toRevert = append(toRevert, p.Migration)
		}
		if err := m.target.Down(ctx, tx, toRevert...); err != nil {
			return err
		}
		for i := len(withDependants) - 1; i >= 0; i-- {
			p := withDependants[i]
			if err := m.target.Up(ctx, tx, p.Application.IsDependency, p.Migration); err != nil {
				return err
			}
		}
		return nil
	})
}
