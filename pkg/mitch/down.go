// SPDX-License-Identifier: Apache-2.0

package mitch

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/mitchtool/mitch/pkg/migrations"
)

// Down reverts the chosen migrations together with every applied migration
// that depends on them, dependants first. Migrations that would be removed
// without having been chosen are listed and confirmed unless yes is set;
// declining aborts without touching the database. With prune set, stale
// dependencies are pruned in the same transaction afterwards.
func (m *Mitch) Down(ctx context.Context, ids []string, yes, prune bool) error {
	chosen, err := m.repo.ByIDs(ids)
	if err != nil {
		return err
	}
	chosenSet := map[migrations.CompositeID]bool{}
	for _, c := range chosen {
		chosenSet[c.ID()] = true
	}

	dependants, err := m.repo.DependantsOf(chosen)
	if err != nil {
		return err
	}
	paired, err := m.target.WithApplications(ctx, dependants)
	if err != nil {
		return err
	}

	var toRevert []*migrations.Migration
	var toConfirm []*migrations.Migration
	for _, p := range paired {
		if p.Application == nil {
			continue
		}
		toRevert = append(toRevert, p.Migration)
		if !chosenSet[p.Migration.ID()] {
			toConfirm = append(toConfirm, p.Migration)
		}
	}

	if !yes && len(toConfirm) > 0 {
		sort.Slice(toConfirm, func(i, j int) bool {
			return toConfirm[i].ID().String() < toConfirm[j].ID().String()
		})
		fmt.Fprintln(m.out, "The following migrations must be removed, too:")
		for _, c := range toConfirm {
			fmt.Fprintf(m.out, "- %s\n", c.ID())
		}
		ok, err := m.confirm("Do you want to remove them?")
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	return m.target.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := m.target.Down(ctx, tx, toRevert...); err != nil {
			return err
		}
		if prune {
			fmt.Fprintln(m.out, "Prune stale dependencies...")
			return m.target.Prune(ctx, tx, m.repo, nil)
		}
		return nil
	})
}
