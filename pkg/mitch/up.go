// SPDX-License-Identifier: Apache-2.0

package mitch

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/mitchtool/mitch/pkg/migrations"
)

// UpOptions control how chosen migrations are recorded.
type UpOptions struct {
	// AsDependency forces the chosen migrations to be recorded as
	// dependencies.
	AsDependency bool

	// SavePath, when set, collects the ids applied explicitly by this
	// invocation, one per line.
	SavePath string
}

// Up applies the chosen migrations together with everything they depend
// on, in dependency order, inside a single transaction. Already-applied
// migrations are skipped when their scripts match, re-applied after
// confirmation when idempotent, and fail the command otherwise.
func (m *Mitch) Up(ctx context.Context, ids []string, opts UpOptions) error {
	chosen, err := m.repo.ByIDs(ids)
	if err != nil {
		return err
	}
	chosenSet := map[migrations.CompositeID]bool{}
	for _, c := range chosen {
		chosenSet[c.ID()] = true
	}

	plan, err := m.repo.DependenciesOf(chosen)
	if err != nil {
		return err
	}

	return m.target.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		deploy, err := m.target.WithApplications(ctx, plan)
		if err != nil {
			return err
		}

		total := strconv.Itoa(len(deploy))
		for i, step := range deploy {
			mig, app := step.Migration, step.Application
			fmt.Fprintf(m.out, "[ %*d / %s ] Run migration %s\n", len(total), i+1, total, mig.ID())

			// Explicitly chosen now, or recorded as explicit before.
			isExplicit := chosenSet[mig.ID()]
			if app != nil && !app.IsDependency {
				isExplicit = true
			}
			if opts.AsDependency && chosenSet[mig.ID()] {
				isExplicit = false
			}
			isDependency := !isExplicit

			switch {
			case app == nil:
				if err := m.target.Up(ctx, tx, isDependency, mig); err != nil {
					return err
				}
			default:
				matches, err := app.Matches(mig)
				if err != nil {
					return err
				}
				switch {
				case matches:
					fmt.Fprintf(m.out, "Migration %s already applied. [ skipped ]\n", mig.ID())
					if err := m.target.FixHashesAndStatus(ctx, tx, mig, isDependency); err != nil {
						return err
					}
				case mig.Idempotent:
					yes, err := m.confirm(fmt.Sprintf(
						"Migration %s has been applied with a different script, but is marked as idempotent. Try to reapply?",
						mig.ID()))
					if err != nil {
						return err
					}
					if !yes {
						return ScriptMismatchError{ID: mig.ID()}
					}
					if err := m.target.Up(ctx, tx, isDependency, mig); err != nil {
						return err
					}
				default:
					return ScriptMismatchError{ID: mig.ID()}
				}
			}

			if opts.SavePath != "" && !isDependency {
				if err := appendLine(opts.SavePath, mig.ID().String()); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// appendLine appends one id per line to the save file. Appending is not
// deduplicated; re-running up may repeat ids.
func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
