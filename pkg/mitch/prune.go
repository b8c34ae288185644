// SPDX-License-Identifier: Apache-2.0

package mitch

import (
	"context"
	"database/sql"
)

// Prune reverts installed migrations that are not in the except set (or,
// with no exceptions given, not applied explicitly). Dependencies of the
// kept migrations are not kept unless they are in that set themselves.
func (m *Mitch) Prune(ctx context.Context, exceptIDs []string) error {
	except, err := m.repo.ByIDs(exceptIDs)
	if err != nil {
		return err
	}
	return m.target.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return m.target.Prune(ctx, tx, m.repo, except)
	})
}
