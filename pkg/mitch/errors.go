// SPDX-License-Identifier: Apache-2.0

package mitch

import (
	"fmt"

	"github.com/mitchtool/mitch/pkg/migrations"
)

// ScriptMismatchError reports a migration that is already applied with a
// different script and cannot be re-applied.
type ScriptMismatchError struct {
	ID migrations.CompositeID
}

func (e ScriptMismatchError) Error() string {
	return fmt.Sprintf("migration %s has been applied with a different script", e.ID)
}
