// SPDX-License-Identifier: Apache-2.0

package target

import (
	"fmt"
	"regexp"

	"github.com/mitchtool/mitch/pkg/migrations"
)

var multipleSpaces = regexp.MustCompile(`\s+`)

// StatementError reports a script statement the database rejected.
type StatementError struct {
	Migration migrations.CompositeID
	Statement string
	Err       error
}

func (e StatementError) Error() string {
	return fmt.Sprintf("migration %s: statement %q failed: %v",
		e.Migration, multipleSpaces.ReplaceAllString(e.Statement, " "), e.Err)
}

func (e StatementError) Unwrap() error {
	return e.Err
}
