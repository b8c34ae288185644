// SPDX-License-Identifier: Apache-2.0

// Package sqlfmt splits SQL scripts into statements and reformats
// statements to a canonical form, so that cosmetic edits to a script leave
// its canonical hash unchanged.
package sqlfmt

import (
	"strings"

	pgq "github.com/pganalyze/pg_query_go/v6"
)

// Split breaks a script into its statements. Whitespace-only segments and
// segments that open with a line comment are dropped.
func Split(script string) ([]string, error) {
	segments, err := pgq.SplitWithScanner(script, true)
	if err != nil {
		return nil, err
	}

	stmts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" || strings.HasPrefix(s, "--") {
			continue
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

// Canonicalize reformats a single statement through the Postgres parser:
// comments are stripped, and keyword spelling, quoting and whitespace are
// normalized by the deparser. The result is a fixed point: canonicalizing
// twice yields the same text. Statements the parser rejects canonicalize to
// their trimmed raw text.
func Canonicalize(stmt string) string {
	tree, err := pgq.Parse(stmt)
	if err != nil {
		return strings.TrimSpace(stmt)
	}
	out, err := pgq.Deparse(tree)
	if err != nil {
		return strings.TrimSpace(stmt)
	}
	return out
}

// CanonicalScript is the canonical form of a whole script: every statement
// canonicalized, joined by blank lines.
func CanonicalScript(script string) (string, error) {
	stmts, err := Split(script)
	if err != nil {
		return "", err
	}
	formatted := make([]string, len(stmts))
	for i, s := range stmts {
		formatted[i] = Canonicalize(s)
	}
	return strings.Join(formatted, "\n\n"), nil
}
