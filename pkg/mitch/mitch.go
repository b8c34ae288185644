// SPDX-License-Identifier: Apache-2.0

// Package mitch combines a migration repository with a target database and
// carries out user commands against the pair: apply, revert, prune and
// re-run, each under a single transaction.
package mitch

import (
	"io"
	"os"

	"github.com/pterm/pterm"

	"github.com/mitchtool/mitch/pkg/repository"
	"github.com/mitchtool/mitch/pkg/target"
)

// ConfirmFunc asks the operator a yes/no question. During up it runs while
// the command transaction is open, so the answer decides whether the
// transaction commits.
type ConfirmFunc func(prompt string) (bool, error)

// TerminalConfirm prompts on the terminal.
func TerminalConfirm(prompt string) (bool, error) {
	return pterm.DefaultInteractiveConfirm.WithDefaultText(prompt).Show()
}

type Mitch struct {
	repo    *repository.Repository
	target  *target.Target
	out     io.Writer
	confirm ConfirmFunc
}

type Option func(*Mitch)

// WithOutput redirects progress output, which goes to stdout by default.
func WithOutput(w io.Writer) Option {
	return func(m *Mitch) {
		m.out = w
	}
}

// WithConfirm replaces the interactive confirmation prompt.
func WithConfirm(f ConfirmFunc) Option {
	return func(m *Mitch) {
		m.confirm = f
	}
}

func New(repo *repository.Repository, tgt *target.Target, opts ...Option) *Mitch {
	m := &Mitch{
		repo:    repo,
		target:  tgt,
		out:     os.Stdout,
		confirm: TerminalConfirm,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}
