// SPDX-License-Identifier: Apache-2.0

package target

import (
	"github.com/pterm/pterm"

	"github.com/mitchtool/mitch/pkg/migrations"
)

// Logger reports progress while scripts run against the target.
type Logger interface {
	LogApply(*migrations.Migration)
	LogRevert(*migrations.Migration)
	LogStatement(string)

	Info(msg string, args ...any)
}

type termLogger struct {
	logger pterm.Logger
}

type noopLogger struct{}

func NewLogger() Logger {
	return &termLogger{logger: pterm.DefaultLogger}
}

func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (l *termLogger) LogApply(m *migrations.Migration) {
	l.logger.Info("applying migration", l.logger.Args("id", m.ID().String()))
}

func (l *termLogger) LogRevert(m *migrations.Migration) {
	l.logger.Info("reverting migration", l.logger.Args("id", m.ID().String()))
}

func (l *termLogger) LogStatement(stmt string) {
	l.logger.Info("executing statement", l.logger.Args("sql", multipleSpaces.ReplaceAllString(stmt, " ")))
}

func (l *termLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(args...))
}

func (l *noopLogger) LogApply(m *migrations.Migration)  {}
func (l *noopLogger) LogRevert(m *migrations.Migration) {}
func (l *noopLogger) LogStatement(stmt string)          {}
func (l *noopLogger) Info(msg string, args ...any)      {}
