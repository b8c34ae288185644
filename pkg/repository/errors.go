// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"fmt"
	"strings"

	"github.com/mitchtool/mitch/pkg/migrations"
)

type NoRepositoryError struct {
	Dir string
}

func (e NoRepositoryError) Error() string {
	return fmt.Sprintf("no %s with a [repository] section found in %q or any parent directory", DescriptorFile, e.Dir)
}

type InvalidRepositoryError struct {
	Path string
	Err  error
}

func (e InvalidRepositoryError) Error() string {
	return fmt.Sprintf("invalid repository descriptor %q: %v", e.Path, e.Err)
}

func (e InvalidRepositoryError) Unwrap() error {
	return e.Err
}

type MissingRepositorySectionError struct {
	Path string
}

func (e MissingRepositorySectionError) Error() string {
	return fmt.Sprintf("%q has no [repository] section", e.Path)
}

type DuplicateRepositoryError struct {
	Name string
}

func (e DuplicateRepositoryError) Error() string {
	return fmt.Sprintf("duplicate repository name %q", e.Name)
}

type DuplicateMigrationError struct {
	ID migrations.CompositeID
}

func (e DuplicateMigrationError) Error() string {
	return fmt.Sprintf("duplicate migration id %s", e.ID)
}

type UnknownMigrationError struct {
	ID string
}

func (e UnknownMigrationError) Error() string {
	return fmt.Sprintf("unknown migration %s", e.ID)
}

type UnknownDependencyError struct {
	Migration  migrations.CompositeID
	Dependency string
}

func (e UnknownDependencyError) Error() string {
	return fmt.Sprintf("migration %s: unknown dependency %s", e.Migration, e.Dependency)
}

type RelativeDependencyError struct {
	Migration  migrations.CompositeID
	Dependency string
}

func (e RelativeDependencyError) Error() string {
	return fmt.Sprintf("migration %s: relative dependency %q leaves the owning repository", e.Migration, e.Dependency)
}

type CyclicDependencyError struct {
	Remaining []migrations.CompositeID
}

func (e CyclicDependencyError) Error() string {
	ids := make([]string, len(e.Remaining))
	for i, id := range e.Remaining {
		ids[i] = id.String()
	}
	return fmt.Sprintf("cyclic dependencies between %s", strings.Join(ids, ", "))
}
