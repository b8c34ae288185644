// SPDX-License-Identifier: Apache-2.0

package repository_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchtool/mitch/pkg/migrations"
	"github.com/mitchtool/mitch/pkg/repository"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeRepo(t *testing.T, dir, name string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, "mitch.toml"), "[repository]\nname = \""+name+"\"\n")
}

func writeMigrationDir(t *testing.T, dir, descriptor string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, "migration.toml"), descriptor)
	writeFile(t, filepath.Join(dir, "up.sql"), "select 1;\n")
	writeFile(t, filepath.Join(dir, "down.sql"), "select 1;\n")
}

// chainRepo builds a repository "main" with migrations a <- b <- c.
func chainRepo(t *testing.T) *repository.Repository {
	t.Helper()
	root := t.TempDir()
	writeRepo(t, root, "main")
	writeMigrationDir(t, filepath.Join(root, "a"), "")
	writeMigrationDir(t, filepath.Join(root, "b"), "dependencies = [\"a\"]\n")
	writeMigrationDir(t, filepath.Join(root, "c"), "dependencies = [\"b\"]\n")

	repo, err := repository.Load(root)
	require.NoError(t, err)
	return repo
}

func ids(ms []*migrations.Migration) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID().String()
	}
	return out
}

func TestFromClosestParent(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	nested := filepath.Join(root, "some", "deep", "dir")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	repo, err := repository.FromClosestParent(nested)
	require.NoError(t, err)
	assert.Equal(t, "main", repo.Name)
	assert.Equal(t, root, repo.RootDir)
}

func TestFromClosestParentRejectsNestedFileWithoutRepositorySection(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	middle := filepath.Join(root, "middle")
	writeFile(t, filepath.Join(middle, "mitch.toml"), "# no repository section\n")
	nested := filepath.Join(middle, "dir")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	// The upward walk passes over middle's file and finds root, but loading
	// root treats middle as a nested sub-repository, which has no
	// [repository] section.
	_, err := repository.FromClosestParent(nested)
	var missing repository.MissingRepositorySectionError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, filepath.Join(middle, "mitch.toml"), missing.Path)
}

func TestFromClosestParentWithoutRepository(t *testing.T) {
	dir := t.TempDir()

	_, err := repository.FromClosestParent(dir)
	var noRepo repository.NoRepositoryError
	assert.ErrorAs(t, err, &noRepo)
}

func TestLoadDiscoversNestedMigrations(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	writeMigrationDir(t, filepath.Join(root, "users", "create"), "")
	writeMigrationDir(t, filepath.Join(root, "users", "index"), "dependencies = [\"users/create\"]\n")

	repo, err := repository.Load(root)
	require.NoError(t, err)

	_, err = repo.ByID("users/create")
	require.NoError(t, err)
	m, err := repo.ByID("main::users/index")
	require.NoError(t, err)
	assert.Equal(t, []migrations.CompositeID{{Repository: "main", Migration: "users/create"}}, m.Dependencies)
}

func TestDependenciesOfChain(t *testing.T) {
	repo := chainRepo(t)

	c, err := repo.ByID("c")
	require.NoError(t, err)

	plan, err := repo.DependenciesOf([]*migrations.Migration{c})
	require.NoError(t, err)
	assert.Equal(t, []string{"main::a", "main::b", "main::c"}, ids(plan))
}

func TestDependantsOfChain(t *testing.T) {
	repo := chainRepo(t)

	a, err := repo.ByID("a")
	require.NoError(t, err)

	plan, err := repo.DependantsOf([]*migrations.Migration{a})
	require.NoError(t, err)
	assert.Equal(t, []string{"main::c", "main::b", "main::a"}, ids(plan))
}

func TestTraversalEmitsEachMigrationOnce(t *testing.T) {
	repo := chainRepo(t)

	b, err := repo.ByID("b")
	require.NoError(t, err)
	c, err := repo.ByID("c")
	require.NoError(t, err)

	plan, err := repo.DependenciesOf([]*migrations.Migration{c, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"main::a", "main::b", "main::c"}, ids(plan))
}

func TestTraversalTieBreak(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	writeMigrationDir(t, filepath.Join(root, "x"), "created_at = \"2024-03-01T00:00:00Z\"\n")
	writeMigrationDir(t, filepath.Join(root, "y"), "created_at = \"2024-01-01T00:00:00Z\"\n")
	writeMigrationDir(t, filepath.Join(root, "z"), "")

	repo, err := repository.Load(root)
	require.NoError(t, err)
	all, err := repo.ByIDs([]string{"x", "y", "z"})
	require.NoError(t, err)

	// Unset creation dates sort first; otherwise ascending by date.
	plan, err := repo.DependenciesOf(all)
	require.NoError(t, err)
	assert.Equal(t, []string{"main::z", "main::y", "main::x"}, ids(plan))

	// Dependants traversal breaks ties descending.
	plan, err = repo.DependantsOf(all)
	require.NoError(t, err)
	assert.Equal(t, []string{"main::x", "main::y", "main::z"}, ids(plan))
}

func TestCyclicDependenciesFailTraversal(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	writeMigrationDir(t, filepath.Join(root, "a"), "dependencies = [\"b\"]\n")
	writeMigrationDir(t, filepath.Join(root, "b"), "dependencies = [\"a\"]\n")

	repo, err := repository.Load(root)
	require.NoError(t, err)
	a, err := repo.ByID("a")
	require.NoError(t, err)

	_, err = repo.DependenciesOf([]*migrations.Migration{a})
	var cyclic repository.CyclicDependencyError
	assert.ErrorAs(t, err, &cyclic)

	_, err = repo.DependantsOf([]*migrations.Migration{a})
	assert.ErrorAs(t, err, &cyclic)
}

func TestRelativeDependencies(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	writeMigrationDir(t, filepath.Join(root, "schemas", "alpha"), "")
	writeMigrationDir(t, filepath.Join(root, "schemas", "beta"), "dependencies = [\"../alpha\"]\n")

	repo, err := repository.Load(root)
	require.NoError(t, err)

	beta, err := repo.ByID("schemas/beta")
	require.NoError(t, err)
	assert.Equal(t, []migrations.CompositeID{{Repository: "main", Migration: "schemas/alpha"}}, beta.Dependencies)

	alpha, err := repo.ByID("schemas/alpha")
	require.NoError(t, err)
	assert.Equal(t, []migrations.CompositeID{beta.ID()}, alpha.Dependants)
}

func TestRelativeDependencyEscapingRepositoryFails(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	writeMigrationDir(t, filepath.Join(root, "a"), "dependencies = [\"../../elsewhere\"]\n")

	_, err := repository.Load(root)
	var relErr repository.RelativeDependencyError
	assert.ErrorAs(t, err, &relErr)
}

func TestUnknownDependencyFails(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	writeMigrationDir(t, filepath.Join(root, "a"), "dependencies = [\"missing\"]\n")

	_, err := repository.Load(root)
	var unknown repository.UnknownDependencyError
	assert.ErrorAs(t, err, &unknown)
}

func TestDuplicateMigrationIDFails(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	writeMigrationDir(t, filepath.Join(root, "a"), "id = \"same\"\n")
	writeMigrationDir(t, filepath.Join(root, "b"), "id = \"same\"\n")

	_, err := repository.Load(root)
	var dup repository.DuplicateMigrationError
	assert.ErrorAs(t, err, &dup)
}

func TestSubrepositories(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	writeMigrationDir(t, filepath.Join(root, "n"), "dependencies = [\"sub::m\"]\n")
	sub := filepath.Join(root, "vendor", "sub")
	writeRepo(t, sub, "sub")
	writeMigrationDir(t, filepath.Join(sub, "m"), "")

	repo, err := repository.Load(root)
	require.NoError(t, err)

	require.Contains(t, repo.Subrepositories, "sub")
	assert.Same(t, repo, repo.Subrepositories["sub"].Parent)

	// Migrations of the sub-repository belong to it, not to the root.
	m, err := repo.ByID("sub::m")
	require.NoError(t, err)
	assert.Equal(t, "sub", m.RepositoryName)
	_, err = repo.ByID("m")
	assert.Error(t, err)

	n, err := repo.ByID("n")
	require.NoError(t, err)
	plan, err := repo.DependenciesOf([]*migrations.Migration{n})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub::m", "main::n"}, ids(plan))
}

func TestMigrationDiscoveryStopsAtSubrepositories(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	sub := filepath.Join(root, "sub")
	writeRepo(t, sub, "sub")
	writeMigrationDir(t, filepath.Join(sub, "m"), "")

	repo, err := repository.Load(root)
	require.NoError(t, err)
	assert.Empty(t, repo.Migrations)
	assert.Len(t, repo.Subrepositories["sub"].Migrations, 1)
}

func TestDuplicateRepositoryNameFails(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	writeRepo(t, filepath.Join(root, "one"), "dup")
	writeRepo(t, filepath.Join(root, "two"), "dup")

	_, err := repository.Load(root)
	var dup repository.DuplicateRepositoryError
	assert.ErrorAs(t, err, &dup)
}

func TestNestedRepositoryWithoutSectionFails(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "main")
	writeFile(t, filepath.Join(root, "sub", "mitch.toml"), "# nothing\n")

	_, err := repository.Load(root)
	var missing repository.MissingRepositorySectionError
	assert.ErrorAs(t, err, &missing)
}

func TestWithMigrations(t *testing.T) {
	repo := chainRepo(t)

	apps := []*migrations.Application{
		{RepositoryID: "main", MigrationID: "a"},
		{RepositoryID: "main", MigrationID: "gone"},
	}
	pairs := repo.WithMigrations(apps)
	require.Len(t, pairs, 2)
	require.NotNil(t, pairs[0].Migration)
	assert.Equal(t, "main::a", pairs[0].Migration.ID().String())
	assert.Nil(t, pairs[1].Migration)
}

func TestAllMigrations(t *testing.T) {
	repo := chainRepo(t)

	all := repo.AllMigrations()
	assert.Equal(t, []string{"main::a", "main::b", "main::c"}, ids(all))
}
