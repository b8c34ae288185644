// SPDX-License-Identifier: Apache-2.0

package migrations_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchtool/mitch/pkg/migrations"
)

func writeMigration(t *testing.T, dir, descriptor, up, down string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, migrations.DescriptorFile), []byte(descriptor), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, migrations.UpScriptFile), []byte(up), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, migrations.DownScriptFile), []byte(down), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "widgets", "create")
	writeMigration(t, dir, "", "create table widgets (id int);\n", "drop table widgets;\n")

	m, err := migrations.Load(dir, "app", root)
	require.NoError(t, err)

	assert.Equal(t, "widgets/create", m.MigrationID)
	assert.Equal(t, migrations.CompositeID{Repository: "app", Migration: "widgets/create"}, m.ID())
	assert.True(t, m.Transactional)
	assert.False(t, m.Idempotent)
	assert.True(t, m.CreatedAt.IsZero())
	assert.Empty(t, m.DependsOn)
}

func TestLoadDescriptor(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "create-users")
	writeMigration(t, dir, `
id = "users"
author = "ada"
created_at = "2024-03-01T12:00:00Z"
transactional = false
idempotent = true
dependencies = ["schemas", "./create-roles"]
`, "create table users (id int);\n", "drop table users;\n")

	m, err := migrations.Load(dir, "app", root)
	require.NoError(t, err)

	assert.Equal(t, "users", m.MigrationID)
	assert.Equal(t, "ada", m.Author)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), m.CreatedAt.UTC())
	assert.False(t, m.Transactional)
	assert.True(t, m.Idempotent)
	assert.Equal(t, []string{"schemas", "./create-roles"}, m.DependsOn)
}

func TestLoadDatetimeCreatedAt(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "users")
	writeMigration(t, dir, "created_at = 2024-03-01T12:00:00Z\n", "select 1;\n", "select 1;\n")

	m, err := migrations.Load(dir, "app", root)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), m.CreatedAt.UTC())
}

func TestLoadRelationsTable(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "users")
	writeMigration(t, dir, `
[relations]
dependencies = ["schemas"]
`, "select 1;\n", "select 1;\n")

	m, err := migrations.Load(dir, "app", root)
	require.NoError(t, err)
	assert.Equal(t, []string{"schemas"}, m.DependsOn)
}

func TestStatementsExcludeBlankAndCommentOnly(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "users")
	writeMigration(t, dir, "",
		"create table users (id int);\n\n;\n\ncreate index users_id on users (id);\n",
		"-- revert users\n")

	m, err := migrations.Load(dir, "app", root)
	require.NoError(t, err)

	up, err := m.UpStatements()
	require.NoError(t, err)
	assert.Len(t, up, 2)

	down, err := m.DownStatements()
	require.NoError(t, err)
	assert.Empty(t, down)
}

func TestHashesDistinguishRawFromCanonical(t *testing.T) {
	root := t.TempDir()

	a := filepath.Join(root, "a")
	writeMigration(t, a, "", "create table users (id int);\n", "drop table users;\n")
	b := filepath.Join(root, "b")
	writeMigration(t, b, "", "CREATE TABLE users\n  (id int);\n", "drop table users;\n")

	ma, err := migrations.Load(a, "app", root)
	require.NoError(t, err)
	mb, err := migrations.Load(b, "app", root)
	require.NoError(t, err)

	rawA, err := ma.UpScriptSHA256()
	require.NoError(t, err)
	rawB, err := mb.UpScriptSHA256()
	require.NoError(t, err)
	assert.NotEqual(t, rawA, rawB)
	assert.Len(t, rawA, 64)

	canonicalA, err := ma.CanonicalUpScriptSHA256()
	require.NoError(t, err)
	canonicalB, err := mb.CanonicalUpScriptSHA256()
	require.NoError(t, err)
	assert.Equal(t, canonicalA, canonicalB)
}

func TestApplicationMatches(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "users")
	writeMigration(t, dir, "", "create table users (id int);\n", "drop table users;\n")

	m, err := migrations.Load(dir, "app", root)
	require.NoError(t, err)
	raw, err := m.UpScriptSHA256()
	require.NoError(t, err)
	canonical, err := m.CanonicalUpScriptSHA256()
	require.NoError(t, err)

	tests := []struct {
		Name     string
		App      migrations.Application
		Expected bool
	}{
		{
			Name:     "raw hash matches",
			App:      migrations.Application{UpScriptSHA256: raw},
			Expected: true,
		},
		{
			Name:     "canonical hash alone matches",
			App:      migrations.Application{UpScriptSHA256: "0000", CanonicalUpScriptSHA256: canonical},
			Expected: true,
		},
		{
			Name:     "no hash matches",
			App:      migrations.Application{UpScriptSHA256: "0000", CanonicalUpScriptSHA256: "1111"},
			Expected: false,
		},
		{
			Name:     "missing canonical hash does not match",
			App:      migrations.Application{UpScriptSHA256: "0000"},
			Expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			ok, err := tt.App.Matches(m)
			require.NoError(t, err)
			assert.Equal(t, tt.Expected, ok)
		})
	}
}

func TestSortKeyOrder(t *testing.T) {
	earlier := migrations.SortKey{CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), RepositoryName: "app", MigrationID: "b"}
	later := migrations.SortKey{CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), RepositoryName: "app", MigrationID: "a"}
	unset := migrations.SortKey{RepositoryName: "zzz", MigrationID: "zzz"}

	assert.True(t, earlier.Less(later))
	assert.False(t, later.Less(earlier))
	assert.True(t, unset.Less(earlier))

	sameTime := migrations.SortKey{CreatedAt: earlier.CreatedAt, RepositoryName: "app", MigrationID: "a"}
	assert.True(t, sameTime.Less(earlier))
}
