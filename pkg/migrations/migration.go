// SPDX-License-Identifier: Apache-2.0

// Package migrations models single migrations: a directory holding a
// migration.toml descriptor next to an up.sql and a down.sql script, plus
// the metadata row recorded when such a migration is applied to a target.
package migrations

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mitchtool/mitch/pkg/sqlfmt"
)

const (
	// DescriptorFile marks a directory as a migration.
	DescriptorFile = "migration.toml"
	UpScriptFile   = "up.sql"
	DownScriptFile = "down.sql"
)

// Migration is one unit of schema change. Scripts, statement lists and
// hashes are read and computed lazily and cached for the lifetime of the
// object; a repository reload produces fresh objects.
type Migration struct {
	// Dir is the absolute path of the migration directory.
	Dir string

	MigrationID    string
	RepositoryName string

	Author    string
	CreatedAt time.Time

	// Idempotent marks a migration safe to re-apply after its script
	// changed. Transactional is declared in the descriptor; all statements
	// run inside the command transaction either way.
	Idempotent    bool
	Transactional bool

	// DependsOn holds the dependency strings as written in the descriptor,
	// possibly relative paths. Dependencies and Dependants are the resolved
	// edges, keyed into the repository closure by composite id.
	DependsOn    []string
	Dependencies []CompositeID
	Dependants   []CompositeID

	upScript       *string
	downScript     *string
	upStatements   []string
	downStatements []string
	canonicalUp    *string
	upSHA          string
	canonicalSHA   string
}

// ID returns the migration's composite identity.
func (m *Migration) ID() CompositeID {
	return CompositeID{Repository: m.RepositoryName, Migration: m.MigrationID}
}

// SortKey orders migrations deterministically when the dependency graph
// alone does not: by creation time (unset sorts first), then repository
// name, then migration id.
type SortKey struct {
	CreatedAt      time.Time
	RepositoryName string
	MigrationID    string
}

func (m *Migration) SortKey() SortKey {
	return SortKey{
		CreatedAt:      m.CreatedAt,
		RepositoryName: m.RepositoryName,
		MigrationID:    m.MigrationID,
	}
}

func (k SortKey) Less(other SortKey) bool {
	if !k.CreatedAt.Equal(other.CreatedAt) {
		return k.CreatedAt.Before(other.CreatedAt)
	}
	if k.RepositoryName != other.RepositoryName {
		return k.RepositoryName < other.RepositoryName
	}
	return k.MigrationID < other.MigrationID
}

// migrationConfig mirrors migration.toml. Dependencies may be declared
// either top-level or under a [relations] table.
type migrationConfig struct {
	ID            string       `toml:"id"`
	Author        string       `toml:"author"`
	CreatedAt     creationTime `toml:"created_at"`
	Transactional *bool        `toml:"transactional"`
	Idempotent    bool         `toml:"idempotent"`
	Dependencies  []string     `toml:"dependencies"`
	Relations     struct {
		Dependencies []string `toml:"dependencies"`
	} `toml:"relations"`
}

// creationTime accepts both native TOML datetimes and RFC 3339 strings.
type creationTime struct {
	time.Time
}

func (t *creationTime) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case time.Time:
		t.Time = v
	case string:
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return err
		}
		t.Time = parsed
	default:
		return fmt.Errorf("created_at must be a datetime or an RFC 3339 string, got %T", v)
	}
	return nil
}

// Load reads the descriptor in dir, which must lie inside the repository
// named repoName rooted at repoRoot. The migration id defaults to the
// directory path relative to the repository root.
func Load(dir, repoName, repoRoot string) (*Migration, error) {
	path := filepath.Join(dir, DescriptorFile)
	var cfg migrationConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, InvalidDescriptorError{Path: path, Err: err}
	}

	id := cfg.ID
	if id == "" {
		rel, err := filepath.Rel(repoRoot, dir)
		if err != nil {
			return nil, InvalidDescriptorError{Path: path, Err: err}
		}
		id = filepath.ToSlash(rel)
	}

	deps := cfg.Relations.Dependencies
	if len(deps) == 0 {
		deps = cfg.Dependencies
	}

	transactional := true
	if cfg.Transactional != nil {
		transactional = *cfg.Transactional
	}

	return &Migration{
		Dir:            dir,
		MigrationID:    id,
		RepositoryName: repoName,
		Author:         cfg.Author,
		CreatedAt:      cfg.CreatedAt.Time,
		Idempotent:     cfg.Idempotent,
		Transactional:  transactional,
		DependsOn:      deps,
	}, nil
}

func (m *Migration) readScript(name string, memo **string) (string, error) {
	if *memo == nil {
		path := filepath.Join(m.Dir, name)
		b, err := os.ReadFile(path)
		if err != nil {
			return "", ScriptReadError{ID: m.ID(), Path: path, Err: err}
		}
		s := string(b)
		*memo = &s
	}
	return **memo, nil
}

// UpScript returns the raw up.sql text.
func (m *Migration) UpScript() (string, error) {
	return m.readScript(UpScriptFile, &m.upScript)
}

// DownScript returns the raw down.sql text.
func (m *Migration) DownScript() (string, error) {
	return m.readScript(DownScriptFile, &m.downScript)
}

// UpStatements returns the up script split into executable statements.
func (m *Migration) UpStatements() ([]string, error) {
	if m.upStatements == nil {
		script, err := m.UpScript()
		if err != nil {
			return nil, err
		}
		stmts, err := sqlfmt.Split(script)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", m.ID(), err)
		}
		if stmts == nil {
			stmts = []string{}
		}
		m.upStatements = stmts
	}
	return m.upStatements, nil
}

// DownStatements returns the down script split into executable statements.
func (m *Migration) DownStatements() ([]string, error) {
	if m.downStatements == nil {
		script, err := m.DownScript()
		if err != nil {
			return nil, err
		}
		stmts, err := sqlfmt.Split(script)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", m.ID(), err)
		}
		if stmts == nil {
			stmts = []string{}
		}
		m.downStatements = stmts
	}
	return m.downStatements, nil
}

// CanonicalUpScript returns the canonical form of the up script: each
// statement canonicalized, joined by blank lines. Cosmetic edits to the raw
// script leave this form unchanged.
func (m *Migration) CanonicalUpScript() (string, error) {
	if m.canonicalUp == nil {
		stmts, err := m.UpStatements()
		if err != nil {
			return "", err
		}
		formatted := make([]string, len(stmts))
		for i, s := range stmts {
			formatted[i] = sqlfmt.Canonicalize(s)
		}
		joined := strings.Join(formatted, "\n\n")
		m.canonicalUp = &joined
	}
	return *m.canonicalUp, nil
}

// UpScriptSHA256 is the hex SHA-256 of the raw up script, the authoritative
// identity of an applied migration.
func (m *Migration) UpScriptSHA256() (string, error) {
	if m.upSHA == "" {
		script, err := m.UpScript()
		if err != nil {
			return "", err
		}
		sum := sha256.Sum256([]byte(script))
		m.upSHA = hex.EncodeToString(sum[:])
	}
	return m.upSHA, nil
}

// CanonicalUpScriptSHA256 is the hex SHA-256 of the canonical up script.
func (m *Migration) CanonicalUpScriptSHA256() (string, error) {
	if m.canonicalSHA == "" {
		script, err := m.CanonicalUpScript()
		if err != nil {
			return "", err
		}
		sum := sha256.Sum256([]byte(script))
		m.canonicalSHA = hex.EncodeToString(sum[:])
	}
	return m.canonicalSHA, nil
}
