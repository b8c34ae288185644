// SPDX-License-Identifier: Apache-2.0

// Package repository discovers migrations on disk, resolves their
// dependency edges across nested repositories and produces deterministic
// topological orderings.
package repository

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mitchtool/mitch/pkg/migrations"
)

// DescriptorFile marks a directory as a repository root.
const DescriptorFile = "mitch.toml"

// descriptor mirrors mitch.toml. A file without a [repository] table does
// not define a repository.
type descriptor struct {
	Repository *repositoryConfig `toml:"repository"`
}

type repositoryConfig struct {
	Name       string `toml:"name"`
	Root       bool   `toml:"root"`
	Maintainer string `toml:"maintainer"`
}

// Repository is a rooted directory of migrations. The closure root
// additionally carries the arena of all migrations and the map of named
// sub-repositories.
type Repository struct {
	// RootDir is the absolute path of the repository root.
	RootDir string

	// Name is the declared repository name, unique within the closure.
	Name string

	Maintainer string

	Parent *Repository
	Root   *Repository

	// Migrations owned by this repository.
	Migrations map[migrations.CompositeID]*migrations.Migration

	// Subrepositories is populated on the closure root only, keyed by
	// declared name.
	Subrepositories map[string]*Repository

	// arena indexes every migration of the closure by composite id.
	// Dependency edges reference it instead of holding pointers.
	arena map[migrations.CompositeID]*migrations.Migration
}

// FromClosestParent walks from dir toward the filesystem root and loads the
// repository rooted at the first ancestor whose mitch.toml declares a
// [repository] section.
func FromClosestParent(dir string) (*Repository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	for d := abs; ; {
		cfg, err := readDescriptor(d)
		if err != nil {
			if _, missing := err.(MissingRepositorySectionError); !missing && !os.IsNotExist(err) {
				return nil, err
			}
		}
		if cfg != nil {
			return Load(d)
		}
		parent := filepath.Dir(d)
		if parent == d {
			return nil, NoRepositoryError{Dir: abs}
		}
		d = parent
	}
}

// readDescriptor reads dir's mitch.toml. It returns os.ErrNotExist when the
// file is absent and MissingRepositorySectionError when the file exists but
// declares no repository.
func readDescriptor(dir string) (*repositoryConfig, error) {
	path := filepath.Join(dir, DescriptorFile)
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	var d descriptor
	if _, err := toml.DecodeFile(path, &d); err != nil {
		return nil, InvalidRepositoryError{Path: path, Err: err}
	}
	if d.Repository == nil {
		return nil, MissingRepositorySectionError{Path: path}
	}
	return d.Repository, nil
}

// Load reads the repository rooted at dir together with every nested
// sub-repository and resolves all dependency edges of the closure.
func Load(dir string) (*Repository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	cfg, err := readDescriptor(abs)
	if err != nil {
		return nil, err
	}

	root := &Repository{
		RootDir:         abs,
		Name:            cfg.Name,
		Maintainer:      cfg.Maintainer,
		Migrations:      map[migrations.CompositeID]*migrations.Migration{},
		Subrepositories: map[string]*Repository{},
		arena:           map[migrations.CompositeID]*migrations.Migration{},
	}
	root.Root = root

	nested, err := nestedRepositoryDirs(abs)
	if err != nil {
		return nil, err
	}

	// One Repository object per resolved root path. WalkDir visits parents
	// before children, so the nearest enclosing repository of each nested
	// dir is already registered when the dir is reached.
	byPath := map[string]*Repository{abs: root}
	repos := []*Repository{root}
	for _, d := range nested {
		cfg, err := readDescriptor(d)
		if err != nil {
			return nil, err
		}
		sub := &Repository{
			RootDir:    d,
			Name:       cfg.Name,
			Maintainer: cfg.Maintainer,
			Parent:     enclosingRepository(byPath, d),
			Root:       root,
			Migrations: map[migrations.CompositeID]*migrations.Migration{},
		}
		if sub.Name == root.Name {
			return nil, DuplicateRepositoryError{Name: sub.Name}
		}
		if _, dup := root.Subrepositories[sub.Name]; dup {
			return nil, DuplicateRepositoryError{Name: sub.Name}
		}
		root.Subrepositories[sub.Name] = sub
		byPath[d] = sub
		repos = append(repos, sub)
	}

	for _, r := range repos {
		if err := r.loadMigrations(); err != nil {
			return nil, err
		}
	}

	if err := root.resolve(); err != nil {
		return nil, err
	}
	return root, nil
}

// nestedRepositoryDirs lists every directory strictly below root that
// contains a mitch.toml, in lexical order.
func nestedRepositoryDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if fileExists(filepath.Join(path, DescriptorFile)) {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}

func enclosingRepository(byPath map[string]*Repository, dir string) *Repository {
	for d := filepath.Dir(dir); ; d = filepath.Dir(d) {
		if r, ok := byPath[d]; ok {
			return r
		}
		if filepath.Dir(d) == d {
			return nil
		}
	}
}

// loadMigrations walks the repository tree. A directory holding a
// migration.toml is a migration; descent stops at any nested directory that
// declares its own repository.
func (r *Repository) loadMigrations() error {
	return filepath.WalkDir(r.RootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != r.RootDir && fileExists(filepath.Join(path, DescriptorFile)) {
			return filepath.SkipDir
		}
		if !fileExists(filepath.Join(path, migrations.DescriptorFile)) {
			return nil
		}
		m, err := migrations.Load(path, r.Name, r.RootDir)
		if err != nil {
			return err
		}
		id := m.ID()
		if _, dup := r.Migrations[id]; dup {
			return DuplicateMigrationError{ID: id}
		}
		r.Migrations[id] = m
		r.Root.arena[id] = m
		return nil
	})
}

// resolve normalizes every declared dependency to a composite id and
// populates the forward and reverse edge sets of the closure.
func (root *Repository) resolve() error {
	for _, m := range root.sortedArena() {
		owner := root.repositoryNamed(m.RepositoryName)
		for _, dep := range m.DependsOn {
			name := dep
			if strings.HasPrefix(name, ".") {
				resolved, err := root.resolveRelative(owner, m, name)
				if err != nil {
					return err
				}
				name = resolved
			}
			id, err := migrations.ParseCompositeID(name, m.RepositoryName)
			if err != nil {
				return err
			}
			target, ok := root.arena[id]
			if !ok {
				return UnknownDependencyError{Migration: m.ID(), Dependency: name}
			}
			m.Dependencies = append(m.Dependencies, id)
			target.Dependants = append(target.Dependants, m.ID())
		}
	}
	return nil
}

// resolveRelative rewrites a leading-dot dependency path to the
// repository-relative id form. A path that escapes the owning repository or
// reaches into a nested sub-repository is ambiguous and rejected.
func (root *Repository) resolveRelative(owner *Repository, m *migrations.Migration, dep string) (string, error) {
	resolved := filepath.Clean(filepath.Join(m.Dir, dep))
	rel, err := filepath.Rel(owner.RootDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", RelativeDependencyError{Migration: m.ID(), Dependency: dep}
	}
	for _, sub := range root.Subrepositories {
		if sub == owner {
			continue
		}
		if resolved == sub.RootDir || strings.HasPrefix(resolved, sub.RootDir+string(filepath.Separator)) {
			return "", RelativeDependencyError{Migration: m.ID(), Dependency: dep}
		}
	}
	return filepath.ToSlash(rel), nil
}

func (root *Repository) sortedArena() []*migrations.Migration {
	out := make([]*migrations.Migration, 0, len(root.arena))
	for _, m := range root.arena {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}

// repositoryNamed returns the closure member with the given declared name,
// nil when there is none.
func (r *Repository) repositoryNamed(name string) *Repository {
	root := r.Root
	if name == root.Name {
		return root
	}
	return root.Subrepositories[name]
}

// ByID resolves an id written either as a bare migration id or in the
// canonical repository::migration form.
func (r *Repository) ByID(s string) (*migrations.Migration, error) {
	id, err := migrations.ParseCompositeID(s, r.Name)
	if err != nil {
		return nil, err
	}
	repo := r.repositoryNamed(id.Repository)
	if repo == nil {
		return nil, UnknownMigrationError{ID: s}
	}
	m, ok := repo.Migrations[id]
	if !ok {
		return nil, UnknownMigrationError{ID: s}
	}
	return m, nil
}

// ByIDs resolves a list of ids, failing on the first unknown one.
func (r *Repository) ByIDs(ids []string) ([]*migrations.Migration, error) {
	out := make([]*migrations.Migration, 0, len(ids))
	for _, s := range ids {
		m, err := r.ByID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Pair joins an application record with the on-disk migration it refers
// to; Migration is nil when no such migration exists anymore.
type Pair struct {
	Application *migrations.Application
	Migration   *migrations.Migration
}

// WithMigrations joins application records back to migration objects.
func (r *Repository) WithMigrations(apps []*migrations.Application) []Pair {
	out := make([]Pair, 0, len(apps))
	for _, a := range apps {
		out = append(out, Pair{Application: a, Migration: r.Root.arena[a.ID()]})
	}
	return out
}

// AllMigrations returns every migration of the closure in sort-key order.
func (r *Repository) AllMigrations() []*migrations.Migration {
	out := make([]*migrations.Migration, 0, len(r.Root.arena))
	for _, m := range r.Root.arena {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SortKey().Less(out[j].SortKey())
	})
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
