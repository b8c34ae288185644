// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"sort"

	"github.com/mitchtool/mitch/pkg/migrations"
)

type direction int

const (
	forward direction = iota
	reverse
)

// DependenciesOf expands the selection to its transitive dependencies and
// orders the result so that every migration appears after all of its
// dependencies. Mutually independent migrations are ordered by sort key
// ascending.
func (r *Repository) DependenciesOf(selection []*migrations.Migration) ([]*migrations.Migration, error) {
	return r.traverse(selection, forward)
}

// DependantsOf expands the selection to its transitive dependants and
// orders the result so that every migration appears after all of its
// dependants. Mutually independent migrations are ordered by sort key
// descending.
func (r *Repository) DependantsOf(selection []*migrations.Migration) ([]*migrations.Migration, error) {
	return r.traverse(selection, reverse)
}

// traverse is a Kahn sort over the transitive closure of the selection with
// a deterministically ordered ready frontier.
func (r *Repository) traverse(selection []*migrations.Migration, dir direction) ([]*migrations.Migration, error) {
	arena := r.Root.arena
	edges := func(m *migrations.Migration) []migrations.CompositeID {
		if dir == forward {
			return m.Dependencies
		}
		return m.Dependants
	}

	include := map[migrations.CompositeID]*migrations.Migration{}
	var visit func(*migrations.Migration)
	visit = func(m *migrations.Migration) {
		if _, seen := include[m.ID()]; seen {
			return
		}
		include[m.ID()] = m
		for _, id := range edges(m) {
			if next, ok := arena[id]; ok {
				visit(next)
			}
		}
	}
	for _, m := range selection {
		visit(m)
	}

	out := make([]*migrations.Migration, 0, len(include))
	emitted := map[migrations.CompositeID]bool{}
	for len(out) < len(include) {
		var ready []*migrations.Migration
		for id, m := range include {
			if emitted[id] {
				continue
			}
			blocked := false
			for _, e := range edges(m) {
				if _, in := include[e]; in && !emitted[e] {
					blocked = true
					break
				}
			}
			if !blocked {
				ready = append(ready, m)
			}
		}
		if len(ready) == 0 {
			var remaining []migrations.CompositeID
			for id := range include {
				if !emitted[id] {
					remaining = append(remaining, id)
				}
			}
			sort.Slice(remaining, func(i, j int) bool {
				return remaining[i].String() < remaining[j].String()
			})
			return nil, CyclicDependencyError{Remaining: remaining}
		}
		sort.Slice(ready, func(i, j int) bool {
			ki, kj := ready[i].SortKey(), ready[j].SortKey()
			if dir == forward {
				return ki.Less(kj)
			}
			return kj.Less(ki)
		})
		for _, m := range ready {
			emitted[m.ID()] = true
			out = append(out, m)
		}
	}
	return out, nil
}
