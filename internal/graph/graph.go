// Package graph implements the predecessor graph builder of spec.md
// §4.4: fusing "after" and "before" (including the "*" wildcard) into a
// single partial order, then pruning by "needs" to a fixed point.
package graph

import (
	"fmt"

	"github.com/fluxrm/modprobe/internal/task"
)

// DepMap maps a task name to the set of predecessor names that must
// complete before it may start.
type DepMap map[string]map[string]bool

// Names returns the sorted-by-caller-preference-free key set; callers
// that need deterministic order should sort it themselves (the executor
// does not rely on any particular order, per spec.md §4.4 "Tie-breaks").
func (d DepMap) Names() []string {
	out := make([]string, 0, len(d))
	for n := range d {
		out = append(out, n)
	}
	return out
}

// Build computes the predecessor map for the solved set `solved` (a set
// of enabled task names, as produced by internal/solver.Solve), applying
// the three rules of spec.md §4.4 in order: after edges, before edges,
// then iterative needs-pruning to a fixed point.
func Build(db *task.DB, solved map[string]bool) (DepMap, error) {
	set := make(map[string]bool, len(solved))
	for n := range solved {
		set[n] = true
	}

	deps, err := buildEdges(db, set)
	if err != nil {
		return nil, err
	}

	if err := prune(db, set, deps); err != nil {
		return nil, err
	}

	return deps, nil
}

// BuildEdges computes only the after/before predecessor rules (spec.md
// §4.4 rules 1-2), without needs-pruning. The removal planner uses this
// directly: needs/requires do not apply during teardown (spec.md §4.6
// step 7).
func BuildEdges(db *task.DB, set map[string]bool) (DepMap, error) {
	return buildEdges(db, set)
}

func buildEdges(db *task.DB, set map[string]bool) (DepMap, error) {
	deps := make(DepMap, len(set))

	// Rule 1: after edges.
	for name := range set {
		t, err := db.Get(name)
		if err != nil {
			return nil, err
		}
		preds := make(map[string]bool)
		if t.AfterAll {
			for other := range set {
				if other != t.Name {
					preds[other] = true
				}
			}
		} else {
			for _, a := range t.After {
				at, err := db.Get(a)
				if err != nil {
					return nil, fmt.Errorf("resolving after-dependency %q of %s: %w", a, name, err)
				}
				if set[at.Name] {
					preds[at.Name] = true
				}
			}
		}
		deps[t.Name] = preds
	}

	// Rule 2: before edges, added as predecessors on the successor.
	for name := range set {
		t, err := db.Get(name)
		if err != nil {
			return nil, err
		}
		if t.BeforeAll {
			for other := range deps {
				ot, err := db.Get(other)
				if err != nil {
					return nil, err
				}
				if !ot.BeforeAll {
					deps[other][t.Name] = true
				}
			}
			continue
		}
		for _, s := range t.Before {
			st, err := db.Get(s)
			if err != nil {
				return nil, fmt.Errorf("resolving before-dependency %q of %s: %w", s, name, err)
			}
			if _, ok := deps[st.Name]; ok {
				deps[st.Name][t.Name] = true
			}
		}
	}

	return deps, nil
}

// prune applies spec.md §4.4 rule 3: iteratively drop any task with an
// unsatisfied `needs` entry, re-checking until a fixed point, then drops
// the removed names from both set and deps.
func prune(db *task.DB, set map[string]bool, deps DepMap) error {
	for {
		removedAny := false
		names := make([]string, 0, len(set))
		for n := range set {
			names = append(names, n)
		}
		for _, name := range names {
			t, err := db.Get(name)
			if err != nil {
				return err
			}
			for _, need := range t.Needs {
				if !db.AnyProvides(names, need) {
					delete(set, name)
					delete(deps, name)
					removedAny = true
					break
				}
			}
		}
		if !removedAny {
			break
		}
	}
	// Drop any predecessor reference to a name no longer in the set.
	for name, preds := range deps {
		for p := range preds {
			if !set[p] {
				delete(preds, p)
			}
		}
		_ = name
	}
	return nil
}
