// Package removal implements the removal planner of spec.md §4.6: given
// a set of module names to remove (or none, meaning "every loaded
// module known to the DB"), compute a safe teardown order, refusing to
// unload modules still depended on by a live module not being removed.
package removal

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fluxrm/modprobe/internal/broker"
	"github.com/fluxrm/modprobe/internal/graph"
	"github.com/fluxrm/modprobe/internal/task"
)

// ErrInUse is returned when removing the requested modules would leave
// a live, non-removed module's dependency dangling (spec.md §7).
var ErrInUse = errors.New("module in use")

// Plan is the result of planning a removal: the predecessor graph ready
// to hand to internal/executor. Its keys are the task names it covers
// (modules plus any teardown tasks extended in by TeardownTasks).
type Plan struct {
	Deps graph.DepMap
}

// Options configures Planner.Plan.
type Options struct {
	// Modules lists the module names requested for removal. Empty means
	// every loaded module known to db.
	Modules []string

	// TeardownTasks names additional (non-module) tasks that should run
	// as part of this removal, extended with predecessors per spec.md
	// §4.6 step 6.
	TeardownTasks []string
}

// Planner computes removal plans against a task.DB and a broker handle
// used to query the currently loaded modules.
type Planner struct {
	DB     *task.DB
	Handle broker.Handle
}

// ModuleList is a thin read-only cache of a module.list query result,
// resolving service-alias names to the canonical task name the DB knows
// them by. It is the Go analogue of the original's ModuleList class.
type ModuleList struct {
	canonical map[string]string // alias or module name -> canonical task name
	loaded    map[string]bool   // canonical task name -> loaded
}

// NewModuleList queries handle.List and resolves each entry against db.
// Entries naming a module the DB has no task for are ignored: they are
// not part of the set this core plans removals over.
func NewModuleList(ctx context.Context, handle broker.Handle, db *task.DB) (*ModuleList, error) {
	listed, err := handle.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying loaded modules: %w", err)
	}
	ml := &ModuleList{
		canonical: make(map[string]string),
		loaded:    make(map[string]bool),
	}
	for _, m := range listed {
		if !db.Has(m.Name) {
			continue
		}
		t, err := db.Get(m.Name)
		if err != nil {
			continue
		}
		ml.loaded[t.Name] = true
		ml.canonical[m.Name] = t.Name
		for _, svc := range m.Services {
			ml.canonical[svc] = t.Name
		}
	}
	return ml, nil
}

// Loaded returns the canonical task names of every loaded module known
// to the DB.
func (ml *ModuleList) Loaded() []string {
	names := make([]string, 0, len(ml.loaded))
	for name := range ml.loaded {
		names = append(names, name)
	}
	return names
}

// Lookup resolves a module or service alias name to the canonical task
// name it is currently loaded under.
func (ml *ModuleList) Lookup(service string) (string, bool) {
	name, ok := ml.canonical[service]
	return name, ok
}

// Plan implements spec.md §4.6 steps 1-7. The caller is responsible for
// step 8 (driving the resulting graph through internal/executor).
func (p *Planner) Plan(ctx context.Context, opts Options) (*Plan, error) {
	ml, err := NewModuleList(ctx, p.Handle, p.DB)
	if err != nil {
		return nil, err
	}

	// Step 1: loaded modules known to the DB.
	loaded := make(map[string]bool)
	for _, name := range ml.Loaded() {
		loaded[name] = true
	}

	requested := opts.Modules
	if len(requested) == 0 {
		requested = ml.Loaded()
	}
	requestedCanonical := make(map[string]bool, len(requested))
	for _, name := range requested {
		canonical, ok := ml.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("module %s is not loaded: %w", name, task.ErrNotFound)
		}
		requestedCanonical[canonical] = true
	}

	// Step 2: normal load-order deps for all loaded modules.
	normalDeps, err := graph.BuildEdges(p.DB, loaded)
	if err != nil {
		return nil, err
	}

	// Step 3: invert.
	rdeps := make(map[string]map[string]bool, len(normalDeps))
	for name := range normalDeps {
		rdeps[name] = make(map[string]bool)
	}
	for succ, preds := range normalDeps {
		for pred := range preds {
			rdeps[pred][succ] = true
		}
	}

	// Step 4/5: a requested module is removable only if every one of its
	// live reverse-dependents is itself in the requested set (spec.md
	// §7, worked example S5). This does not auto-discover additional
	// modules freed up by the requested removal: removing a leaf such as
	// "kvs" touches only "kvs", even though "content" and
	// "content-backing" thereby lose their only remaining dependent.
	toRemove := make(map[string]bool, len(requestedCanonical))
	for name := range requestedCanonical {
		toRemove[name] = true
	}
	names := make([]string, 0, len(requestedCanonical))
	for name := range requestedCanonical {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic error ordering
	for _, name := range names {
		var blockers []string
		for dep := range rdeps[name] {
			if !toRemove[dep] {
				blockers = append(blockers, dep)
			}
		}
		if len(blockers) > 0 {
			sort.Strings(blockers)
			return nil, fmt.Errorf("%s still in use by %v: %w", name, blockers, ErrInUse)
		}
	}

	// Step 7: adapt each selected module for teardown.
	for name := range toRemove {
		t, err := p.DB.Get(name)
		if err != nil {
			return nil, err
		}
		t.PrepareForRemoval()
	}

	// Step 6: extend included teardown tasks' predecessors.
	finalSet := make(map[string]bool, len(toRemove)+len(opts.TeardownTasks))
	for name := range toRemove {
		finalSet[name] = true
	}
	for _, name := range opts.TeardownTasks {
		t, err := p.DB.Get(name)
		if err != nil {
			return nil, fmt.Errorf("teardown task %s: %w", name, err)
		}
		finalSet[t.Name] = true
		if len(t.After) > 0 || t.AfterAll {
			// Keep only the explicit predecessors still present in this
			// teardown (spec.md §4.6 step 6).
			kept := t.After[:0:0]
			for _, a := range t.After {
				if finalSet[a] || toRemove[a] {
					kept = append(kept, a)
				}
			}
			t.After = kept
		} else {
			for mod := range toRemove {
				t.After = append(t.After, mod)
			}
		}
	}

	// Step 8 (graph only; executing it is the caller's job): rebuild
	// edges over the now-swapped module tasks, which yields teardown
	// order as the reverse of bringup order.
	finalDeps, err := graph.BuildEdges(p.DB, finalSet)
	if err != nil {
		return nil, err
	}

	return &Plan{Deps: finalDeps}, nil
}
