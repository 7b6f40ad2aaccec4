// Package orchestrator wires the task database, context, solver,
// predecessor-graph builder, executor and removal planner into the
// top-level entry points a caller (CLI, broker module, or a running task
// body) drives: load a set of modules/tasks, or remove them. It is the
// Go analogue of the original's Modprobe class.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fluxrm/modprobe/internal/broker"
	"github.com/fluxrm/modprobe/internal/catalogue"
	"github.com/fluxrm/modprobe/internal/executor"
	"github.com/fluxrm/modprobe/internal/graph"
	"github.com/fluxrm/modprobe/internal/removal"
	"github.com/fluxrm/modprobe/internal/solver"
	"github.com/fluxrm/modprobe/internal/task"
	"github.com/fluxrm/modprobe/internal/taskctx"
	"github.com/fluxrm/modprobe/internal/timing"
)

// cleanupTaskName is skipped during catalogue registration when
// FLUX_DISABLE_JOB_CLEANUP is set (spec.md §6).
const cleanupTaskName = "job-manager-cleanup"

// Orchestrator owns the task database and the per-run Context, and
// drives solve -> build -> execute for both bring-up and teardown.
type Orchestrator struct {
	DB       *task.DB
	Executor *executor.Executor
	TimingOn bool
	Sink     timing.Sink

	mu sync.Mutex
	tc *taskctx.Context
}

// New constructs an Orchestrator. dialer creates each worker's
// broker.Handle lazily; rank is the local broker rank used to evaluate
// rank predicates and to gate the timing sink to rank 0.
func New(db *task.DB, dialer broker.Dialer, rank int, maxWorkers int, timingOn bool) *Orchestrator {
	o := &Orchestrator{
		DB:       db,
		Executor: &executor.Executor{MaxWorkers: maxWorkers, Dialer: dialer, Timing: timingOn},
		TimingOn: timingOn,
	}
	o.tc = taskctx.New(rank, dialer, o)
	return o
}

// LoadCatalogue registers every entry as a task, skipping the
// job-manager cleanup task when disableJobCleanup is set.
func (o *Orchestrator) LoadCatalogue(entries []catalogue.Entry, disableJobCleanup bool) error {
	if disableJobCleanup {
		filtered := entries[:0:0]
		for _, e := range entries {
			if e.Name == cleanupTaskName {
				continue
			}
			filtered = append(filtered, e)
		}
		entries = filtered
	}
	return catalogue.Register(o.DB, entries)
}

// RegisterTask adds a user-defined (non-module) task, the equivalent of
// the original's "@task" registration callback (spec.md §6).
func (o *Orchestrator) RegisterTask(t *task.Task) {
	o.DB.Add(t)
}

// Load solves, builds and executes the predecessor graph for the given
// seed names (spec.md §2 "solve -> build -> execute").
func (o *Orchestrator) Load(ctx context.Context, names []string) (executor.Result, error) {
	solved, err := solver.Solve(ctx, o.DB, o.tc, names)
	if err != nil {
		return executor.Result{}, fmt.Errorf("solving %v: %w", names, err)
	}
	deps, err := graph.Build(o.DB, solved)
	if err != nil {
		return executor.Result{}, fmt.Errorf("building dependency graph: %w", err)
	}
	res, err := o.Executor.Run(ctx, o.tc, deps, o.DB.Get)
	if err != nil {
		return executor.Result{}, err
	}
	o.commitTiming(ctx, res)
	return res, nil
}

// Remove plans and executes a teardown (spec.md §4.6).
func (o *Orchestrator) Remove(ctx context.Context, handle broker.Handle, opts removal.Options) (executor.Result, error) {
	planner := &removal.Planner{DB: o.DB, Handle: handle}
	plan, err := planner.Plan(ctx, opts)
	if err != nil {
		return executor.Result{}, err
	}
	res, err := o.Executor.Run(ctx, o.tc, plan.Deps, o.DB.Get)
	if err != nil {
		return executor.Result{}, err
	}
	o.commitTiming(ctx, res)
	return res, nil
}

func (o *Orchestrator) commitTiming(ctx context.Context, res executor.Result) {
	if !o.TimingOn || o.Sink == nil || o.tc.Rank() != 0 {
		return
	}
	if err := o.Sink.Commit(ctx, timing.DefaultKey, res.Timing); err != nil {
		slog.Error("committing timing array", "error", err)
	}
}

// LoadModules implements taskctx.Activator: a running task body may
// request additional modules be brought up as a nested run against the
// same database and context.
func (o *Orchestrator) LoadModules(names []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.Load(context.Background(), names); err != nil {
		slog.Error("loading modules requested by a running task", "modules", names, "error", err)
	}
}

// RemoveModules implements taskctx.Activator. A nil/empty names means
// "every loaded module known to the DB" (spec.md §4.6); it requires a
// broker.Handle to query module.list, obtained the same way a task body
// would via its own Context.
func (o *Orchestrator) RemoveModules(names []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx := context.Background()
	h, err := o.tc.Handle(ctx)
	if err != nil {
		slog.Error("removing modules requested by a running task", "modules", names, "error", err)
		return
	}
	if _, err := o.Remove(ctx, h, removal.Options{Modules: names}); err != nil {
		slog.Error("removing modules requested by a running task", "modules", names, "error", err)
	}
}

// SetAlternative implements taskctx.Activator.
func (o *Orchestrator) SetAlternative(service, alternative string) error {
	return o.DB.SetAlternative(service, alternative)
}

var _ taskctx.Activator = (*Orchestrator)(nil)
