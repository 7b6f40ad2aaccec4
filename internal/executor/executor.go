// Package executor implements the batched topological executor of
// spec.md §4.5: a bounded worker pool drains the dependency frontier,
// running independent tasks in parallel, aggregating failures without
// aborting the run (best-effort execution), and recording per-task
// timing.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fluxrm/modprobe/internal/broker"
	"github.com/fluxrm/modprobe/internal/graph"
	"github.com/fluxrm/modprobe/internal/task"
	"github.com/fluxrm/modprobe/internal/taskctx"
	"github.com/fluxrm/modprobe/internal/timing"
)

// Result is the outcome of a Run: the aggregate exit code (0 iff every
// executed task succeeded, spec.md §7), one formatted line per failure,
// and the timing array if timing was requested.
type Result struct {
	ExitCode int
	Failures []string
	Timing   []timing.Record
}

// Executor runs a predecessor graph with a bounded worker pool.
type Executor struct {
	// MaxWorkers bounds the number of tasks running concurrently. Small
	// values (4-8) are sufficient since the work is RPC-bound, not
	// CPU-bound (spec.md §5).
	MaxWorkers int

	// Dialer is not called by Run: workers obtain their broker.Handle
	// lazily through the taskctx.Context passed to Run.
	Dialer broker.Dialer

	// Timing enables collection of the per-task timing array
	// (FLUX_MODPROBE_TIMING, spec.md §6).
	Timing bool
}

// Run drives deps to completion, invoking RunTask on the Task resolved
// by lookup for each ready name. It returns once every task in deps has
// either succeeded or failed; a failed task's successors still run once
// their other predecessors are done (best-effort execution, spec.md
// §4.5, property 7).
func (e *Executor) Run(ctx context.Context, tc *taskctx.Context, deps graph.DepMap, lookup func(name string) (*task.Task, error)) (Result, error) {
	if err := graph.Detect(deps); err != nil {
		return Result{}, err
	}
	maxWorkers := e.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	t0 := time.Now()
	it := newIterator(deps)

	type outcome struct {
		name string
		err  error
		t    *task.Task
	}

	sem := make(chan struct{}, maxWorkers)
	results := make(chan outcome)
	started := make(map[string]bool)
	var startedTasks []*task.Task
	var wg sync.WaitGroup
	workerSeq := 0
	var workerSeqMu sync.Mutex

	var res Result

	for it.active() {
		ready := it.ready()
		for _, name := range ready {
			if started[name] {
				continue
			}
			started[name] = true
			t, err := lookup(name)
			if err != nil {
				return Result{}, fmt.Errorf("looking up ready task %s: %w", name, err)
			}
			startedTasks = append(startedTasks, t)

			sem <- struct{}{}
			wg.Add(1)
			go func(t *task.Task) {
				defer wg.Done()

				workerSeqMu.Lock()
				id := workerSeq
				workerSeq++
				workerSeqMu.Unlock()

				workerCtx := taskctx.WithWorkerID(ctx, id)
				err := t.RunTask(workerCtx, tc)
				// Free the slot before the (possibly blocking) result send,
				// so the submit loop can start the next task in a wide
				// ready batch even while this result hasn't been read yet.
				<-sem
				results <- outcome{name: t.Name, err: err, t: t}
			}(t)
		}

		o := <-results
		if o.err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("%s: %s", o.name, o.err))
			res.ExitCode = 1
		}
		it.done(o.name)
	}

	wg.Wait()
	close(results)
	// No results remain to drain: done() is only called after a started
	// task reports back, one-for-one, so an exhausted iterator means every
	// result has been consumed.

	if e.Timing {
		sort.Slice(startedTasks, func(i, j int) bool {
			return startedTasks[i].StartTime.Before(startedTasks[j].StartTime)
		})
		for _, t := range startedTasks {
			res.Timing = append(res.Timing, timing.Record{
				Name:      t.Name,
				StartTime: t.StartTime.Sub(t0).Seconds(),
				Duration:  t.EndTime.Sub(t.StartTime).Seconds(),
			})
		}
	}

	return res, nil
}

// FailureLines renders Result.Failures as the one-line-per-failure
// stderr output of spec.md §7.
func FailureLines(r Result) string {
	return strings.Join(r.Failures, "\n")
}
