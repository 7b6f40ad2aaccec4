package executor_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fluxrm/modprobe/internal/broker"
	"github.com/fluxrm/modprobe/internal/broker/brokertest"
	"github.com/fluxrm/modprobe/internal/executor"
	"github.com/fluxrm/modprobe/internal/graph"
	"github.com/fluxrm/modprobe/internal/task"
	"github.com/fluxrm/modprobe/internal/taskctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopActivator struct{}

func (noopActivator) LoadModules([]string)               {}
func (noopActivator) RemoveModules([]string)              {}
func (noopActivator) SetAlternative(string, string) error { return nil }

func newTC() *taskctx.Context {
	fake := brokertest.New()
	return taskctx.New(0, func() (broker.Handle, error) { return fake, nil }, noopActivator{})
}

func noop(ctx context.Context, tc *taskctx.Context) error { return nil }

func registry(tasks ...*task.Task) (map[string]*task.Task, func(string) (*task.Task, error)) {
	m := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		m[t.Name] = t
	}
	lookup := func(name string) (*task.Task, error) {
		t, ok := m[name]
		if !ok {
			return nil, task.ErrNotFound
		}
		return t, nil
	}
	return m, lookup
}

// TestRun_LinearChain covers S1: A, B, C run in order, each starting no
// earlier than its predecessor ended.
func TestRun_LinearChain(t *testing.T) {
	a := task.New("A", task.CodeBody{Func: noop})
	b := task.New("B", task.CodeBody{Func: noop})
	c := task.New("C", task.CodeBody{Func: noop})
	_, lookup := registry(a, b, c)

	deps := graph.DepMap{
		"A": {},
		"B": {"A": true},
		"C": {"B": true},
	}

	ex := &executor.Executor{MaxWorkers: 4}
	res, err := ex.Run(context.Background(), newTC(), deps, lookup)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	assert.True(t, a.StartTime.Before(b.StartTime) || a.StartTime.Equal(b.StartTime))
	assert.True(t, !b.StartTime.Before(a.EndTime))
	assert.True(t, !c.StartTime.Before(b.EndTime))
}

// TestRun_BestEffort covers S6 and property 7: C.after=[A,B], B fails; C still runs,
// exit code is 1, exactly one failure line prefixed "B:".
func TestRun_BestEffort(t *testing.T) {
	a := task.New("A", task.CodeBody{Func: noop})
	var cRan bool
	var mu sync.Mutex
	b := task.New("B", task.CodeBody{Func: func(ctx context.Context, tc *taskctx.Context) error {
		return errors.New("boom")
	}})
	c := task.New("C", task.CodeBody{Func: func(ctx context.Context, tc *taskctx.Context) error {
		mu.Lock()
		cRan = true
		mu.Unlock()
		return nil
	}})
	_, lookup := registry(a, b, c)

	deps := graph.DepMap{
		"A": {},
		"B": {},
		"C": {"A": true, "B": true},
	}

	ex := &executor.Executor{MaxWorkers: 4}
	res, err := ex.Run(context.Background(), newTC(), deps, lookup)
	require.NoError(t, err)

	assert.True(t, cRan, "C must still run even though B failed")
	assert.Equal(t, 1, res.ExitCode)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "B: boom", res.Failures[0])
}

// TestRun_Parallelism covers property 8: two independent tasks overlap.
// Each task waits until the other has started, so the run can only finish
// if both are running at the same time.
func TestRun_Parallelism(t *testing.T) {
	var startA, startB time.Time
	aStarted := make(chan struct{})
	bStarted := make(chan struct{})
	a := task.New("A", task.CodeBody{Func: func(ctx context.Context, tc *taskctx.Context) error {
		startA = time.Now()
		close(aStarted)
		<-bStarted
		return nil
	}})
	b := task.New("B", task.CodeBody{Func: func(ctx context.Context, tc *taskctx.Context) error {
		startB = time.Now()
		close(bStarted)
		<-aStarted
		return nil
	}})
	_, lookup := registry(a, b)

	deps := graph.DepMap{"A": {}, "B": {}}
	ex := &executor.Executor{MaxWorkers: 2}
	done := make(chan struct{})
	go func() {
		_, _ = ex.Run(context.Background(), newTC(), deps, lookup)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out: A and B did not run concurrently")
	}
	assert.False(t, startA.IsZero())
	assert.False(t, startB.IsZero())
}

func TestRun_CycleRejected(t *testing.T) {
	a := task.New("A", task.CodeBody{Func: noop})
	b := task.New("B", task.CodeBody{Func: noop})
	_, lookup := registry(a, b)

	deps := graph.DepMap{
		"A": {"B": true},
		"B": {"A": true},
	}
	ex := &executor.Executor{MaxWorkers: 2}
	_, err := ex.Run(context.Background(), newTC(), deps, lookup)
	assert.ErrorIs(t, err, graph.ErrCycle)
}

// TestRun_WideReadyBatch covers a ready frontier larger than MaxWorkers:
// every independent root must still complete instead of deadlocking on a
// full semaphore (see Run's slot-release-before-result-send ordering).
func TestRun_WideReadyBatch(t *testing.T) {
	const n = 20
	tasks := make([]*task.Task, n)
	deps := graph.DepMap{}
	for i := range tasks {
		tasks[i] = task.New(fmt.Sprintf("T%d", i), task.CodeBody{Func: noop})
		deps[tasks[i].Name] = map[string]bool{}
	}
	_, lookup := registry(tasks...)

	ex := &executor.Executor{MaxWorkers: 4}
	done := make(chan struct{})
	var res executor.Result
	var err error
	go func() {
		res, err = ex.Run(context.Background(), newTC(), deps, lookup)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out: a ready batch wider than MaxWorkers deadlocked")
	}
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRun_Timing(t *testing.T) {
	a := task.New("A", task.CodeBody{Func: noop})
	b := task.New("B", task.CodeBody{Func: noop})
	_, lookup := registry(a, b)

	deps := graph.DepMap{"A": {}, "B": {"A": true}}
	ex := &executor.Executor{MaxWorkers: 2, Timing: true}
	res, err := ex.Run(context.Background(), newTC(), deps, lookup)
	require.NoError(t, err)
	require.Len(t, res.Timing, 2)
	assert.Equal(t, "A", res.Timing[0].Name)
	assert.Equal(t, "B", res.Timing[1].Name)
}
