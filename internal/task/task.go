// Package task implements the task database of spec.md §4.1: named
// entries, provided-service aliases, and runtime alternative selection,
// plus the enable predicates of §4.2.
package task

import (
	"context"
	"time"

	"github.com/fluxrm/modprobe/internal/rank"
	"github.com/fluxrm/modprobe/internal/taskctx"
)

// Body is the dynamic-dispatch variant for the three kinds of task body
// (spec.md §9): user code, module load, module remove. Task carries the
// same metadata fields regardless of which Body it holds.
type Body interface {
	// Run executes the body. ctx is the standard-library context used for
	// cancellation plumbing and to identify the calling worker (see
	// taskctx.WithWorkerID); tc is the shared run state.
	Run(ctx context.Context, tc *taskctx.Context) error

	// Kind reports the body's tag (code, load or remove), for debugging.
	Kind() Kind
}

// Kind tags the three Body implementations.
type Kind int

const (
	KindCode Kind = iota
	KindLoad
	KindRemove
)

func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindLoad:
		return "load"
	case KindRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Wildcard is the "*" sentinel usable in After/Before, meaning "every
// other task in the final set" (spec.md §3). It is implemented as a bit
// flag (AfterAll/BeforeAll), not as a pseudo-task, per spec.md §9.
const Wildcard = "*"

// Task is a uniquely named unit of work with ordering and enablement
// metadata (spec.md §3).
type Task struct {
	Name     string
	Provides []string
	Requires []string
	Needs    []string

	After  []string
	Before []string

	// AfterAll and BeforeAll are set when After/Before contain the "*"
	// sentinel, respectively. Computed once in New via extractWildcard.
	AfterAll  bool
	BeforeAll bool

	Ranks          rank.Predicate
	RequiresAttrs  []string
	RequiresConfig []string

	Disabled bool

	Body Body

	StartTime time.Time
	EndTime   time.Time
}

// New constructs a Task, parsing the "*" sentinel out of After/Before and
// defaulting Ranks to rank.All{} if unset.
func New(name string, body Body, opts ...Option) *Task {
	t := &Task{
		Name:  name,
		Body:  body,
		Ranks: rank.All{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.AfterAll, t.After = extractWildcard(t.After)
	t.BeforeAll, t.Before = extractWildcard(t.Before)
	if m, ok := t.Body.(*ModuleBody); ok {
		m.provides = t.Provides
	}
	return t
}

// PrepareForRemoval adapts a module Task for the teardown phase (spec.md
// §4.6 step 7): swaps After/Before (teardown order is the reverse of
// bringup), clears Needs/Requires (irrelevant during teardown), and
// flips the body from load to remove semantics.
func (t *Task) PrepareForRemoval() {
	t.After, t.Before = t.Before, t.After
	t.AfterAll, t.BeforeAll = t.BeforeAll, t.AfterAll
	t.Needs = nil
	t.Requires = nil
	if m, ok := t.Body.(*ModuleBody); ok {
		m.SetRemove()
	}
}

func extractWildcard(names []string) (found bool, rest []string) {
	rest = names[:0:0]
	for _, n := range names {
		if n == Wildcard {
			found = true
			continue
		}
		rest = append(rest, n)
	}
	return found, rest
}

// Option configures a Task built via New.
type Option func(*Task)

func WithProvides(names ...string) Option { return func(t *Task) { t.Provides = names } }
func WithRequires(names ...string) Option { return func(t *Task) { t.Requires = names } }
func WithNeeds(names ...string) Option    { return func(t *Task) { t.Needs = names } }
func WithAfter(names ...string) Option    { return func(t *Task) { t.After = names } }
func WithBefore(names ...string) Option   { return func(t *Task) { t.Before = names } }
func WithRanks(p rank.Predicate) Option   { return func(t *Task) { t.Ranks = p } }
func WithRequiresAttrs(names ...string) Option {
	return func(t *Task) { t.RequiresAttrs = names }
}
func WithRequiresConfig(names ...string) Option {
	return func(t *Task) { t.RequiresConfig = names }
}
func WithDisabled(disabled bool) Option { return func(t *Task) { t.Disabled = disabled } }

// Enabled implements the predicates of spec.md §4.2: disabled override,
// rank predicate, then required broker config/attribute keys, each
// queried lazily, once, against the broker handle reachable through tc.
func (t *Task) Enabled(ctx context.Context, tc *taskctx.Context) (bool, error) {
	if t.Disabled {
		return false, nil
	}
	if !t.Ranks.Test(tc.Rank()) {
		return false, nil
	}
	for _, key := range t.RequiresConfig {
		v, err := tc.ConfigGet(ctx, key, "")
		if err != nil {
			return false, err
		}
		if v == "" {
			return false, nil
		}
	}
	for _, key := range t.RequiresAttrs {
		v, err := tc.AttrGet(ctx, key, "")
		if err != nil {
			return false, err
		}
		if v == "" {
			return false, nil
		}
	}
	return true, nil
}

// RunTask invokes the body, recording StartTime/EndTime around it
// (spec.md §4.5) in a guaranteed-release defer so timing is recorded on
// every exit path, including a panic-free error return.
func (t *Task) RunTask(ctx context.Context, tc *taskctx.Context) (err error) {
	t.StartTime = time.Now()
	defer func() { t.EndTime = time.Now() }()
	return t.Body.Run(ctx, tc)
}
