// Package taskctx implements the per-run Context passed to every task
// body: shared mutable state, per-module argument accumulation, and
// lazy per-worker broker handles (spec.md §3, §4.6, §5).
package taskctx

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/fluxrm/modprobe/internal/broker"
)

// Activator lets a running task body register additional tasks into the
// active set before the predecessor graph is finalized (spec.md §2), or
// force an alternative for a service. It is satisfied by
// internal/orchestrator.Orchestrator; Context depends only on this
// narrow interface to avoid an import cycle.
type Activator interface {
	LoadModules(names []string)
	RemoveModules(names []string)
	SetAlternative(service, alternative string) error
}

type workerIDKey struct{}

// WithWorkerID tags a context.Context with the id of the executor worker
// goroutine running it, so Context.Handle can give that worker a stable,
// lazily-created broker.Handle of its own (the Go analogue of the
// original's threading.local()-scoped handle; see SPEC_FULL.md §7).
func WithWorkerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, workerIDKey{}, id)
}

// Context is the per-run shared state threaded through every task body.
type Context struct {
	rank      int
	dialer    broker.Dialer
	activator Activator

	handles sync.Map // worker id (int) -> broker.Handle; -1 key for callers with no worker id

	// data and moduleArgs are deliberately unsynchronized: by convention
	// they are written during single-threaded setup hooks and then
	// treated as read-mostly once the executor starts. Tasks that need to
	// mutate them concurrently must order themselves with `after`
	// (spec.md §5).
	data       map[string]any
	moduleArgs map[string][]string
}

// New constructs a Context for the given local rank. dialer is called at
// most once per worker, lazily, to create that worker's broker.Handle.
func New(rank int, dialer broker.Dialer, activator Activator) *Context {
	return &Context{
		rank:       rank,
		dialer:     dialer,
		activator:  activator,
		data:       make(map[string]any),
		moduleArgs: make(map[string][]string),
	}
}

// Rank returns the local broker rank this run is executing on.
func (c *Context) Rank() int { return c.rank }

// Handle returns the broker.Handle owned by the calling worker,
// dialing a fresh one on first use. Callers outside a tagged worker
// goroutine (e.g. single-threaded setup hooks) get a handle cached under
// a shared key.
func (c *Context) Handle(ctx context.Context) (broker.Handle, error) {
	id := -1
	if v, ok := ctx.Value(workerIDKey{}).(int); ok {
		id = v
	}
	if h, ok := c.handles.Load(id); ok {
		return h.(broker.Handle), nil
	}
	h, err := c.dialer()
	if err != nil {
		return nil, fmt.Errorf("dialing broker handle: %w", err)
	}
	actual, _ := c.handles.LoadOrStore(id, h)
	return actual.(broker.Handle), nil
}

// Set stores arbitrary user data at key for later retrieval by Get.
func (c *Context) Set(key string, value any) { c.data[key] = value }

// Get retrieves user data set by Set, returning def if key is absent.
func (c *Context) Get(key string, def any) any {
	if v, ok := c.data[key]; ok {
		return v
	}
	return def
}

// AttrGet looks up a broker attribute with an optional default.
func (c *Context) AttrGet(ctx context.Context, key, def string) (string, error) {
	h, err := c.Handle(ctx)
	if err != nil {
		return def, err
	}
	if v, ok := h.AttrGet(ctx, key); ok {
		return v, nil
	}
	return def, nil
}

// ConfigGet looks up a config key with an optional default.
func (c *Context) ConfigGet(ctx context.Context, key, def string) (string, error) {
	h, err := c.Handle(ctx)
	if err != nil {
		return def, err
	}
	if v, ok := h.ConfigGet(ctx, key); ok {
		return v, nil
	}
	return def, nil
}

// SetOpt appends option to the argument list accumulated for module.
func (c *Context) SetOpt(module, option string) {
	c.moduleArgs[module] = append(c.moduleArgs[module], option)
}

// GetOpts returns the accumulated options for name, plus those for any
// service names in also (used to gather options set against a service
// alias as well as the concrete module name).
func (c *Context) GetOpts(name string, also []string) []string {
	names := append([]string{name}, also...)
	var result []string
	for _, n := range names {
		result = append(result, c.moduleArgs[n]...)
	}
	return result
}

// Bash runs command under "bash -c" and waits for it to exit. This is a
// convenience exposed to task bodies; it is not the broker's own process
// execution surface, which remains out of scope (spec.md §1).
func (c *Context) Bash(ctx context.Context, command string) error {
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	return cmd.Run()
}

// LoadModules enqueues modules to be loaded, via the back-reference to
// the orchestrator driving this run.
func (c *Context) LoadModules(names []string) { c.activator.LoadModules(names) }

// RemoveModules enqueues modules to be removed. A nil slice means "every
// loaded module known to the DB" (spec.md §4.6).
func (c *Context) RemoveModules(names []string) { c.activator.RemoveModules(names) }

// SetAlternative forces the alternative selected for service.
func (c *Context) SetAlternative(service, alternative string) error {
	return c.activator.SetAlternative(service, alternative)
}

// Dump returns a human-readable dump of the Context's mutable state, for
// use behind a debug log level when troubleshooting task ordering issues.
func (c *Context) Dump() string {
	return spew.Sdump(c.data, c.moduleArgs)
}
