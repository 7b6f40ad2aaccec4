// Package broker defines the RPC contract the core consumes from the
// broker this module orchestrates, and nothing more: the broker itself,
// its wire protocol, and its reconnection behavior are out of scope (see
// spec.md §1). Callers obtain a Handle, typically lazily and one per
// worker goroutine (see internal/executor), and never share one across
// concurrently-running goroutines.
package broker

import "context"

// ModuleInfo describes one entry returned by module.list.
type ModuleInfo struct {
	Name     string
	Services []string
}

// Handle is the set of broker RPCs the core issues directly. It is the Go
// analogue of the original's per-thread flux.Flux() handle.
type Handle interface {
	// Rank returns this process's broker rank.
	Rank() int

	// Load issues module.load for the named module with the given
	// arguments.
	Load(ctx context.Context, name string, args []string) error

	// Remove issues module.remove for the named module. Implementations
	// must report ErrModuleNotFound (via errors.Is) when the module was
	// already unloaded so callers can swallow it idempotently.
	Remove(ctx context.Context, name string) error

	// List issues module.list.
	List(ctx context.Context) ([]ModuleInfo, error)

	// ReloadConfig issues config.reload.
	ReloadConfig(ctx context.Context) error

	// AttrGet looks up a broker attribute. ok is false if unset.
	AttrGet(ctx context.Context, key string) (value string, ok bool)

	// ConfigGet looks up a config key. ok is false if unset or empty.
	ConfigGet(ctx context.Context, key string) (value string, ok bool)
}

// Dialer creates a new Handle. A worker calls Dialer lazily, once, the
// first time it needs to issue an RPC. The executor starts one worker
// goroutine, with its own worker id, per task, so a handle is dialed for
// each task that issues an RPC and is not reused by later tasks of the
// run.
type Dialer func() (Handle, error)
