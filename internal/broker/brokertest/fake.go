// Package brokertest provides an in-memory broker.Handle double for use
// in tests of packages that issue broker RPCs (internal/task,
// internal/executor, internal/removal).
package brokertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/fluxrm/modprobe/internal/broker"
)

// Fake is a concurrency-safe fake broker.Handle.
type Fake struct {
	RankValue int

	mu      sync.Mutex
	loaded  map[string][]string // name -> args
	attrs   map[string]string
	config  map[string]string
	loadErr error
}

// New returns a Fake with no modules loaded; use SetLoaded to seed some.
func New() *Fake {
	return &Fake{
		loaded: make(map[string][]string),
		attrs:  make(map[string]string),
		config: make(map[string]string),
	}
}

func (f *Fake) SetAttr(key, value string)   { f.mu.Lock(); defer f.mu.Unlock(); f.attrs[key] = value }
func (f *Fake) SetConfig(key, value string) { f.mu.Lock(); defer f.mu.Unlock(); f.config[key] = value }

// SetLoaded seeds the set of modules reported by List, as if they were
// already loaded before this run started.
func (f *Fake) SetLoaded(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		if _, ok := f.loaded[n]; !ok {
			f.loaded[n] = nil
		}
	}
}

// FailLoad makes every subsequent Load call return err.
func (f *Fake) FailLoad(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErr = err
}

func (f *Fake) Rank() int { return f.RankValue }

func (f *Fake) Load(_ context.Context, name string, args []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded[name] = append([]string(nil), args...)
	return nil
}

func (f *Fake) Remove(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.loaded[name]; !ok {
		return fmt.Errorf("%s: %w", name, broker.ErrModuleNotFound)
	}
	delete(f.loaded, name)
	return nil
}

func (f *Fake) List(context.Context) ([]broker.ModuleInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]broker.ModuleInfo, 0, len(f.loaded))
	for name := range f.loaded {
		out = append(out, broker.ModuleInfo{Name: name})
	}
	return out, nil
}

func (f *Fake) ReloadConfig(context.Context) error { return nil }

func (f *Fake) AttrGet(_ context.Context, key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.attrs[key]
	return v, ok && v != ""
}

func (f *Fake) ConfigGet(_ context.Context, key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.config[key]
	return v, ok && v != ""
}

// IsLoaded reports whether name is currently loaded, for test assertions.
func (f *Fake) IsLoaded(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.loaded[name]
	return ok
}

// Args returns the args a loaded module was last loaded with.
func (f *Fake) Args(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded[name]
}

var _ broker.Handle = (*Fake)(nil)
