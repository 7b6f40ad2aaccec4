package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fluxrm/modprobe/internal/broker"
	"github.com/fluxrm/modprobe/internal/taskctx"
)

// CodeFunc is a user task body, registered via the "@task" equivalent
// registration callback (spec.md §6, "User script files").
type CodeFunc func(ctx context.Context, tc *taskctx.Context) error

// CodeBody wraps a CodeFunc as a Body.
type CodeBody struct {
	Func CodeFunc
}

func (b CodeBody) Kind() Kind { return KindCode }

func (b CodeBody) Run(ctx context.Context, tc *taskctx.Context) error {
	return b.Func(ctx, tc)
}

// ModuleBody is a Body that loads or removes a broker module via RPC.
// Load and Remove are mutually exclusive; Task.Body holds exactly one at
// a time, switched by SetRemove (spec.md §4.6 step 7).
type ModuleBody struct {
	Name   string
	Args   []string
	remove bool

	// provides is the owning Task's Provides list, threaded in by New so
	// Run can gather setopt args accumulated against either name (spec.md
	// §3, §6).
	provides []string
}

// NewLoadBody constructs a module-load Body.
func NewLoadBody(name string, args []string) *ModuleBody {
	return &ModuleBody{Name: name, Args: args}
}

// SetRemove flips the body from load to remove semantics in place, used
// by the removal planner (spec.md §4.6 step 7): "swap before/after sets,
// clear needs/requires" is handled by the caller; this just switches the
// body's own RPC.
func (b *ModuleBody) SetRemove() { b.remove = true }

func (b *ModuleBody) IsRemove() bool { return b.remove }

func (b *ModuleBody) Kind() Kind {
	if b.remove {
		return KindRemove
	}
	return KindLoad
}

func envArgsAppendKey(name string) string {
	upper := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return "FLUX_MODPROBE_MODULE_" + upper + "_ARGS_APPEND"
}

func (b *ModuleBody) Run(ctx context.Context, tc *taskctx.Context) error {
	h, err := tc.Handle(ctx)
	if err != nil {
		return err
	}
	if b.remove {
		if err := h.Remove(ctx, b.Name); err != nil {
			if errors.Is(err, broker.ErrModuleNotFound) {
				// Idempotent teardown: already unloaded (spec.md §7).
				return nil
			}
			return fmt.Errorf("module.remove %s: %w", b.Name, err)
		}
		return nil
	}

	args := append([]string(nil), b.Args...)
	args = append(args, tc.GetOpts(b.Name, b.provides)...)
	if v := os.Getenv(envArgsAppendKey(b.Name)); v != "" {
		args = append(args, strings.Split(v, ",")...)
	}
	if err := h.Load(ctx, b.Name, args); err != nil {
		return fmt.Errorf("module.load %s: %w", b.Name, err)
	}
	return nil
}
