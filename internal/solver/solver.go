// Package solver implements the reachability + enable-filter of
// spec.md §4.3: given a seed set of task/service names, walk the
// requires edges and return the reachable, currently-enabled subset.
package solver

import (
	"context"
	"fmt"

	"github.com/fluxrm/modprobe/internal/task"
	"github.com/fluxrm/modprobe/internal/taskctx"
)

// Solve recursively pulls in the transitive closure of seed under
// Requires edges, resolving every name against db. A resolved task
// contributes its canonical Name to the result only if Enabled; its own
// Requires are still walked regardless (a disabled task's requirements
// may still satisfy another task's Needs through their Provides).
func Solve(ctx context.Context, db *task.DB, tc *taskctx.Context, seed []string) (map[string]bool, error) {
	visited := make(map[string]bool)
	result := make(map[string]bool)

	var walk func(names []string) error
	walk = func(names []string) error {
		var toVisit []string
		for _, n := range names {
			if !visited[n] {
				toVisit = append(toVisit, n)
			}
		}
		for _, n := range toVisit {
			t, err := db.Get(n)
			if err != nil {
				return fmt.Errorf("solving %s: %w", n, err)
			}
			if visited[t.Name] {
				continue
			}
			visited[t.Name] = true

			enabled, err := t.Enabled(ctx, tc)
			if err != nil {
				return fmt.Errorf("evaluating %s: %w", t.Name, err)
			}
			if enabled {
				result[t.Name] = true
			}
			if len(t.Requires) > 0 {
				if err := walk(t.Requires); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(seed); err != nil {
		return nil, err
	}
	return result, nil
}
