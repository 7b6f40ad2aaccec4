package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is returned when deps contains a dependency cycle. The
// builder's construction only guarantees acyclicity for acyclic user
// input (spec.md §9); Detect must be called before any task body runs
// (spec.md §7, §9).
var ErrCycle = errors.New("dependency cycle")

// Detect reports ErrCycle, naming one offending cycle, if deps is not a
// DAG. The executor's prepare step calls this before submitting any
// task.
func Detect(deps DepMap) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(deps))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			path = append(path, name)
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))
		}
		color[name] = gray
		path = append(path, name)
		for pred := range deps[name] {
			if err := visit(pred); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return nil
	}

	for name := range deps {
		if color[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}
