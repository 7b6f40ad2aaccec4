package graph

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// DOT renders deps as a Graphviz DOT digraph, edges drawn predecessor ->
// successor, for diagnostics (SPEC_FULL.md §4 domain stack). This is the
// same library pug uses to render its own dependency graphs, repurposed
// here for task/module predecessor graphs rather than workspace/run
// graphs.
func DOT(name string, deps DepMap) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(name); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	for n := range deps {
		if err := g.AddNode(name, quote(n), nil); err != nil {
			return "", fmt.Errorf("adding node %s: %w", n, err)
		}
	}
	for succ, preds := range deps {
		for pred := range preds {
			if err := g.AddEdge(quote(pred), quote(succ), true, nil); err != nil {
				return "", fmt.Errorf("adding edge %s -> %s: %w", pred, succ, err)
			}
		}
	}
	return g.String(), nil
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
