package graph_test

import (
	"testing"

	"github.com/fluxrm/modprobe/internal/graph"
	"github.com/fluxrm/modprobe/internal/task"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func depSets(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// TestBuild_LinearChain covers S1: B.after=[A], C.after=[B].
func TestBuild_LinearChain(t *testing.T) {
	db := task.NewDB()
	db.Add(task.New("A", task.CodeBody{}))
	db.Add(task.New("B", task.CodeBody{}, task.WithAfter("A")))
	db.Add(task.New("C", task.CodeBody{}, task.WithAfter("B")))

	deps, err := graph.Build(db, depSets("A", "B", "C"))
	require.NoError(t, err)

	assert.Empty(t, deps["A"])
	assert.True(t, deps["B"]["A"])
	assert.True(t, deps["C"]["B"])
	assert.False(t, deps["C"]["A"])
}

// TestBuild_WildcardBracket covers S2: init.before=["*"], finalize.after=["*"].
func TestBuild_WildcardBracket(t *testing.T) {
	db := task.NewDB()
	db.Add(task.New("init", task.CodeBody{}, task.WithBefore("*")))
	db.Add(task.New("a", task.CodeBody{}))
	db.Add(task.New("b", task.CodeBody{}))
	db.Add(task.New("finalize", task.CodeBody{}, task.WithAfter("*")))

	deps, err := graph.Build(db, depSets("init", "a", "b", "finalize"))
	require.NoError(t, err)

	assert.True(t, deps["a"]["init"])
	assert.True(t, deps["b"]["init"])
	assert.True(t, deps["finalize"]["init"])
	assert.True(t, deps["finalize"]["a"])
	assert.True(t, deps["finalize"]["b"])
	assert.Empty(t, deps["init"])
}

// TestBuild_BeforeAfterDuality covers property 6: a.before=[b] yields the
// same predecessor map as b.after=[a].
func TestBuild_BeforeAfterDuality(t *testing.T) {
	db1 := task.NewDB()
	db1.Add(task.New("a", task.CodeBody{}, task.WithBefore("b")))
	db1.Add(task.New("b", task.CodeBody{}))
	deps1, err := graph.Build(db1, depSets("a", "b"))
	require.NoError(t, err)

	db2 := task.NewDB()
	db2.Add(task.New("a", task.CodeBody{}))
	db2.Add(task.New("b", task.CodeBody{}, task.WithAfter("a")))
	deps2, err := graph.Build(db2, depSets("a", "b"))
	require.NoError(t, err)

	if diff := cmp.Diff(deps1, deps2); diff != "" {
		t.Errorf("before/after duality mismatch (-before +after):\n%s", diff)
	}
}

// TestBuild_NeedsPruning covers S4: T.needs=["idx"], nothing provides idx.
func TestBuild_NeedsPruning(t *testing.T) {
	db := task.NewDB()
	db.Add(task.New("T", task.CodeBody{}, task.WithNeeds("idx")))

	deps, err := graph.Build(db, depSets("T"))
	require.NoError(t, err)
	assert.NotContains(t, deps, "T")
}

func TestBuild_NeedsSatisfied(t *testing.T) {
	db := task.NewDB()
	db.Add(task.New("T", task.CodeBody{}, task.WithNeeds("idx")))
	db.Add(task.New("kvs", task.CodeBody{}, task.WithProvides("idx")))

	deps, err := graph.Build(db, depSets("T", "kvs"))
	require.NoError(t, err)
	assert.Contains(t, deps, "T")
	assert.Contains(t, deps, "kvs")
}

func TestDetect_Cycle(t *testing.T) {
	deps := graph.DepMap{
		"a": {"b": true},
		"b": {"a": true},
	}
	err := graph.Detect(deps)
	assert.ErrorIs(t, err, graph.ErrCycle)
}

func TestDetect_NoCycle(t *testing.T) {
	deps := graph.DepMap{
		"a": {},
		"b": {"a": true},
		"c": {"b": true},
	}
	assert.NoError(t, graph.Detect(deps))
}

func TestDOT_RendersNodesAndEdges(t *testing.T) {
	deps := graph.DepMap{
		"a": {},
		"b": {"a": true},
	}
	out, err := graph.DOT("g", deps)
	require.NoError(t, err)
	assert.Contains(t, out, `"a"`)
	assert.Contains(t, out, `"b"`)
}
