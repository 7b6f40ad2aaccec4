package removal_test

import (
	"context"
	"testing"

	"github.com/fluxrm/modprobe/internal/broker/brokertest"
	"github.com/fluxrm/modprobe/internal/removal"
	"github.com/fluxrm/modprobe/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoadedDB(t *testing.T, fake *brokertest.Fake) *task.DB {
	t.Helper()
	db := task.NewDB()
	db.Add(task.New("content-backing", task.NewLoadBody("content-backing", nil)))
	db.Add(task.New("content", task.NewLoadBody("content", nil), task.WithRequires("content-backing"), task.WithAfter("content-backing")))
	db.Add(task.New("kvs", task.NewLoadBody("kvs", nil), task.WithRequires("content"), task.WithAfter("content")))
	fake.SetLoaded("content-backing", "content", "kvs")
	return db
}

// TestPlan_InUse covers S5: removing content-backing alone is rejected
// because kvs and content are still live and depend on it.
func TestPlan_InUse(t *testing.T) {
	fake := brokertest.New()
	db := newLoadedDB(t, fake)

	p := &removal.Planner{DB: db, Handle: fake}
	_, err := p.Plan(context.Background(), removal.Options{Modules: []string{"content-backing"}})
	assert.ErrorIs(t, err, removal.ErrInUse)
}

// TestPlan_RemovesOnlyRequestedLeaf covers S5: removing kvs alone
// succeeds and only touches kvs.
func TestPlan_RemovesOnlyRequestedLeaf(t *testing.T) {
	fake := brokertest.New()
	db := newLoadedDB(t, fake)

	p := &removal.Planner{DB: db, Handle: fake}
	plan, err := p.Plan(context.Background(), removal.Options{Modules: []string{"kvs"}})
	require.NoError(t, err)
	assert.Contains(t, plan.Deps, "kvs")
	assert.NotContains(t, plan.Deps, "content")
	assert.NotContains(t, plan.Deps, "content-backing")
}

// TestNewModuleList_ResolvesServiceAliases checks that both the module
// name and its declared services resolve to the same canonical task.
func TestNewModuleList_ResolvesServiceAliases(t *testing.T) {
	fake := brokertest.New()
	db := newLoadedDB(t, fake)

	ml, err := removal.NewModuleList(context.Background(), fake, db)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"content-backing", "content", "kvs"}, ml.Loaded())
	name, ok := ml.Lookup("kvs")
	assert.True(t, ok)
	assert.Equal(t, "kvs", name)
}

// TestPlan_RemoveAll_TeardownIsReverseOfBringup checks that removing
// everything orders kvs before content before content-backing.
func TestPlan_RemoveAll_TeardownIsReverseOfBringup(t *testing.T) {
	fake := brokertest.New()
	db := newLoadedDB(t, fake)

	p := &removal.Planner{DB: db, Handle: fake}
	plan, err := p.Plan(context.Background(), removal.Options{})
	require.NoError(t, err)

	// Bringup: content-backing -> content -> kvs.
	// Teardown: kvs -> content -> content-backing.
	assert.True(t, plan.Deps["content"]["kvs"])
	assert.True(t, plan.Deps["content-backing"]["content"])
	assert.False(t, plan.Deps["kvs"]["content"])
}
