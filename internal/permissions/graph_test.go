package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClosureIncludesAncestorsOnly(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: 1, Name: "technician"})
	store.addRole(Role{ID: 2, Name: "admin", ParentIDs: []int64{1}})
	store.addRole(Role{ID: 3, Name: "executive", ParentIDs: []int64{2}})
	store.addRole(Role{ID: 4, Name: "billing_clerk"})

	graph, err := NewGraphResolver(context.Background(), store, testLogger())
	require.NoError(t, err)

	closure, err := graph.Closure(context.Background(), []int64{2})
	require.NoError(t, err)
	// Admin reaches itself and technician, never executive or the unrelated
	// billing clerk.
	require.Equal(t, []int64{1, 2}, closure)
}

func TestClosureUnionAcrossMultipleRoles(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: 1, Name: "technician"})
	store.addRole(Role{ID: 2, Name: "admin", ParentIDs: []int64{1}})
	store.addRole(Role{ID: 4, Name: "billing_clerk"})

	graph, err := NewGraphResolver(context.Background(), store, testLogger())
	require.NoError(t, err)

	closure, err := graph.Closure(context.Background(), []int64{2, 4})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 4}, closure)
}

func TestDiamondInheritanceDeduplicates(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: 1, Name: "base"})
	store.addRole(Role{ID: 2, Name: "left", ParentIDs: []int64{1}})
	store.addRole(Role{ID: 3, Name: "right", ParentIDs: []int64{1}})
	store.addRole(Role{ID: 4, Name: "top", ParentIDs: []int64{2, 3}})

	graph, err := NewGraphResolver(context.Background(), store, testLogger())
	require.NoError(t, err)

	closure, err := graph.Closure(context.Background(), []int64{4})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4}, closure)
}

func TestCycleIsRejectedAtLoad(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: 1, Name: "a", ParentIDs: []int64{2}})
	store.addRole(Role{ID: 2, Name: "b", ParentIDs: []int64{1}})

	_, err := NewGraphResolver(context.Background(), store, testLogger())
	require.ErrorIs(t, err, ErrRoleCycle)
}

func TestSelfCycleIsRejected(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: 1, Name: "a", ParentIDs: []int64{1}})

	_, err := NewGraphResolver(context.Background(), store, testLogger())
	require.ErrorIs(t, err, ErrRoleCycle)
}

func TestUnknownParentIsRejected(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: 1, Name: "a", ParentIDs: []int64{42}})

	_, err := NewGraphResolver(context.Background(), store, testLogger())
	require.Error(t, err)
}

func TestGraphReloadsOnVersionChange(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: 1, Name: "technician"})

	graph, err := NewGraphResolver(context.Background(), store, testLogger())
	require.NoError(t, err)

	closure, err := graph.Closure(context.Background(), []int64{2})
	require.NoError(t, err)
	require.Empty(t, closure)

	// Adding a role bumps the version; the next closure sees it.
	store.addRole(Role{ID: 2, Name: "admin", ParentIDs: []int64{1}})

	closure, err = graph.Closure(context.Background(), []int64{2})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, closure)
}

func TestGraphKeepsLastGoodSnapshotOnStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: 1, Name: "technician"})
	store.addRole(Role{ID: 2, Name: "admin", ParentIDs: []int64{1}})

	graph, err := NewGraphResolver(context.Background(), store, testLogger())
	require.NoError(t, err)

	store.failWith(errStoreDown)

	closure, err := graph.Closure(context.Background(), []int64{2})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, closure)
}
