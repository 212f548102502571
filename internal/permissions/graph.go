package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// GraphStore is the slice of the Store needed to load the role graph.
type GraphStore interface {
	RoleGraph(ctx context.Context) ([]Role, error)
	GraphVersion(ctx context.Context) (string, error)
}

type graphSnapshot struct {
	version  string
	byID     map[int64]Role
	byName   map[string]Role
	closures map[int64][]int64
}

// GraphResolver computes the transitive closure of role inheritance. The
// closure is memoized per graph version and rebuilt when roles or parent
// edges change. Cycles in the parent graph are a configuration error: they
// are rejected when the graph is first loaded.
type GraphResolver struct {
	store  GraphStore
	logger *slog.Logger

	mu   sync.RWMutex
	snap *graphSnapshot
}

// NewGraphResolver loads the role graph eagerly so a cyclic configuration is
// fatal at startup instead of surfacing as runtime denials.
func NewGraphResolver(ctx context.Context, store GraphStore, logger *slog.Logger) (*GraphResolver, error) {
	g := &GraphResolver{store: store, logger: logger}
	snap, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	g.snap = snap
	return g, nil
}

func (g *GraphResolver) load(ctx context.Context) (*graphSnapshot, error) {
	version, err := g.store.GraphVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("permissions: graph version: %w", err)
	}
	roles, err := g.store.RoleGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("permissions: load role graph: %w", err)
	}
	closures, err := buildClosures(roles)
	if err != nil {
		return nil, err
	}
	snap := &graphSnapshot{
		version:  version,
		byID:     make(map[int64]Role, len(roles)),
		byName:   make(map[string]Role, len(roles)),
		closures: closures,
	}
	for _, role := range roles {
		snap.byID[role.ID] = role
		snap.byName[role.Name] = role
	}
	return snap, nil
}

// snapshot returns the current graph, reloading when the persisted version
// moved. A failed reload keeps serving the last good snapshot so transient
// store trouble never flips resolved inheritance mid-flight.
func (g *GraphResolver) snapshot(ctx context.Context) (*graphSnapshot, error) {
	version, err := g.store.GraphVersion(ctx)
	if err != nil {
		g.mu.RLock()
		snap := g.snap
		g.mu.RUnlock()
		if snap == nil {
			return nil, fmt.Errorf("permissions: graph version: %w", err)
		}
		return snap, nil
	}

	g.mu.RLock()
	snap := g.snap
	g.mu.RUnlock()
	if snap != nil && snap.version == version {
		return snap, nil
	}

	fresh, err := g.load(ctx)
	if err != nil {
		if snap != nil {
			if g.logger != nil {
				g.logger.Error("role graph reload failed, keeping previous graph", slog.Any("error", err))
			}
			return snap, nil
		}
		return nil, err
	}
	g.mu.Lock()
	g.snap = fresh
	g.mu.Unlock()
	return fresh, nil
}

// Closure returns the deduplicated union of the given roles and all their
// ancestors, sorted by role ID.
func (g *GraphResolver) Closure(ctx context.Context, roleIDs []int64) ([]int64, error) {
	snap, err := g.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	for _, id := range roleIDs {
		for _, member := range snap.closures[id] {
			seen[member] = struct{}{}
		}
	}
	closure := make([]int64, 0, len(seen))
	for id := range seen {
		closure = append(closure, id)
	}
	sort.Slice(closure, func(i, j int) bool { return closure[i] < closure[j] })
	return closure, nil
}

// RoleByID looks a role up in the current snapshot.
func (g *GraphResolver) RoleByID(ctx context.Context, id int64) (Role, bool, error) {
	snap, err := g.snapshot(ctx)
	if err != nil {
		return Role{}, false, err
	}
	role, ok := snap.byID[id]
	return role, ok, nil
}

// RoleByName looks a role up in the current snapshot.
func (g *GraphResolver) RoleByName(ctx context.Context, name string) (Role, bool, error) {
	snap, err := g.snapshot(ctx)
	if err != nil {
		return Role{}, false, err
	}
	role, ok := snap.byName[name]
	return role, ok, nil
}

const (
	colorUnvisited = iota
	colorVisiting
	colorDone
)

// buildClosures computes self-plus-ancestors for every role via DFS over the
// parent edges, rejecting cycles.
func buildClosures(roles []Role) (map[int64][]int64, error) {
	byID := make(map[int64]Role, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
	}
	colors := make(map[int64]int, len(roles))
	closures := make(map[int64][]int64, len(roles))

	var visit func(id int64) error
	visit = func(id int64) error {
		switch colors[id] {
		case colorDone:
			return nil
		case colorVisiting:
			return fmt.Errorf("%w: role %d (%s)", ErrRoleCycle, id, byID[id].Name)
		}
		colors[id] = colorVisiting
		seen := map[int64]struct{}{id: {}}
		for _, parent := range byID[id].ParentIDs {
			if _, ok := byID[parent]; !ok {
				return fmt.Errorf("permissions: role %d references unknown parent %d", id, parent)
			}
			if err := visit(parent); err != nil {
				return err
			}
			for _, member := range closures[parent] {
				seen[member] = struct{}{}
			}
		}
		closure := make([]int64, 0, len(seen))
		for member := range seen {
			closure = append(closure, member)
		}
		sort.Slice(closure, func(i, j int) bool { return closure[i] < closure[j] })
		closures[id] = closure
		colors[id] = colorDone
		return nil
	}

	for _, role := range roles {
		if err := visit(role.ID); err != nil {
			return nil, err
		}
	}
	return closures, nil
}
