package permissions

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/fieldline-hq/fieldline/internal/shared"
)

// Audit event types recorded by the resolver and admin operations.
const (
	EventCheckAllow = "permission.check.allow"
	EventCheckDeny  = "permission.check.deny"
	EventGrant      = "grant.apply"
	EventRevoke     = "grant.revoke"
	EventRoleAssign = "role.assign"
	EventRoleRemove = "role.remove"
)

// AuditEvent describes one access-control event for the audit trail.
// ResourceType and ResourceID are set by producers that act on a concrete
// record, such as the deletion preflight; plain permission checks leave them
// empty.
type AuditEvent struct {
	Type          string
	EmployeeID    int64
	PermissionKey string
	Allowed       bool
	RoleUsed      string
	ResourceType  string
	ResourceID    string
	IPAddress     string
	UserAgent     string
}

// AuditSink receives access-control events. Implementations must never block
// the caller and must swallow their own write failures: a lost audit entry
// may never alter an already-computed decision.
type AuditSink interface {
	RecordEvent(ctx context.Context, event AuditEvent)
}

// DecisionMetrics counts decision outcomes and cache effectiveness.
type DecisionMetrics interface {
	ObserveDecision(allowed, cacheHit bool)
}

// Resolver combines the catalog, the inheritance closure and the grant rows
// into allow/deny decisions. It owns its cache, store and audit sink
// explicitly so tests can substitute each one; there is no package-level
// state.
type Resolver struct {
	store   Store
	graph   *GraphResolver
	cache   *Cache
	audit   AuditSink
	metrics DecisionMetrics
	logger  *slog.Logger
}

// ResolverOption adjusts optional resolver collaborators.
type ResolverOption func(*Resolver)

// WithAuditSink attaches an audit sink for decisions and admin actions.
func WithAuditSink(sink AuditSink) ResolverOption {
	return func(r *Resolver) { r.audit = sink }
}

// WithMetrics attaches decision metrics.
func WithMetrics(m DecisionMetrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver constructs a resolver. Cache may be nil (pass-through).
func NewResolver(store Store, graph *GraphResolver, cache *Cache, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, graph: graph, cache: cache, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckPermission decides whether the employee may perform the operation
// identified by key. Any role in the employee's inheritance closure carrying
// an explicit allow wins. Every failure path (unknown key, unreachable
// store, cache trouble) resolves to DENY; no internal error ever escapes
// this boundary.
func (r *Resolver) CheckPermission(ctx context.Context, employeeID int64, key string, opts ...CheckOption) bool {
	var options checkOptions
	for _, opt := range opts {
		opt(&options)
	}

	decision, cacheHit, err := r.resolve(ctx, employeeID, key)
	if err != nil {
		// Fail closed. The denial is still audited so an outage does not
		// produce a silent gap in the trail.
		r.logger.Error("permission check failed closed",
			slog.Int64("employee_id", employeeID),
			slog.String("permission", key),
			slog.Any("error", err))
		decision = Decision{Allowed: false}
	}

	if r.metrics != nil {
		r.metrics.ObserveDecision(decision.Allowed, cacheHit)
	}
	if !options.skipAuditLog && r.audit != nil {
		r.audit.RecordEvent(ctx, r.decisionEvent(ctx, employeeID, key, decision))
	}
	return decision.Allowed
}

func (r *Resolver) resolve(ctx context.Context, employeeID int64, key string) (Decision, bool, error) {
	return r.cache.FetchDecision(ctx, employeeID, key, func(ctx context.Context) (Decision, error) {
		perm, err := r.store.PermissionByKey(ctx, key)
		if err != nil {
			if errors.Is(err, ErrUnknownPermission) {
				// Not in the catalog: a plain deny, worth a warning because
				// it usually means a caller typo or a missed seed.
				r.logger.Warn("permission key not in catalog", slog.String("permission", key))
				return Decision{Allowed: false}, nil
			}
			return Decision{}, err
		}
		if !perm.Active {
			return Decision{Allowed: false}, nil
		}

		direct, err := r.store.DirectRoleIDs(ctx, employeeID)
		if err != nil {
			return Decision{}, err
		}
		closure, err := r.graph.Closure(ctx, direct)
		if err != nil {
			return Decision{}, err
		}
		roleName, granted, err := r.store.GrantedRole(ctx, perm.ID, closure)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: granted, RoleUsed: roleName}, nil
	})
}

func (r *Resolver) decisionEvent(ctx context.Context, employeeID int64, key string, decision Decision) AuditEvent {
	eventType := EventCheckDeny
	if decision.Allowed {
		eventType = EventCheckAllow
	}
	event := AuditEvent{
		Type:          eventType,
		EmployeeID:    employeeID,
		PermissionKey: key,
		Allowed:       decision.Allowed,
		RoleUsed:      decision.RoleUsed,
	}
	if caller, ok := shared.CallerFromContext(ctx); ok {
		event.IPAddress = caller.IPAddress
		event.UserAgent = caller.UserAgent
	}
	return event
}

// GetUserPermissions returns every permission reachable through the
// employee's role closure. Callers use this for UI feature-gating, not for
// enforcement; enforcement always goes through CheckPermission.
func (r *Resolver) GetUserPermissions(ctx context.Context, employeeID int64) ([]PermissionDescriptor, error) {
	return r.cache.FetchPermissions(ctx, employeeID, func(ctx context.Context) ([]PermissionDescriptor, error) {
		direct, err := r.store.DirectRoleIDs(ctx, employeeID)
		if err != nil {
			return nil, err
		}
		closure, err := r.graph.Closure(ctx, direct)
		if err != nil {
			return nil, err
		}
		perms, err := r.store.GrantedPermissions(ctx, closure)
		if err != nil {
			return nil, err
		}
		descriptors := make([]PermissionDescriptor, 0, len(perms))
		for _, p := range perms {
			descriptors = append(descriptors, PermissionDescriptor{
				Key:          p.Key,
				ResourceType: p.ResourceType,
				ActionType:   p.ActionType,
				Description:  p.Description,
			})
		}
		return descriptors, nil
	})
}

// ListCatalog returns every active permission in the catalog, for the admin
// grant-matrix view.
func (r *Resolver) ListCatalog(ctx context.Context) ([]PermissionDescriptor, error) {
	perms, err := r.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	descriptors := make([]PermissionDescriptor, 0, len(perms))
	for _, p := range perms {
		descriptors = append(descriptors, PermissionDescriptor{
			Key:          p.Key,
			ResourceType: p.ResourceType,
			ActionType:   p.ActionType,
			Description:  p.Description,
		})
	}
	return descriptors, nil
}

// RoleGrants returns the grant rows of one role, revoked rows included, so
// admins can review a role's full grant history.
func (r *Resolver) RoleGrants(ctx context.Context, roleID int64) ([]Grant, error) {
	return r.store.RoleGrants(ctx, roleID)
}

// HasRole reports whether the employee holds the named role, directly or
// through inheritance.
func (r *Resolver) HasRole(ctx context.Context, employeeID int64, roleName string) (bool, error) {
	role, ok, err := r.graph.RoleByName(ctx, roleName)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	direct, err := r.store.DirectRoleIDs(ctx, employeeID)
	if err != nil {
		return false, err
	}
	closure, err := r.graph.Closure(ctx, direct)
	if err != nil {
		return false, err
	}
	for _, id := range closure {
		if id == role.ID {
			return true, nil
		}
	}
	return false, nil
}

// GetUserRoles returns the employee's role membership with display metadata.
// Directly assigned roles come first, inherited ones follow flagged as such.
func (r *Resolver) GetUserRoles(ctx context.Context, employeeID int64, includeInherited bool) ([]RoleDescriptor, error) {
	direct, err := r.store.DirectRoleIDs(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	directSet := make(map[int64]struct{}, len(direct))
	for _, id := range direct {
		directSet[id] = struct{}{}
	}

	ids := direct
	if includeInherited {
		ids, err = r.graph.Closure(ctx, direct)
		if err != nil {
			return nil, err
		}
	}

	descriptors := make([]RoleDescriptor, 0, len(ids))
	for _, id := range ids {
		role, ok, err := r.graph.RoleByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		_, isDirect := directSet[id]
		descriptors = append(descriptors, RoleDescriptor{
			ID:                role.ID,
			Name:              role.Name,
			DisplayName:       role.DisplayName,
			DisplayAttributes: role.DisplayAttributes,
			Inherited:         !isDirect,
		})
	}
	sort.Slice(descriptors, func(i, j int) bool {
		if descriptors[i].Inherited != descriptors[j].Inherited {
			return !descriptors[i].Inherited
		}
		return descriptors[i].ID < descriptors[j].ID
	})
	return descriptors, nil
}

// Grant gives a role an explicit allow for the permission key and busts the
// decision cache.
func (r *Resolver) Grant(ctx context.Context, roleID int64, key string) error {
	if err := r.store.SetGrant(ctx, roleID, key, true); err != nil {
		return err
	}
	r.afterMutation(ctx, EventGrant, key, roleID)
	return nil
}

// Revoke flips the grant row for (role, key) to denied. The row itself is
// kept so the update timestamp doubles as a change record.
func (r *Resolver) Revoke(ctx context.Context, roleID int64, key string) error {
	if err := r.store.SetGrant(ctx, roleID, key, false); err != nil {
		return err
	}
	r.afterMutation(ctx, EventRevoke, key, roleID)
	return nil
}

// BulkGrant applies a grant rollout for one role in a single transaction.
func (r *Resolver) BulkGrant(ctx context.Context, roleID int64, keys []string) error {
	if err := r.store.BulkSetGrants(ctx, roleID, keys, true); err != nil {
		return err
	}
	r.afterMutation(ctx, EventGrant, "", roleID)
	return nil
}

// AssignRole links an employee to a role and busts the decision cache.
func (r *Resolver) AssignRole(ctx context.Context, employeeID, roleID int64) error {
	if err := r.store.AssignRole(ctx, employeeID, roleID); err != nil {
		return err
	}
	r.afterMutation(ctx, EventRoleAssign, "", roleID)
	return nil
}

// RemoveRole unlinks an employee from a role and busts the decision cache.
func (r *Resolver) RemoveRole(ctx context.Context, employeeID, roleID int64) error {
	if err := r.store.RemoveRole(ctx, employeeID, roleID); err != nil {
		return err
	}
	r.afterMutation(ctx, EventRoleRemove, "", roleID)
	return nil
}

func (r *Resolver) afterMutation(ctx context.Context, eventType, key string, roleID int64) {
	if err := r.cache.Bump(ctx); err != nil {
		// Stale entries age out on the TTL; the mutation itself succeeded.
		r.logger.Error("cache bump failed", slog.Any("error", err))
	}
	if r.audit == nil {
		return
	}
	event := AuditEvent{Type: eventType, PermissionKey: key}
	if role, ok, err := r.graph.RoleByID(ctx, roleID); err == nil && ok {
		event.RoleUsed = role.Name
	}
	if caller, ok := shared.CallerFromContext(ctx); ok {
		event.EmployeeID = caller.EmployeeID
		event.IPAddress = caller.IPAddress
		event.UserAgent = caller.UserAgent
	}
	r.audit.RecordEvent(ctx, event)
}
