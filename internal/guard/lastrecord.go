// Package guard blocks destructive operations that would leave a scope with
// zero active records, e.g. deleting a business's last service location.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/fieldline-hq/fieldline/internal/permissions"
	"github.com/fieldline-hq/fieldline/internal/shared"
)

// Audit event types recorded when the guard decides a last-record case.
const (
	EventDeleteBlocked    = "delete.last_record.block"
	EventDeleteOverridden = "delete.last_record.override"
)

// Decision is the outcome of a last-record check.
type Decision struct {
	Allowed        bool   `json:"allowed"`
	Reason         string `json:"reason,omitempty"`
	RemainingCount int64  `json:"remainingCount"`
}

// ActiveCounter counts active (non-soft-deleted) records of a resource type
// within a scope.
type ActiveCounter interface {
	CountActive(ctx context.Context, resourceType string, scopeID int64) (int64, error)
}

// PermissionChecker is the slice of the resolver the guard needs for the
// hard-delete override.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, employeeID int64, key string, opts ...permissions.CheckOption) bool
}

// Guard evaluates last-record protection. It is independent of permission
// enforcement: destructive code paths must consult both the resolver and the
// guard before proceeding.
type Guard struct {
	counter ActiveCounter
	checker PermissionChecker
	logger  *slog.Logger
	audit   permissions.AuditSink
}

// Option adjusts optional guard collaborators.
type Option func(*Guard)

// WithAuditSink records last-record blocks and overrides on the audit trail.
func WithAuditSink(sink permissions.AuditSink) Option {
	return func(g *Guard) { g.audit = sink }
}

// New constructs a Guard.
func New(counter ActiveCounter, checker PermissionChecker, logger *slog.Logger, opts ...Option) *Guard {
	g := &Guard{counter: counter, checker: checker, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckLastRecordProtection reports whether removing one instance of
// resourceType under scopeID is safe. When only one active record remains,
// the operation is blocked unless the employee holds the designated
// hardDelete override for that resource type. Count failures fail closed.
func (g *Guard) CheckLastRecordProtection(ctx context.Context, resourceType string, scopeID, employeeID int64) Decision {
	count, err := g.counter.CountActive(ctx, resourceType, scopeID)
	if err != nil {
		g.logger.Error("last-record count failed",
			slog.String("resource_type", resourceType),
			slog.Int64("scope_id", scopeID),
			slog.Any("error", err))
		return Decision{
			Allowed: false,
			Reason:  "Could not verify remaining records; the operation was blocked as a precaution.",
		}
	}
	if count > 1 {
		return Decision{Allowed: true, RemainingCount: count}
	}

	overrideKey := permissions.HardDeleteOverrideKey(resourceType)
	if g.checker.CheckPermission(ctx, employeeID, overrideKey) {
		g.recordDecision(ctx, EventDeleteOverridden, true, overrideKey, resourceType, scopeID, employeeID)
		return Decision{
			Allowed:        true,
			Reason:         fmt.Sprintf("Last active record override granted via %s.", overrideKey),
			RemainingCount: count,
		}
	}
	g.recordDecision(ctx, EventDeleteBlocked, false, overrideKey, resourceType, scopeID, employeeID)
	return Decision{
		Allowed:        false,
		Reason:         fmt.Sprintf("This is the last active %s in its scope and cannot be removed.", resourceLabel(resourceType)),
		RemainingCount: count,
	}
}

// recordDecision puts last-record outcomes on the audit trail. Scope rather
// than record identifies the resource: the guard never sees individual rows.
func (g *Guard) recordDecision(ctx context.Context, eventType string, allowed bool, overrideKey, resourceType string, scopeID, employeeID int64) {
	if g.audit == nil {
		return
	}
	event := permissions.AuditEvent{
		Type:          eventType,
		EmployeeID:    employeeID,
		PermissionKey: overrideKey,
		Allowed:       allowed,
		ResourceType:  resourceType,
		ResourceID:    strconv.FormatInt(scopeID, 10),
	}
	if caller, ok := shared.CallerFromContext(ctx); ok {
		event.IPAddress = caller.IPAddress
		event.UserAgent = caller.UserAgent
	}
	g.audit.RecordEvent(ctx, event)
}

func resourceLabel(resourceType string) string {
	switch resourceType {
	case "service_locations":
		return "service location"
	case "employees":
		return "employee"
	case "businesses":
		return "business"
	default:
		return resourceType
	}
}
