package permissions

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("permissions: not found")
	// ErrUnknownPermission indicates a key that is not in the catalog.
	// The resolver translates it into a DENY, it never escapes to callers.
	ErrUnknownPermission = errors.New("permissions: unknown permission key")
	// ErrRoleCycle indicates the role parent graph is not a DAG. This is a
	// configuration error and is fatal at startup.
	ErrRoleCycle = errors.New("permissions: role graph contains a cycle")
	// ErrInvalidKey indicates a permission key that does not match the
	// <action>.<resource>.<qualifier> format.
	ErrInvalidKey = errors.New("permissions: invalid permission key")
)

// Permission is one grantable capability. Keys are globally unique and are
// the stable contract with calling code.
type Permission struct {
	ID           int64
	Key          string
	ResourceType string
	ActionType   string
	Description  string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role is a named bundle of grants assignable to employees. ParentIDs model
// inheritance: a role holds its own grants plus everything reachable through
// its ancestors.
type Role struct {
	ID                int64
	Name              string
	DisplayName       string
	DisplayAttributes map[string]string
	ParentIDs         []int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Grant ties a permission to a role. Revoking flips IsGranted to false; rows
// are never deleted, so UpdatedAt doubles as a change record.
type Grant struct {
	RoleID        int64     `json:"roleId"`
	PermissionID  int64     `json:"permissionId"`
	PermissionKey string    `json:"permissionKey"`
	IsGranted     bool      `json:"isGranted"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PermissionDescriptor is the read model returned by GetUserPermissions,
// used for UI feature-gating rather than enforcement.
type PermissionDescriptor struct {
	Key          string `json:"key"`
	ResourceType string `json:"resourceType"`
	ActionType   string `json:"actionType"`
	Description  string `json:"description"`
}

// RoleDescriptor is the read model returned by GetUserRoles with display
// metadata for badges and labels.
type RoleDescriptor struct {
	ID                int64             `json:"id"`
	Name              string            `json:"name"`
	DisplayName       string            `json:"displayName"`
	DisplayAttributes map[string]string `json:"displayAttributes,omitempty"`
	Inherited         bool              `json:"inherited"`
}

// CheckOption adjusts a single permission check.
type CheckOption func(*checkOptions)

type checkOptions struct {
	skipAuditLog bool
}

// SkipAuditLog suppresses the audit entry for this check. Used by callers
// that check many permissions in a loop, e.g. UI feature-gating.
func SkipAuditLog() CheckOption {
	return func(o *checkOptions) { o.skipAuditLog = true }
}
