package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldline-hq/fieldline/internal/platform/db"
)

// Store is the persistence surface the resolver and admin operations need.
// Implemented by Repository; tests substitute an in-memory version.
type Store interface {
	UpsertPermissions(ctx context.Context, defs []Definition) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	PermissionByKey(ctx context.Context, key string) (Permission, error)

	RoleGraph(ctx context.Context) ([]Role, error)
	GraphVersion(ctx context.Context) (string, error)
	DirectRoleIDs(ctx context.Context, employeeID int64) ([]int64, error)

	GrantedRole(ctx context.Context, permissionID int64, roleIDs []int64) (string, bool, error)
	GrantedPermissions(ctx context.Context, roleIDs []int64) ([]Permission, error)
	RoleGrants(ctx context.Context, roleID int64) ([]Grant, error)

	SetGrant(ctx context.Context, roleID int64, key string, granted bool) error
	BulkSetGrants(ctx context.Context, roleID int64, keys []string, granted bool) error
	AssignRole(ctx context.Context, employeeID, roleID int64) error
	RemoveRole(ctx context.Context, employeeID, roleID int64) error
}

// Repository provides PostgreSQL backed persistence for the permission
// catalog, roles, employee-role links and grants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const upsertPermissionSQL = `
INSERT INTO permissions (key, resource_type, action_type, description, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
ON CONFLICT (key) DO UPDATE
SET description = EXCLUDED.description,
    updated_at  = NOW()
WHERE permissions.description IS DISTINCT FROM EXCLUDED.description`

// UpsertPermissions writes catalog definitions inside one transaction so a
// partially-applied rollout is never observable. Re-running is idempotent.
func (r *Repository) UpsertPermissions(ctx context.Context, defs []Definition) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, def := range defs {
			action, resource, _, err := ParseKey(def.Key)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, upsertPermissionSQL, def.Key, resource, action, def.Description); err != nil {
				return fmt.Errorf("permissions: upsert %s: %w", def.Key, err)
			}
		}
		return nil
	})
}

// ListPermissions returns all active permissions ordered by key.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, key, resource_type, action_type, description, active, created_at, updated_at
FROM permissions
WHERE active
ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// PermissionByKey fetches one catalog entry. Returns ErrUnknownPermission
// when the key is not in the catalog.
func (r *Repository) PermissionByKey(ctx context.Context, key string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
SELECT id, key, resource_type, action_type, description, active, created_at, updated_at
FROM permissions
WHERE key = $1`, key).Scan(&p.ID, &p.Key, &p.ResourceType, &p.ActionType, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("%w: %q", ErrUnknownPermission, key)
		}
		return Permission{}, err
	}
	return p, nil
}

// RoleGraph loads every role together with its parent edges.
func (r *Repository) RoleGraph(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, name, display_name, COALESCE(display_attributes, '{}'::jsonb), created_at, updated_at
FROM roles
ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	index := make(map[int64]int)
	for rows.Next() {
		var role Role
		var attrs []byte
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName, &attrs, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &role.DisplayAttributes); err != nil {
				return nil, fmt.Errorf("permissions: role %d display attributes: %w", role.ID, err)
			}
		}
		index[role.ID] = len(roles)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := r.pool.Query(ctx, `SELECT role_id, parent_role_id FROM role_parents ORDER BY role_id, parent_role_id`)
	if err != nil {
		return nil, err
	}
	defer edges.Close()
	for edges.Next() {
		var roleID, parentID int64
		if err := edges.Scan(&roleID, &parentID); err != nil {
			return nil, err
		}
		if i, ok := index[roleID]; ok {
			roles[i].ParentIDs = append(roles[i].ParentIDs, parentID)
		}
	}
	if err := edges.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GraphVersion returns a cheap fingerprint of the role/parent graph, used to
// invalidate the memoized inheritance closure when the graph changes.
func (r *Repository) GraphVersion(ctx context.Context) (string, error) {
	var version string
	err := r.pool.QueryRow(ctx, `
SELECT (SELECT COUNT(*) FROM roles)::text
       || ':' || (SELECT COALESCE(MAX(updated_at)::text, 'never') FROM roles)
       || ':' || (SELECT COUNT(*) FROM role_parents)::text`).Scan(&version)
	if err != nil {
		return "", err
	}
	return version, nil
}

// DirectRoleIDs returns the roles directly assigned to an employee.
func (r *Repository) DirectRoleIDs(ctx context.Context, employeeID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id FROM employee_roles WHERE employee_id = $1 ORDER BY role_id`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GrantedRole reports whether any of the given roles carries an explicit
// allow for the permission, returning the name of the first one that does.
func (r *Repository) GrantedRole(ctx context.Context, permissionID int64, roleIDs []int64) (string, bool, error) {
	if len(roleIDs) == 0 {
		return "", false, nil
	}
	var name string
	err := r.pool.QueryRow(ctx, `
SELECT r.name
FROM role_permissions rp
JOIN roles r ON r.id = rp.role_id
WHERE rp.permission_id = $1
  AND rp.role_id = ANY($2)
  AND rp.is_granted
ORDER BY r.id
LIMIT 1`, permissionID, roleIDs).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return name, true, nil
}

// GrantedPermissions returns the deduplicated active permissions granted to
// any of the given roles, ordered by key.
func (r *Repository) GrantedPermissions(ctx context.Context, roleIDs []int64) ([]Permission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT p.id, p.key, p.resource_type, p.action_type, p.description, p.active, p.created_at, p.updated_at
FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
WHERE rp.role_id = ANY($1)
  AND rp.is_granted
  AND p.active
ORDER BY p.key`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// RoleGrants returns every grant row of one role ordered by permission key.
// Revoked rows stay visible: the is_granted flag plus updated_at is the
// change record admins review.
func (r *Repository) RoleGrants(ctx context.Context, roleID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
SELECT rp.role_id, rp.permission_id, p.key, rp.is_granted, rp.created_at, rp.updated_at
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1
ORDER BY p.key`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.RoleID, &g.PermissionID, &g.PermissionKey, &g.IsGranted, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

const setGrantSQL = `
INSERT INTO role_permissions (role_id, permission_id, is_granted, created_at, updated_at)
SELECT $1, p.id, $3, NOW(), NOW()
FROM permissions p
WHERE p.key = $2
ON CONFLICT (role_id, permission_id) DO UPDATE
SET is_granted = EXCLUDED.is_granted,
    updated_at = NOW()`

// SetGrant upserts a grant row for (role, key). Revokes flip is_granted to
// false rather than deleting, preserving history.
func (r *Repository) SetGrant(ctx context.Context, roleID int64, key string, granted bool) error {
	tag, err := r.pool.Exec(ctx, setGrantSQL, roleID, key, granted)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownPermission, key)
	}
	return nil
}

// BulkSetGrants applies a grant rollout for one role inside a single
// transaction so a partially-applied matrix is never observable.
func (r *Repository) BulkSetGrants(ctx context.Context, roleID int64, keys []string, granted bool) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, key := range keys {
			tag, err := tx.Exec(ctx, setGrantSQL, roleID, key, granted)
			if err != nil {
				return mapPgError(err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: %q", ErrUnknownPermission, key)
			}
		}
		return nil
	})
}

// AssignRole links an employee to a role. Idempotent on re-assign.
func (r *Repository) AssignRole(ctx context.Context, employeeID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO employee_roles (employee_id, role_id, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (employee_id, role_id) DO NOTHING`, employeeID, roleID)
	return mapPgError(err)
}

// RemoveRole unlinks an employee from a role.
func (r *Repository) RemoveRole(ctx context.Context, employeeID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM employee_roles WHERE employee_id = $1 AND role_id = $2`, employeeID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.ResourceType, &p.ActionType, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// mapPgError converts foreign-key violations (unknown role or employee) into
// ErrNotFound so handlers can answer 404 instead of 500.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
	}
	return err
}
