package guard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// protectedResources whitelists the resource types the guard knows how to
// count, mapping each to its table and scope column. The whitelist keeps
// caller-supplied resource types out of SQL identifiers.
var protectedResources = map[string]struct {
	table       string
	scopeColumn string
}{
	"service_locations": {table: "service_locations", scopeColumn: "business_id"},
	"employees":         {table: "employees", scopeColumn: "business_id"},
	"businesses":        {table: "businesses", scopeColumn: "tenant_id"},
}

// PGCounter counts active records directly against the protected resource
// tables.
type PGCounter struct {
	pool *pgxpool.Pool
}

// NewPGCounter constructs a counter.
func NewPGCounter(pool *pgxpool.Pool) *PGCounter {
	return &PGCounter{pool: pool}
}

// CountActive counts non-soft-deleted records of resourceType under scopeID.
func (c *PGCounter) CountActive(ctx context.Context, resourceType string, scopeID int64) (int64, error) {
	res, ok := protectedResources[resourceType]
	if !ok {
		return 0, fmt.Errorf("guard: unprotected resource type %q", resourceType)
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1 AND deleted_at IS NULL`, res.table, res.scopeColumn)
	var count int64
	if err := c.pool.QueryRow(ctx, query, scopeID).Scan(&count); err != nil {
		return 0, fmt.Errorf("guard: count %s: %w", resourceType, err)
	}
	return count, nil
}
