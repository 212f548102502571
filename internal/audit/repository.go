package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the persistence surface the audit logger needs. Implemented
// by PGRepository; tests substitute stubs.
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	Trail(ctx context.Context, employeeID int64, limit int32) ([]Entry, error)
	RecentSecurityEvents(ctx context.Context, since time.Time) ([]SecurityEvent, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PGRepository provides PostgreSQL backed persistence for audit entries.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert appends one entry.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO audit_log_entries
    (id, occurred_at, event_type, employee_id, permission_key, allowed, role_used,
     resource_type, resource_id, ip_address, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.OccurredAt, entry.EventType, entry.EmployeeID, entry.PermissionKey,
		entry.Allowed, optionalText(entry.RoleUsed), optionalText(entry.ResourceType),
		optionalText(entry.ResourceID), optionalText(entry.IPAddress), optionalText(entry.UserAgent))
	return err
}

// Trail returns the most recent entries for one employee, newest first.
func (r *PGRepository) Trail(ctx context.Context, employeeID int64, limit int32) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, occurred_at, event_type, employee_id, permission_key, allowed,
       COALESCE(role_used, ''), COALESCE(resource_type, ''), COALESCE(resource_id, ''),
       COALESCE(ip_address, ''), COALESCE(user_agent, '')
FROM audit_log_entries
WHERE employee_id = $1
ORDER BY occurred_at DESC
LIMIT $2`, employeeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.EventType, &e.EmployeeID, &e.PermissionKey,
			&e.Allowed, &e.RoleUsed, &e.ResourceType, &e.ResourceID, &e.IPAddress, &e.UserAgent); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentSecurityEvents aggregates entries newer than since, grouped by event
// type, employee and source IP, ordered by volume.
func (r *PGRepository) RecentSecurityEvents(ctx context.Context, since time.Time) ([]SecurityEvent, error) {
	rows, err := r.pool.Query(ctx, `
SELECT event_type, employee_id, COALESCE(ip_address, ''), COUNT(*), MAX(occurred_at)
FROM audit_log_entries
WHERE occurred_at >= $1
GROUP BY event_type, employee_id, ip_address
ORDER BY COUNT(*) DESC, MAX(occurred_at) DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SecurityEvent
	for rows.Next() {
		var ev SecurityEvent
		if err := rows.Scan(&ev.EventType, &ev.EmployeeID, &ev.IPAddress, &ev.Count, &ev.LastSeen); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PurgeOlderThan deletes entries older than the cutoff and reports how many
// were removed. The delete-where-older-than shape makes overlapping sweeps
// harmless.
func (r *PGRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_log_entries WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}
