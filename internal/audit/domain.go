package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable audit record. Rows are only ever removed by the
// retention sweep.
type Entry struct {
	ID            uuid.UUID
	OccurredAt    time.Time
	EventType     string
	EmployeeID    int64
	PermissionKey string
	Allowed       bool
	RoleUsed      string
	ResourceType  string
	ResourceID    string
	IPAddress     string
	UserAgent     string
}

// SecurityEvent is one row of the aggregated recent-anomaly view, grouped by
// event type, employee and source IP.
type SecurityEvent struct {
	EventType  string    `json:"eventType"`
	EmployeeID int64     `json:"employeeId"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	Count      int64     `json:"count"`
	LastSeen   time.Time `json:"lastSeen"`
}
