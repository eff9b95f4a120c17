package domain

import "time"

// AuditAction tags the kind of transition an audit entry records.
type AuditAction string

const (
	ActionSelect      AuditAction = "select"
	ActionReset       AuditAction = "reset"
	ActionAdminAssign AuditAction = "admin_assign"
	ActionAdminRemove AuditAction = "admin_remove"
)

// Valid reports whether a is one of the known actions.
func (a AuditAction) Valid() bool {
	switch a {
	case ActionSelect, ActionReset, ActionAdminAssign, ActionAdminRemove:
		return true
	}
	return false
}

// AuditLogEntry is one immutable row of the audit trail. ID and Timestamp are
// assigned by the store on insert.
type AuditLogEntry struct {
	ID          int64       `json:"id" db:"id"`
	Timestamp   time.Time   `json:"timestamp" db:"timestamp"`
	Actor       string      `json:"actor" db:"actor"`
	Action      AuditAction `json:"action" db:"action"`
	TargetEmail *string     `json:"target_email" db:"target_email"`
	AssignedTo  *string     `json:"assigned_to" db:"assigned_to"`
	RemovedFrom *string     `json:"removed_from" db:"removed_from"`
	Details     *string     `json:"details" db:"details"`
}

// AuditPage is one cursor page of audit entries, newest first.
type AuditPage struct {
	Entries    []AuditLogEntry `json:"entries"`
	NextCursor *int64          `json:"nextCursor"`
	HasMore    bool            `json:"hasMore"`
}

// StringPtr returns nil for the empty string and a pointer otherwise. Audit
// columns are nullable and an empty name means "none".
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
