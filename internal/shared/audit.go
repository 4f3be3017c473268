package shared

import "context"

// AuditAction enumerates audited operations.
type AuditAction string

const (
	AuditCreate AuditAction = "Create"
	AuditUpdate AuditAction = "Update"
	AuditDelete AuditAction = "Delete"
)

// AuditLog is a single activity entry raised by a business operation.
type AuditLog struct {
	Action      AuditAction
	Module      string
	Description string
	Meta        map[string]any
}

// AuditPort records activity. Implementations never fail the business
// operation that raised the entry; the returned error is informational.
type AuditPort interface {
	Record(ctx context.Context, log AuditLog) error
}
