package audit

import (
	"context"
	"time"

	"github.com/jdores/selfserve-egressip/internal/domain"
)

// Repository defines the data access contract for the audit log.
type Repository interface {
	// Insert stores entry and sets entry.ID to the store-assigned id.
	Insert(ctx context.Context, entry *domain.AuditLogEntry) error

	// List returns up to limit entries ordered by id descending. When
	// beforeID > 0 only entries with id < beforeID are returned.
	List(ctx context.Context, beforeID int64, limit int) ([]domain.AuditLogEntry, error)

	// ListOlderThan returns up to limit entries with timestamp < cutoff and
	// id > afterID, ordered by id ascending.
	ListOlderThan(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]domain.AuditLogEntry, error)

	// DeleteOlderThan removes every entry with timestamp < cutoff and
	// returns the number of rows deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Archiver exports entries before the retention sweep deletes them.
type Archiver interface {
	Archive(ctx context.Context, cutoff time.Time, entries []domain.AuditLogEntry) error
}
