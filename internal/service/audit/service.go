package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jdores/selfserve-egressip/internal/domain"
	"github.com/jdores/selfserve-egressip/internal/pkg/logger"
	"github.com/jdores/selfserve-egressip/internal/pkg/metrics"
)

const (
	// DefaultPageSize is used when the caller does not ask for a limit.
	DefaultPageSize = 50
	// MaxPageSize caps a single page.
	MaxPageSize = 100
	// DefaultRetention is how long entries are kept.
	DefaultRetention = 90 * 24 * time.Hour

	archiveBatchSize = 1000
)

// Service implements the audit logger. It is safe for concurrent use.
type Service struct {
	repo      Repository
	retention time.Duration
	now       func() time.Time
	archiver  Archiver
	metrics   *metrics.Metrics
}

// NewService creates an audit service. A non-positive retention uses
// DefaultRetention.
func NewService(repo Repository, retention time.Duration) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{repo: repo, retention: retention, now: time.Now}
}

// SetClock replaces the time source (tests).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetArchiver enables export of entries before they are deleted.
func (s *Service) SetArchiver(a Archiver) { s.archiver = a }

// SetMetrics attaches counters.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Retention returns the configured retention window.
func (s *Service) Retention() time.Duration { return s.retention }

// Record appends one entry with the current time. Failures are logged and
// swallowed.
func (s *Service) Record(ctx context.Context, entry domain.AuditLogEntry) {
	entry.ID = 0
	entry.Timestamp = s.now().UTC()
	if err := s.repo.Insert(ctx, &entry); err != nil {
		s.metrics.IncAuditWriteFailure()
		logger.Error("audit: failed to insert entry",
			"action", string(entry.Action), "actor", entry.Actor, "error", err)
	}
}

// Query returns one page of entries, newest first. cursor <= 0 means "from
// the newest entry"; otherwise only ids strictly below cursor are eligible.
// limit is clamped to [1, MaxPageSize].
func (s *Service) Query(ctx context.Context, cursor int64, limit int) (*domain.AuditPage, error) {
	limit = ClampLimit(limit)
	if cursor < 0 {
		cursor = 0
	}

	rows, err := s.repo.List(ctx, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}

	page := &domain.AuditPage{Entries: rows}
	if len(rows) > limit {
		page.HasMore = true
		page.Entries = rows[:limit]
		last := page.Entries[len(page.Entries)-1].ID
		page.NextCursor = &last
	}
	if page.Entries == nil {
		page.Entries = []domain.AuditLogEntry{}
	}
	return page, nil
}

// ClampLimit bounds a requested page size to [1, MaxPageSize].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// Cleanup deletes every entry strictly older than the retention window and
// reports how many were removed. When an archiver is set, the doomed entries
// are exported first and a failed export aborts the sweep.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)

	if s.archiver != nil {
		archived, err := s.archive(ctx, cutoff)
		if err != nil {
			return 0, err
		}
		s.metrics.AddAuditArchived(archived)
	}

	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return deleted, fmt.Errorf("delete audit entries older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	s.metrics.AddAuditDeleted(deleted)
	return deleted, nil
}

func (s *Service) archive(ctx context.Context, cutoff time.Time) (int, error) {
	var afterID int64
	total := 0
	for {
		batch, err := s.repo.ListOlderThan(ctx, cutoff, afterID, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("read audit entries to archive: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}
		if err := s.archiver.Archive(ctx, cutoff, batch); err != nil {
			return total, fmt.Errorf("archive audit entries: %w", err)
		}
		total += len(batch)
		afterID = batch[len(batch)-1].ID
		if len(batch) < archiveBatchSize {
			return total, nil
		}
	}
}
