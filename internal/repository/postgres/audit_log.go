package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jdores/selfserve-egressip/internal/domain"
)

// deleteBatchSize bounds each DELETE so a large sweep does not hold long
// row locks.
const deleteBatchSize = 10000

const auditColumns = `id, timestamp, actor, action, target_email, assigned_to, removed_from, details`

// AuditLogRepo implements audit.Repository against PostgreSQL.
type AuditLogRepo struct{ db *sql.DB }

// NewAuditLogRepo creates a Postgres-backed audit log repository.
func NewAuditLogRepo(db *sql.DB) *AuditLogRepo { return &AuditLogRepo{db: db} }

func (r *AuditLogRepo) Insert(ctx context.Context, e *domain.AuditLogEntry) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO audit_log (timestamp, actor, action, target_email, assigned_to, removed_from, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, e.Timestamp, e.Actor, string(e.Action),
		nullString(e.TargetEmail), nullString(e.AssignedTo), nullString(e.RemovedFrom), nullString(e.Details),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditLogRepo) List(ctx context.Context, beforeID int64, limit int) ([]domain.AuditLogEntry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if beforeID > 0 {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+auditColumns+` FROM audit_log WHERE id < $1 ORDER BY id DESC LIMIT $2`,
			beforeID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+auditColumns+` FROM audit_log ORDER BY id DESC LIMIT $1`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return scanAuditRows(rows)
}

func (r *AuditLogRepo) ListOlderThan(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]domain.AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_log WHERE timestamp < $1 AND id > $2 ORDER BY id ASC LIMIT $3`,
		cutoff, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired audit entries: %w", err)
	}
	return scanAuditRows(rows)
}

// DeleteOlderThan deletes in batches until no expired rows remain.
func (r *AuditLogRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := r.db.ExecContext(ctx, `
			DELETE FROM audit_log WHERE id IN (
				SELECT id FROM audit_log WHERE timestamp < $1 LIMIT $2
			)
		`, cutoff, deleteBatchSize)
		if err != nil {
			return total, fmt.Errorf("delete expired audit entries: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
		if n < deleteBatchSize {
			return total, nil
		}
	}
}

func scanAuditRows(rows *sql.Rows) ([]domain.AuditLogEntry, error) {
	defer rows.Close()
	var out []domain.AuditLogEntry
	for rows.Next() {
		var (
			e                                       domain.AuditLogEntry
			action                                  string
			target, assignedTo, removedFrom, detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &action,
			&target, &assignedTo, &removedFrom, &detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = domain.AuditAction(action)
		e.TargetEmail = stringFromNull(target)
		e.AssignedTo = stringFromNull(assignedTo)
		e.RemovedFrom = stringFromNull(removedFrom)
		e.Details = stringFromNull(detail)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
