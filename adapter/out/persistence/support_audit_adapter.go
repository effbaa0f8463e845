package persistence

import (
	"context"
	"database/sql"
	"time"

	"support_server/core/domain"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
)

// AuditLogAdapter implements out.AuditLogRepository on PostgreSQL.
// The table is append-only; the only delete path is retention.
type AuditLogAdapter struct {
	db *sqlx.DB
}

// NewAuditLogAdapter creates a new AuditLogAdapter.
func NewAuditLogAdapter(db *sqlx.DB) *AuditLogAdapter {
	return &AuditLogAdapter{db: db}
}

// auditRow represents the database row.
type auditRow struct {
	ID           int64           `db:"id"`
	MessageID    int64           `db:"message_id"`
	Step         string          `db:"step"`
	Status       string          `db:"status"`
	Details      []byte          `db:"details"`
	ErrorMessage sql.NullString  `db:"error_message"`
	DurationSec  sql.NullFloat64 `db:"duration_sec"`
	CreatedAt    time.Time       `db:"created_at"`
}

func (r *auditRow) toEntity() *domain.ProcessingLogEntry {
	entry := &domain.ProcessingLogEntry{
		ID:           r.ID,
		MessageID:    r.MessageID,
		Step:         r.Step,
		Status:       r.Status,
		ErrorMessage: r.ErrorMessage.String,
		CreatedAt:    r.CreatedAt,
	}
	if r.DurationSec.Valid {
		entry.DurationSec = &r.DurationSec.Float64
	}
	if len(r.Details) > 0 {
		_ = json.Unmarshal(r.Details, &entry.Details)
	}
	return entry
}

// Append inserts a processing log entry.
func (a *AuditLogAdapter) Append(ctx context.Context, entry *domain.ProcessingLogEntry) error {
	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return wrapError("processing log", "encode details", err)
		}
	}

	query := `
		INSERT INTO processing_logs (message_id, step, status, details, error_message, duration_sec)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := a.db.QueryRowContext(ctx, query,
		entry.MessageID, entry.Step, entry.Status, details, entry.ErrorMessage, entry.DurationSec,
	).Scan(&entry.ID, &entry.CreatedAt)

	return wrapError("processing log", "append log entry", err)
}

// ListByMessage returns the full processing trail for a message in order.
func (a *AuditLogAdapter) ListByMessage(ctx context.Context, messageID int64) ([]*domain.ProcessingLogEntry, error) {
	var rows []auditRow
	query := `SELECT * FROM processing_logs WHERE message_id = $1 ORDER BY created_at, id`

	if err := a.db.SelectContext(ctx, &rows, query, messageID); err != nil {
		return nil, wrapError("processing log", "list log entries", err)
	}

	entries := make([]*domain.ProcessingLogEntry, len(rows))
	for i, row := range rows {
		entries[i] = row.toEntity()
	}

	return entries, nil
}

// DeleteOlderThan removes entries past the retention window.
func (a *AuditLogAdapter) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM processing_logs WHERE created_at < $1`

	result, err := a.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, wrapError("processing log", "delete old log entries", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}
