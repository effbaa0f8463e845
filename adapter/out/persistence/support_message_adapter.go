// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"time"

	"support_server/core/domain"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
)

// MessageAdapter implements out.MessageRepository on PostgreSQL.
type MessageAdapter struct {
	db *sqlx.DB
}

// NewMessageAdapter creates a new MessageAdapter.
func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

// messageRow represents the database row.
type messageRow struct {
	ID                 int64          `db:"id"`
	ExternalID         string         `db:"external_id"`
	FromEmail          string         `db:"from_email"`
	FromName           sql.NullString `db:"from_name"`
	ToEmail            string         `db:"to_email"`
	Subject            string         `db:"subject"`
	BodyText           string         `db:"body_text"`
	BodyHTML           sql.NullString `db:"body_html"`
	Status             string         `db:"status"`
	Priority           string         `db:"priority"`
	CategoryID         sql.NullInt64  `db:"category_id"`
	CategoryName       sql.NullString `db:"category_name"`
	Confidence         float64        `db:"confidence"`
	Sentiment          string         `db:"sentiment"`
	RequiresEscalation bool           `db:"requires_escalation"`
	EscalationReason   sql.NullString `db:"escalation_reason"`
	ExtractedInfo      []byte         `db:"extracted_info"`
	HasAttachments     bool           `db:"has_attachments"`
	ReceivedAt         time.Time      `db:"received_at"`
	ProcessedAt        sql.NullTime   `db:"processed_at"`
	RepliedAt          sql.NullTime   `db:"replied_at"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (r *messageRow) toEntity() *domain.InboundMessage {
	msg := &domain.InboundMessage{
		ID:                 r.ID,
		ExternalID:         r.ExternalID,
		FromEmail:          r.FromEmail,
		FromName:           r.FromName.String,
		ToEmail:            r.ToEmail,
		Subject:            r.Subject,
		BodyText:           r.BodyText,
		BodyHTML:           r.BodyHTML.String,
		Status:             domain.Status(r.Status),
		Priority:           domain.Priority(r.Priority),
		CategoryName:       r.CategoryName.String,
		Confidence:         r.Confidence,
		Sentiment:          domain.Sentiment(r.Sentiment),
		RequiresEscalation: r.RequiresEscalation,
		EscalationReason:   r.EscalationReason.String,
		HasAttachments:     r.HasAttachments,
		ReceivedAt:         r.ReceivedAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.CategoryID.Valid {
		msg.CategoryID = &r.CategoryID.Int64
	}
	if r.ProcessedAt.Valid {
		msg.ProcessedAt = &r.ProcessedAt.Time
	}
	if r.RepliedAt.Valid {
		msg.RepliedAt = &r.RepliedAt.Time
	}
	if len(r.ExtractedInfo) > 0 {
		_ = json.Unmarshal(r.ExtractedInfo, &msg.ExtractedInfo)
	}
	return msg
}

func extractedInfoJSON(msg *domain.InboundMessage) ([]byte, error) {
	if msg.ExtractedInfo == nil {
		return nil, nil
	}
	return json.Marshal(msg.ExtractedInfo)
}

// Create inserts a new message. The unique index on external_id turns a
// concurrent duplicate delivery into an AlreadyExists error.
func (a *MessageAdapter) Create(ctx context.Context, msg *domain.InboundMessage) error {
	query := `
		INSERT INTO messages (external_id, from_email, from_name, to_email, subject, body_text, body_html,
			status, priority, sentiment, has_attachments, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	err := a.db.QueryRowContext(ctx, query,
		msg.ExternalID, msg.FromEmail, msg.FromName, msg.ToEmail, msg.Subject, msg.BodyText, msg.BodyHTML,
		string(msg.Status), string(msg.Priority), string(msg.Sentiment), msg.HasAttachments, msg.ReceivedAt,
	).Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)

	return wrapError("message", "create message", err)
}

// GetByID retrieves a message by ID.
func (a *MessageAdapter) GetByID(ctx context.Context, id int64) (*domain.InboundMessage, error) {
	var row messageRow
	query := `SELECT * FROM messages WHERE id = $1`

	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, wrapError("message", "get message", err)
	}

	return row.toEntity(), nil
}

// GetByExternalID retrieves a message by its RFC 5322 message ID.
func (a *MessageAdapter) GetByExternalID(ctx context.Context, externalID string) (*domain.InboundMessage, error) {
	var row messageRow
	query := `SELECT * FROM messages WHERE external_id = $1`

	if err := a.db.GetContext(ctx, &row, query, externalID); err != nil {
		return nil, wrapError("message", "get message by external id", err)
	}

	return row.toEntity(), nil
}

// Update writes all mutable fields except status, which only moves
// through CompareAndSetStatus.
func (a *MessageAdapter) Update(ctx context.Context, msg *domain.InboundMessage) error {
	info, err := extractedInfoJSON(msg)
	if err != nil {
		return wrapError("message", "encode extracted info", err)
	}

	query := `
		UPDATE messages
		SET priority = $2, category_id = $3, category_name = $4, confidence = $5, sentiment = $6,
			requires_escalation = $7, escalation_reason = $8, extracted_info = $9,
			processed_at = $10, replied_at = $11, updated_at = NOW()
		WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query,
		msg.ID, string(msg.Priority), msg.CategoryID, msg.CategoryName, msg.Confidence, string(msg.Sentiment),
		msg.RequiresEscalation, msg.EscalationReason, info,
		msg.ProcessedAt, msg.RepliedAt,
	)
	if err != nil {
		return wrapError("message", "update message", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return wrapError("message", "update message", sql.ErrNoRows)
	}

	return nil
}

// CompareAndSetStatus transitions status only when the stored status
// still equals expected. The row count tells us who won the race.
func (a *MessageAdapter) CompareAndSetStatus(ctx context.Context, id int64, expected, next domain.Status) (bool, error) {
	query := `UPDATE messages SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`

	result, err := a.db.ExecContext(ctx, query, id, string(expected), string(next))
	if err != nil {
		return false, wrapError("message", "compare and set status", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// ListStale returns messages stuck in the given status since before the cutoff.
func (a *MessageAdapter) ListStale(ctx context.Context, status domain.Status, before time.Time, limit int) ([]*domain.InboundMessage, error) {
	var rows []messageRow
	query := `SELECT * FROM messages WHERE status = $1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`

	if err := a.db.SelectContext(ctx, &rows, query, string(status), before, limit); err != nil {
		return nil, wrapError("message", "list stale messages", err)
	}

	messages := make([]*domain.InboundMessage, len(rows))
	for i, row := range rows {
		messages[i] = row.toEntity()
	}

	return messages, nil
}

// CountByStatus returns message counts grouped by status.
func (a *MessageAdapter) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	query := `SELECT status, COUNT(*) FROM messages GROUP BY status`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapError("message", "count by status", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, wrapError("message", "scan status count", err)
		}
		counts[domain.Status(status)] = count
	}

	return counts, rows.Err()
}

// CountByCategory returns message counts grouped by classified category.
func (a *MessageAdapter) CountByCategory(ctx context.Context) (map[string]int64, error) {
	query := `SELECT COALESCE(category_name, 'unclassified'), COUNT(*) FROM messages GROUP BY 1`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapError("message", "count by category", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, wrapError("message", "scan category count", err)
		}
		counts[category] = count
	}

	return counts, rows.Err()
}
