package persistence

import (
	"context"
	"database/sql"
	"time"

	"support_server/core/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ReplyAdapter implements out.ReplyRepository on PostgreSQL.
type ReplyAdapter struct {
	db *sqlx.DB
}

// NewReplyAdapter creates a new ReplyAdapter.
func NewReplyAdapter(db *sqlx.DB) *ReplyAdapter {
	return &ReplyAdapter{db: db}
}

// replyRow represents the database row.
type replyRow struct {
	ID             int64          `db:"id"`
	MessageID      int64          `db:"message_id"`
	Body           string         `db:"body"`
	Origin         string         `db:"origin"`
	Status         string         `db:"status"`
	Confidence     float64        `db:"confidence"`
	RequiresReview bool           `db:"requires_review"`
	Reasoning      sql.NullString `db:"reasoning"`
	ReviewedBy     sql.NullString `db:"reviewed_by"`
	SentAt         sql.NullTime   `db:"sent_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r *replyRow) toEntity() *domain.ReplyDraft {
	reply := &domain.ReplyDraft{
		ID:             r.ID,
		MessageID:      r.MessageID,
		Body:           r.Body,
		Origin:         domain.ReplyOrigin(r.Origin),
		Status:         domain.ReplyStatus(r.Status),
		Confidence:     r.Confidence,
		RequiresReview: r.RequiresReview,
		Reasoning:      r.Reasoning.String,
		ReviewedBy:     r.ReviewedBy.String,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.SentAt.Valid {
		reply.SentAt = &r.SentAt.Time
	}
	return reply
}

// Create inserts a new reply draft.
func (a *ReplyAdapter) Create(ctx context.Context, reply *domain.ReplyDraft) error {
	query := `
		INSERT INTO replies (message_id, body, origin, status, confidence, requires_review, reasoning)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := a.db.QueryRowContext(ctx, query,
		reply.MessageID, reply.Body, string(reply.Origin), string(reply.Status),
		reply.Confidence, reply.RequiresReview, reply.Reasoning,
	).Scan(&reply.ID, &reply.CreatedAt, &reply.UpdatedAt)

	return wrapError("reply", "create reply", err)
}

// GetByID retrieves a reply by ID.
func (a *ReplyAdapter) GetByID(ctx context.Context, id int64) (*domain.ReplyDraft, error) {
	var row replyRow
	query := `SELECT * FROM replies WHERE id = $1`

	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, wrapError("reply", "get reply", err)
	}

	return row.toEntity(), nil
}

// Update writes the mutable reply fields.
func (a *ReplyAdapter) Update(ctx context.Context, reply *domain.ReplyDraft) error {
	query := `
		UPDATE replies
		SET body = $2, origin = $3, status = $4, reviewed_by = $5, sent_at = $6, updated_at = NOW()
		WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query,
		reply.ID, reply.Body, string(reply.Origin), string(reply.Status), reply.ReviewedBy, reply.SentAt,
	)
	if err != nil {
		return wrapError("reply", "update reply", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return wrapError("reply", "update reply", sql.ErrNoRows)
	}

	return nil
}

// ListByMessage retrieves all drafts for a message, newest first.
func (a *ReplyAdapter) ListByMessage(ctx context.Context, messageID int64) ([]*domain.ReplyDraft, error) {
	var rows []replyRow
	query := `SELECT * FROM replies WHERE message_id = $1 ORDER BY created_at DESC`

	if err := a.db.SelectContext(ctx, &rows, query, messageID); err != nil {
		return nil, wrapError("reply", "list replies", err)
	}

	replies := make([]*domain.ReplyDraft, len(rows))
	for i, row := range rows {
		replies[i] = row.toEntity()
	}

	return replies, nil
}

// LinkArticles records which knowledge articles informed a draft.
func (a *ReplyAdapter) LinkArticles(ctx context.Context, replyID int64, articleIDs []int64) error {
	if len(articleIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO reply_articles (reply_id, article_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`

	_, err := a.db.ExecContext(ctx, query, replyID, pq.Array(articleIDs))
	return wrapError("reply", "link articles", err)
}
