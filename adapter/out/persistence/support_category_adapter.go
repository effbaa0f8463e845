package persistence

import (
	"context"
	"database/sql"
	"time"

	"support_server/core/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// CategoryAdapter implements out.CategoryRepository on PostgreSQL.
type CategoryAdapter struct {
	db *sqlx.DB
}

// NewCategoryAdapter creates a new CategoryAdapter.
func NewCategoryAdapter(db *sqlx.DB) *CategoryAdapter {
	return &CategoryAdapter{db: db}
}

// categoryRow represents the database row.
type categoryRow struct {
	ID                 int64          `db:"id"`
	Name               string         `db:"name"`
	Description        sql.NullString `db:"description"`
	Keywords           pq.StringArray `db:"keywords"`
	AutoReplyEnabled   bool           `db:"auto_reply_enabled"`
	EscalationRequired bool           `db:"escalation_required"`
	SLAHours           int            `db:"sla_hours"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (r *categoryRow) toEntity() *domain.Category {
	return &domain.Category{
		ID:                 r.ID,
		Name:               r.Name,
		Description:        r.Description.String,
		Keywords:           r.Keywords,
		AutoReplyEnabled:   r.AutoReplyEnabled,
		EscalationRequired: r.EscalationRequired,
		SLAHours:           r.SLAHours,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// List retrieves the full category taxonomy.
func (a *CategoryAdapter) List(ctx context.Context) ([]*domain.Category, error) {
	var rows []categoryRow
	query := `SELECT * FROM categories ORDER BY name`

	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, wrapError("category", "list categories", err)
	}

	categories := make([]*domain.Category, len(rows))
	for i, row := range rows {
		categories[i] = row.toEntity()
	}

	return categories, nil
}

// GetByName retrieves a category by its unique name.
func (a *CategoryAdapter) GetByName(ctx context.Context, name string) (*domain.Category, error) {
	var row categoryRow
	query := `SELECT * FROM categories WHERE name = $1`

	if err := a.db.GetContext(ctx, &row, query, name); err != nil {
		return nil, wrapError("category", "get category", err)
	}

	return row.toEntity(), nil
}

// KnowledgeAdapter implements out.KnowledgeRepository on PostgreSQL.
type KnowledgeAdapter struct {
	db *sqlx.DB
}

// NewKnowledgeAdapter creates a new KnowledgeAdapter.
func NewKnowledgeAdapter(db *sqlx.DB) *KnowledgeAdapter {
	return &KnowledgeAdapter{db: db}
}

// articleRow represents the database row.
type articleRow struct {
	ID         int64          `db:"id"`
	CategoryID int64          `db:"category_id"`
	Title      string         `db:"title"`
	Content    string         `db:"content"`
	Keywords   pq.StringArray `db:"keywords"`
	UseCount   int64          `db:"use_count"`
	IsActive   bool           `db:"is_active"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r *articleRow) toEntity() *domain.KnowledgeArticle {
	return &domain.KnowledgeArticle{
		ID:         r.ID,
		CategoryID: r.CategoryID,
		Title:      r.Title,
		Content:    r.Content,
		Keywords:   r.Keywords,
		UseCount:   r.UseCount,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// ListActiveByCategory returns the most-used active articles for a category.
func (a *KnowledgeAdapter) ListActiveByCategory(ctx context.Context, categoryID int64, limit int) ([]*domain.KnowledgeArticle, error) {
	var rows []articleRow
	query := `
		SELECT * FROM knowledge_articles
		WHERE category_id = $1 AND is_active = TRUE
		ORDER BY use_count DESC, updated_at DESC
		LIMIT $2`

	if err := a.db.SelectContext(ctx, &rows, query, categoryID, limit); err != nil {
		return nil, wrapError("knowledge article", "list articles", err)
	}

	articles := make([]*domain.KnowledgeArticle, len(rows))
	for i, row := range rows {
		articles[i] = row.toEntity()
	}

	return articles, nil
}

// IncrementUseCount bumps the use counter for the given articles.
func (a *KnowledgeAdapter) IncrementUseCount(ctx context.Context, articleIDs []int64) error {
	if len(articleIDs) == 0 {
		return nil
	}

	query := `UPDATE knowledge_articles SET use_count = use_count + 1, updated_at = NOW() WHERE id = ANY($1)`

	_, err := a.db.ExecContext(ctx, query, pq.Array(articleIDs))
	return wrapError("knowledge article", "increment use count", err)
}
