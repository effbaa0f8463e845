package out

import (
	"context"
	"time"

	"support_server/core/domain"
)

// MessageRepository persists inbound messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.InboundMessage) error
	GetByID(ctx context.Context, id int64) (*domain.InboundMessage, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.InboundMessage, error)
	Update(ctx context.Context, msg *domain.InboundMessage) error

	// CompareAndSetStatus transitions status only when the stored status
	// still equals expected. Returns false when another worker won.
	CompareAndSetStatus(ctx context.Context, id int64, expected, next domain.Status) (bool, error)

	// ListStale returns messages in the given status older than before.
	ListStale(ctx context.Context, status domain.Status, before time.Time, limit int) ([]*domain.InboundMessage, error)

	CountByStatus(ctx context.Context) (map[domain.Status]int64, error)
	CountByCategory(ctx context.Context) (map[string]int64, error)
}

// ReplyRepository persists reply drafts.
type ReplyRepository interface {
	Create(ctx context.Context, reply *domain.ReplyDraft) error
	GetByID(ctx context.Context, id int64) (*domain.ReplyDraft, error)
	Update(ctx context.Context, reply *domain.ReplyDraft) error
	ListByMessage(ctx context.Context, messageID int64) ([]*domain.ReplyDraft, error)
	LinkArticles(ctx context.Context, replyID int64, articleIDs []int64) error
}

// CategoryRepository reads the support category taxonomy.
type CategoryRepository interface {
	List(ctx context.Context) ([]*domain.Category, error)
	GetByName(ctx context.Context, name string) (*domain.Category, error)
}

// KnowledgeRepository reads and updates knowledge base articles.
type KnowledgeRepository interface {
	ListActiveByCategory(ctx context.Context, categoryID int64, limit int) ([]*domain.KnowledgeArticle, error)
	IncrementUseCount(ctx context.Context, articleIDs []int64) error
}

// AuditLogRepository is the append-only processing trail.
type AuditLogRepository interface {
	Append(ctx context.Context, entry *domain.ProcessingLogEntry) error
	ListByMessage(ctx context.Context, messageID int64) ([]*domain.ProcessingLogEntry, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// StaffRepository resolves escalation recipients.
type StaffRepository interface {
	ListActiveEmails(ctx context.Context) ([]string, error)
}
