// Package knowledge selects knowledge base articles used as grounding
// context for reply generation.
package knowledge

import (
	"context"

	"support_server/core/domain"
	"support_server/core/port/out"
)

const DefaultArticleLimit = 3

// Selector picks the most-used active articles for a category.
type Selector struct {
	articles out.KnowledgeRepository
	limit    int
}

func NewSelector(articles out.KnowledgeRepository, limit int) *Selector {
	if limit <= 0 {
		limit = DefaultArticleLimit
	}
	return &Selector{
		articles: articles,
		limit:    limit,
	}
}

// Select returns up to the configured number of active articles for the
// category, ordered by historical use count.
func (s *Selector) Select(ctx context.Context, categoryID int64) ([]*domain.KnowledgeArticle, error) {
	return s.articles.ListActiveByCategory(ctx, categoryID, s.limit)
}

// MarkUsed bumps the use counter once for each article that actually
// contributed to a generated reply.
func (s *Selector) MarkUsed(ctx context.Context, articles []*domain.KnowledgeArticle) error {
	if len(articles) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.ID)
	}
	return s.articles.IncrementUseCount(ctx, ids)
}
