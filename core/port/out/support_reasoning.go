package out

import (
	"context"

	"support_server/core/domain"
)

// ReplyRequest carries everything the reasoning service needs to draft a reply.
type ReplyRequest struct {
	Subject      string
	Body         string
	Category     string
	CustomerName string
	Articles     []*domain.KnowledgeArticle
}

// ReasoningPort is the boundary to the external reasoning service.
// Classify degrades gracefully on malformed output; GenerateReply does not.
type ReasoningPort interface {
	Classify(ctx context.Context, subject, body string, categories []*domain.Category) (*domain.ClassificationResult, error)
	GenerateReply(ctx context.Context, req *ReplyRequest) (*domain.ReplyResult, error)
}
