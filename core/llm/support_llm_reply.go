package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"support_server/core/domain"
	"support_server/core/port/out"
	"support_server/core/service/masking"
	"support_server/pkg/apperr"
)

const maxArticlesInPrompt = 5

// replyResponse is the wire format expected from the service.
type replyResponse struct {
	Reply          string   `json:"reply"`
	Confidence     float64  `json:"confidence"`
	RequiresReview bool     `json:"requires_review"`
	Reasoning      string   `json:"reasoning"`
	UsedArticles   []string `json:"used_articles"`
}

// GenerateReply drafts a customer reply. Unlike Classify there is no
// fallback: sending a wrong reply is worse than sending none, so any
// malformed output is a hard failure.
func (c *Client) GenerateReply(ctx context.Context, req *out.ReplyRequest) (*domain.ReplyResult, error) {
	maskedBody, tokens := masking.Mask(req.Body)

	systemPrompt := buildReplySystemPrompt(req.Category, req.Articles)
	userPrompt := fmt.Sprintf("Subject: %s\n\nCustomer email:\n%s", req.Subject, truncateBody(maskedBody, 4000))

	resp, err := c.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	result, err := parseReply(resp)
	if err != nil {
		return nil, err
	}

	// Restore anything the service echoed back, then greet by name.
	result.Reply = masking.Unmask(result.Reply, tokens)
	result.Reply = prependGreeting(result.Reply, req.CustomerName)

	return result, nil
}

func buildReplySystemPrompt(category string, articles []*domain.KnowledgeArticle) string {
	var kb strings.Builder
	n := len(articles)
	if n > maxArticlesInPrompt {
		n = maxArticlesInPrompt
	}
	for _, a := range articles[:n] {
		kb.WriteString(fmt.Sprintf("### %s\n%s\n\n", a.Title, a.Content))
	}
	kbSection := "No knowledge base articles available for this category."
	if kb.Len() > 0 {
		kbSection = kb.String()
	}

	return fmt.Sprintf(`You are a support agent drafting a reply to a customer email in the "%s" category.

Knowledge base:
%s
Rules:
- Ground your answer in the knowledge base above. Never invent policy.
- Be concise, polite and specific. Do not include a greeting line or signature.
- Set confidence between 0.0 and 1.0 for how well the knowledge base covers the question.
- Set requires_review to true when the question involves refunds over policy limits,
  legal matters, account deletion, or anything the knowledge base does not cover.
- List the titles of articles you used in used_articles.

Respond with this exact JSON format:
{
  "reply": "the reply body",
  "confidence": 0.0-1.0,
  "requires_review": true|false,
  "reasoning": "one sentence on confidence",
  "used_articles": ["title1"]
}`, category, kbSection)
}

// parseReply validates the raw response strictly.
func parseReply(raw string) (*domain.ReplyResult, error) {
	raw = stripCodeFences(raw)

	var resp replyResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, malformedReply(fmt.Errorf("invalid reply json: %w", err))
	}
	if strings.TrimSpace(resp.Reply) == "" {
		return nil, malformedReply(fmt.Errorf("empty reply body"))
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return nil, malformedReply(fmt.Errorf("confidence %f out of range", resp.Confidence))
	}

	return &domain.ReplyResult{
		Reply:          resp.Reply,
		Confidence:     resp.Confidence,
		RequiresReview: resp.RequiresReview,
		Reasoning:      resp.Reasoning,
		UsedArticles:   resp.UsedArticles,
	}, nil
}

func malformedReply(err error) error {
	return apperr.MalformedResponse("reasoning", err)
}

func prependGreeting(reply, customerName string) string {
	greeting := "Hello,"
	if customerName != "" {
		greeting = fmt.Sprintf("Dear %s,", customerName)
	}
	return greeting + "\n\n" + reply
}
