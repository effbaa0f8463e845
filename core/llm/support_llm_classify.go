package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"support_server/core/domain"
	"support_server/core/service/masking"
	"support_server/pkg/logger"
)

// classificationResponse is the wire format expected from the service.
type classificationResponse struct {
	Category           string         `json:"category"`
	Confidence         float64        `json:"confidence"`
	Priority           string         `json:"priority"`
	Sentiment          string         `json:"sentiment"`
	RequiresEscalation bool           `json:"requires_escalation"`
	EscalationReason   string         `json:"escalation_reason"`
	ExtractedInfo      map[string]any `json:"extracted_info"`
}

// fallbackClassification is returned whenever the service output cannot
// be validated. A wrong-but-safe bucket beats a stuck message.
func fallbackClassification() *domain.ClassificationResult {
	return &domain.ClassificationResult{
		Category:           "general",
		Confidence:         0.5,
		Priority:           domain.PriorityMedium,
		Sentiment:          domain.SentimentNeutral,
		RequiresEscalation: false,
		ExtractedInfo:      map[string]any{"issue_summary": "classification unavailable"},
	}
}

// Classify categorizes a message. Sensitive data is masked before the
// body leaves the process. Transport errors propagate (retryable);
// malformed output degrades to the fallback result.
func (c *Client) Classify(ctx context.Context, subject, body string, categories []*domain.Category) (*domain.ClassificationResult, error) {
	maskedBody, _ := masking.Mask(body)

	systemPrompt := buildClassifySystemPrompt(categories)
	userPrompt := fmt.Sprintf("Subject: %s\n\nBody:\n%s", subject, truncateBody(maskedBody, 4000))

	resp, err := c.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	result, err := parseClassification(resp, categories)
	if err != nil {
		logger.Warn("Classification response rejected, using fallback: %v", err)
		return fallbackClassification(), nil
	}
	return result, nil
}

func buildClassifySystemPrompt(categories []*domain.Category) string {
	var catLines strings.Builder
	for _, cat := range categories {
		catLines.WriteString(fmt.Sprintf("- %s: %s\n", cat.Name, cat.Description))
	}

	return fmt.Sprintf(`You are a support email triage AI. Analyze the email and respond with JSON only.

Categories (pick ONE):
%s
Priority: low, medium, high, urgent
Sentiment: positive, neutral, negative

Set requires_escalation to true only for legal threats, severe anger,
account security incidents, or explicit requests for a manager.

Extract structured details into extracted_info where present:
customer_name, product, order_id, issue_summary.

Respond with this exact JSON format:
{
  "category": "category_name",
  "confidence": 0.0-1.0,
  "priority": "low|medium|high|urgent",
  "sentiment": "positive|neutral|negative",
  "requires_escalation": true|false,
  "escalation_reason": "reason or empty",
  "extracted_info": {}
}`, catLines.String())
}

// parseClassification validates the raw response against the schema and
// the known category set.
func parseClassification(raw string, categories []*domain.Category) (*domain.ClassificationResult, error) {
	raw = stripCodeFences(raw)

	var resp classificationResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("invalid classification json: %w", err)
	}

	if resp.Confidence < 0 || resp.Confidence > 1 {
		return nil, fmt.Errorf("confidence %f out of range", resp.Confidence)
	}

	known := false
	for _, cat := range categories {
		if cat.Name == resp.Category {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown category %q", resp.Category)
	}

	return &domain.ClassificationResult{
		Category:           resp.Category,
		Confidence:         resp.Confidence,
		Priority:           domain.ParsePriority(resp.Priority),
		Sentiment:          domain.ParseSentiment(resp.Sentiment),
		RequiresEscalation: resp.RequiresEscalation,
		EscalationReason:   resp.EscalationReason,
		ExtractedInfo:      resp.ExtractedInfo,
	}, nil
}
