package domain

// ClassificationResult is the validated output of the classification call.
type ClassificationResult struct {
	Category           string         `json:"category"`
	Confidence         float64        `json:"confidence"`
	Priority           Priority       `json:"priority"`
	Sentiment          Sentiment      `json:"sentiment"`
	RequiresEscalation bool           `json:"requires_escalation"`
	EscalationReason   string         `json:"escalation_reason,omitempty"`
	ExtractedInfo      map[string]any `json:"extracted_info,omitempty"`
}

// ReplyResult is the validated output of the reply-generation call.
type ReplyResult struct {
	Reply          string   `json:"reply"`
	Confidence     float64  `json:"confidence"`
	RequiresReview bool     `json:"requires_review"`
	Reasoning      string   `json:"reasoning,omitempty"`
	UsedArticles   []string `json:"used_articles,omitempty"`
}
