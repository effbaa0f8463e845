package domain

import "time"

// Status represents the triage lifecycle state of an inbound message.
type Status string

const (
	StatusNew           Status = "new"
	StatusProcessing    Status = "processing"
	StatusPendingReview Status = "pending_review"
	StatusEscalated     Status = "escalated"
	StatusReplied       Status = "replied"
	StatusClosed        Status = "closed"
	StatusSpam          Status = "spam"
)

// statusTransitions defines the legal status transitions.
// processing -> new is the failure-recovery path only.
var statusTransitions = map[Status][]Status{
	StatusNew:           {StatusProcessing, StatusClosed, StatusSpam},
	StatusProcessing:    {StatusPendingReview, StatusEscalated, StatusReplied, StatusSpam, StatusNew},
	StatusPendingReview: {StatusReplied, StatusEscalated, StatusClosed},
	StatusEscalated:     {StatusReplied, StatusClosed},
	StatusReplied:       {StatusClosed},
	StatusClosed:        {},
	StatusSpam:          {},
}

// IsTerminal reports whether no further automated processing applies.
func (s Status) IsTerminal() bool {
	return s == StatusReplied || s == StatusClosed || s == StatusSpam
}

// CanTransitionTo reports whether moving to next is a legal transition.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Priority represents urgency assigned during classification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps a raw string to a Priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(s)
	default:
		return PriorityMedium
	}
}

// Sentiment is the classified emotional tone of a message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment maps a raw string to a Sentiment, defaulting to neutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(s) {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return Sentiment(s)
	default:
		return SentimentNeutral
	}
}

// InboundMessage is a support email moving through the triage pipeline.
type InboundMessage struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id"`

	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name,omitempty"`
	ToEmail   string `json:"to_email"`
	Subject   string `json:"subject"`
	BodyText  string `json:"body_text"`
	BodyHTML  string `json:"body_html,omitempty"`

	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	// Classification results
	CategoryID         *int64         `json:"category_id,omitempty"`
	CategoryName       string         `json:"category_name,omitempty"`
	Confidence         float64        `json:"confidence"`
	Sentiment          Sentiment      `json:"sentiment"`
	RequiresEscalation bool           `json:"requires_escalation"`
	EscalationReason   string         `json:"escalation_reason,omitempty"`
	ExtractedInfo      map[string]any `json:"extracted_info,omitempty"`

	HasAttachments bool `json:"has_attachments"`

	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	RepliedAt   *time.Time `json:"replied_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CustomerName returns the best available display name for the sender.
func (m *InboundMessage) CustomerName() string {
	if m.ExtractedInfo != nil {
		if name, ok := m.ExtractedInfo["customer_name"].(string); ok && name != "" {
			return name
		}
	}
	return m.FromName
}

// AttachmentMeta describes an attachment without carrying its content.
type AttachmentMeta struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// RawMessage is a parsed inbound email before it enters the pipeline.
type RawMessage struct {
	ExternalID  string           `json:"external_id"`
	FromEmail   string           `json:"from_email"`
	FromName    string           `json:"from_name,omitempty"`
	ToEmail     string           `json:"to_email"`
	Subject     string           `json:"subject"`
	BodyText    string           `json:"body_text"`
	BodyHTML    string           `json:"body_html,omitempty"`
	Raw         string           `json:"-"`
	Attachments []AttachmentMeta `json:"attachments,omitempty"`
	ReceivedAt  time.Time        `json:"received_at"`
}
