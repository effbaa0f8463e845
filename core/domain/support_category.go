package domain

import "time"

// Category is a support topic used for classification and routing policy.
type Category struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	Keywords           []string  `json:"keywords,omitempty"`
	AutoReplyEnabled   bool      `json:"auto_reply_enabled"`
	EscalationRequired bool      `json:"escalation_required"`
	SLAHours           int       `json:"sla_hours"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultCategoryNames is the seed taxonomy used when none is configured.
var DefaultCategoryNames = []string{
	"billing",
	"technical",
	"sales",
	"general",
	"complaint",
	"feature_request",
	"other",
}

// KnowledgeArticle is a curated answer used as context for reply generation.
type KnowledgeArticle struct {
	ID         int64     `json:"id"`
	CategoryID int64     `json:"category_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Keywords   []string  `json:"keywords,omitempty"`
	UseCount   int64     `json:"use_count"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
