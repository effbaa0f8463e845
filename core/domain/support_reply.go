package domain

import "time"

// ReplyStatus represents the lifecycle state of a reply draft.
type ReplyStatus string

const (
	ReplyStatusDraft           ReplyStatus = "draft"
	ReplyStatusPendingApproval ReplyStatus = "pending_approval"
	ReplyStatusApproved        ReplyStatus = "approved"
	ReplyStatusRejected        ReplyStatus = "rejected"
	ReplyStatusSent            ReplyStatus = "sent"
)

// replyTransitions defines the legal draft status transitions.
// sent is reachable from approved only.
var replyTransitions = map[ReplyStatus][]ReplyStatus{
	ReplyStatusDraft:           {ReplyStatusPendingApproval, ReplyStatusApproved, ReplyStatusRejected},
	ReplyStatusPendingApproval: {ReplyStatusApproved, ReplyStatusRejected},
	ReplyStatusApproved:        {ReplyStatusSent, ReplyStatusRejected},
	ReplyStatusRejected:        {},
	ReplyStatusSent:            {},
}

// CanTransitionTo reports whether moving to next is a legal transition.
func (s ReplyStatus) CanTransitionTo(next ReplyStatus) bool {
	for _, allowed := range replyTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReplyOrigin records who produced the reply body.
type ReplyOrigin string

const (
	OriginAI         ReplyOrigin = "ai"
	OriginHuman      ReplyOrigin = "human"
	OriginAIModified ReplyOrigin = "ai_modified"
)

// ReplyDraft is a generated or hand-written reply to an inbound message.
type ReplyDraft struct {
	ID        int64       `json:"id"`
	MessageID int64       `json:"message_id"`
	Body      string      `json:"body"`
	Origin    ReplyOrigin `json:"origin"`
	Status    ReplyStatus `json:"status"`

	Confidence     float64 `json:"confidence"`
	RequiresReview bool    `json:"requires_review"`
	Reasoning      string  `json:"reasoning,omitempty"`

	// Knowledge articles consulted during generation
	ArticleIDs []int64 `json:"article_ids,omitempty"`

	ReviewedBy string     `json:"reviewed_by,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
