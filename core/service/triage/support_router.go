// Package triage implements the message processing pipeline: claim,
// classify, generate, route, and the supporting retry/audit/escalation
// machinery.
package triage

import "support_server/core/domain"

// Outcome is the routing decision for a processed message.
type Outcome int

const (
	OutcomeEscalate Outcome = iota
	OutcomeAutoSend
	OutcomePendingReview
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEscalate:
		return "escalate"
	case OutcomeAutoSend:
		return "auto_send"
	case OutcomePendingReview:
		return "pending_review"
	default:
		return "unknown"
	}
}

// Decision couples the routing outcome with the target states.
type Decision struct {
	Outcome       Outcome
	MessageStatus domain.Status
	DraftStatus   domain.ReplyStatus
}

// Decide applies the routing rules. Escalation wins unconditionally.
// Auto-send requires the generation confidence to clear the threshold
// AND the generator to not have flagged the draft for review; every
// other case lands in the human review queue.
//
// generation may be nil only when the classification escalates, since
// escalated messages never reach generation.
func Decide(classification *domain.ClassificationResult, generation *domain.ReplyResult, threshold float64) Decision {
	if classification.RequiresEscalation {
		return Decision{
			Outcome:       OutcomeEscalate,
			MessageStatus: domain.StatusEscalated,
		}
	}

	if generation.Confidence >= threshold && !generation.RequiresReview {
		return Decision{
			Outcome:       OutcomeAutoSend,
			MessageStatus: domain.StatusReplied,
			DraftStatus:   domain.ReplyStatusApproved,
		}
	}

	return Decision{
		Outcome:       OutcomePendingReview,
		MessageStatus: domain.StatusPendingReview,
		DraftStatus:   domain.ReplyStatusPendingApproval,
	}
}
