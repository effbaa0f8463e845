package triage

import (
	"testing"

	"support_server/core/domain"
)

func TestDecideRoutingTable(t *testing.T) {
	threshold := 0.80

	tests := []struct {
		name       string
		escalate   bool
		confidence float64
		review     bool
		want       Outcome
	}{
		{"below threshold", false, 0.79, false, OutcomePendingReview},
		{"just above threshold", false, 0.81, false, OutcomeAutoSend},
		{"exactly at threshold", false, 0.80, false, OutcomeAutoSend},
		{"high confidence but flagged", false, 0.95, true, OutcomePendingReview},
		{"low confidence and flagged", false, 0.30, true, OutcomePendingReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classification := &domain.ClassificationResult{RequiresEscalation: tt.escalate}
			generation := &domain.ReplyResult{Confidence: tt.confidence, RequiresReview: tt.review}

			d := Decide(classification, generation, threshold)
			if d.Outcome != tt.want {
				t.Errorf("got %s, want %s", d.Outcome, tt.want)
			}
		})
	}
}

func TestDecideEscalationWins(t *testing.T) {
	classification := &domain.ClassificationResult{RequiresEscalation: true}

	// Escalation is decided before generation runs, so nil is legal here.
	d := Decide(classification, nil, 0.80)
	if d.Outcome != OutcomeEscalate {
		t.Errorf("expected escalate, got %s", d.Outcome)
	}
	if d.MessageStatus != domain.StatusEscalated {
		t.Errorf("expected escalated status, got %s", d.MessageStatus)
	}

	// Even a perfect generation cannot override escalation.
	perfect := &domain.ReplyResult{Confidence: 1.0, RequiresReview: false}
	if d := Decide(classification, perfect, 0.80); d.Outcome != OutcomeEscalate {
		t.Errorf("escalation must take precedence, got %s", d.Outcome)
	}
}

func TestDecideTargetStates(t *testing.T) {
	classification := &domain.ClassificationResult{}

	send := Decide(classification, &domain.ReplyResult{Confidence: 0.9}, 0.8)
	if send.MessageStatus != domain.StatusReplied || send.DraftStatus != domain.ReplyStatusApproved {
		t.Errorf("auto-send states wrong: %s/%s", send.MessageStatus, send.DraftStatus)
	}

	review := Decide(classification, &domain.ReplyResult{Confidence: 0.5}, 0.8)
	if review.MessageStatus != domain.StatusPendingReview || review.DraftStatus != domain.ReplyStatusPendingApproval {
		t.Errorf("review states wrong: %s/%s", review.MessageStatus, review.DraftStatus)
	}
}
