package domain

import "testing"

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"claim new message", StatusNew, StatusProcessing, true},
		{"route to pending review", StatusProcessing, StatusPendingReview, true},
		{"route to escalated", StatusProcessing, StatusEscalated, true},
		{"auto send completes", StatusProcessing, StatusReplied, true},
		{"failure recovery", StatusProcessing, StatusNew, true},
		{"review approved", StatusPendingReview, StatusReplied, true},
		{"skip processing", StatusNew, StatusReplied, false},
		{"reopen replied", StatusReplied, StatusProcessing, false},
		{"reopen closed", StatusClosed, StatusNew, false},
		{"spam is final", StatusSpam, StatusProcessing, false},
		{"pending review back to new", StatusPendingReview, StatusNew, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusReplied, StatusClosed, StatusSpam}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	active := []Status{StatusNew, StatusProcessing, StatusPendingReview, StatusEscalated}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestReplyStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    ReplyStatus
		to      ReplyStatus
		allowed bool
	}{
		{"draft to pending approval", ReplyStatusDraft, ReplyStatusPendingApproval, true},
		{"draft to approved", ReplyStatusDraft, ReplyStatusApproved, true},
		{"approved to sent", ReplyStatusApproved, ReplyStatusSent, true},
		{"draft straight to sent", ReplyStatusDraft, ReplyStatusSent, false},
		{"pending approval to sent", ReplyStatusPendingApproval, ReplyStatusSent, false},
		{"rejected to sent", ReplyStatusRejected, ReplyStatusSent, false},
		{"sent is final", ReplyStatusSent, ReplyStatusDraft, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestParsePriority(t *testing.T) {
	if got := ParsePriority("urgent"); got != PriorityUrgent {
		t.Errorf("expected urgent, got %s", got)
	}
	if got := ParsePriority("nonsense"); got != PriorityMedium {
		t.Errorf("expected medium fallback, got %s", got)
	}
	if got := ParsePriority(""); got != PriorityMedium {
		t.Errorf("expected medium fallback for empty, got %s", got)
	}
}

func TestCustomerName(t *testing.T) {
	msg := &InboundMessage{FromName: "Jamie"}
	if got := msg.CustomerName(); got != "Jamie" {
		t.Errorf("expected from name, got %q", got)
	}

	msg.ExtractedInfo = map[string]any{"customer_name": "Jamie Park"}
	if got := msg.CustomerName(); got != "Jamie Park" {
		t.Errorf("expected extracted name, got %q", got)
	}

	msg.ExtractedInfo = map[string]any{"customer_name": ""}
	if got := msg.CustomerName(); got != "Jamie" {
		t.Errorf("expected fallback to from name, got %q", got)
	}
}
