package worker

import (
	"time"

	"github.com/google/uuid"
)

// Priority levels for job scheduling.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 1
	PriorityHigh     Priority = 2
	PriorityCritical Priority = 3
)

// JobType represents the type of a job.
type JobType = string

// Job types
const (
	JobTriageProcess    JobType = "triage.process"
	JobTriageReprocess  JobType = "triage.reprocess"
	JobEscalationNotify JobType = "escalation.notify"
	JobAuditCleanup     JobType = "audit.cleanup"
)

type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Priority  Priority       `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewMessage(jobType string, payload map[string]any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		Priority:  PriorityNormal,
		CreatedAt: time.Now(),
	}
}

// NewPriorityMessage creates a message with specific priority.
func NewPriorityMessage(jobType string, payload map[string]any, priority Priority) *Message {
	msg := NewMessage(jobType, payload)
	msg.Priority = priority
	return msg
}

// IsPriority checks if message should go to the priority queue.
func (m *Message) IsPriority() bool {
	return m.Priority >= PriorityHigh
}

// TriagePayload carries a message through the triage pipeline.
type TriagePayload struct {
	MessageID int64 `json:"message_id"`
	Force     bool  `json:"force,omitempty"`
}

// EscalationPayload fans an escalated message out to staff.
type EscalationPayload struct {
	MessageID int64 `json:"message_id"`
}

// CleanupPayload sweeps expired audit entries.
type CleanupPayload struct {
	RetentionDays int `json:"retention_days"`
}
