package domain

import "time"

// Pipeline steps recorded in the processing log.
const (
	StepIngestion       = "ingestion"
	StepClassification  = "classification"
	StepReplyGeneration = "reply_generation"
	StepAutoSend        = "auto_send"
	StepEscalation      = "escalation"
	StepProcessing      = "processing"
)

// Step outcomes.
const (
	StepStarted   = "started"
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// ProcessingLogEntry is one append-only audit record for a pipeline step.
type ProcessingLogEntry struct {
	ID           int64          `json:"id"`
	MessageID    int64          `json:"message_id"`
	Step         string         `json:"step"`
	Status       string         `json:"status"`
	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	DurationSec  *float64       `json:"duration_sec,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
