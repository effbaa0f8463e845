package triage

import (
	"context"
	"time"

	"support_server/core/domain"
	"support_server/core/port/out"
	"support_server/pkg/logger"
)

// Recorder appends audit entries for pipeline steps. A failed audit
// write is logged but never fails the step it describes.
type Recorder struct {
	logs out.AuditLogRepository
}

func NewRecorder(logs out.AuditLogRepository) *Recorder {
	return &Recorder{logs: logs}
}

// Started records the beginning of a step.
func (r *Recorder) Started(ctx context.Context, messageID int64, step string, details map[string]any) {
	r.append(ctx, &domain.ProcessingLogEntry{
		MessageID: messageID,
		Step:      step,
		Status:    domain.StepStarted,
		Details:   details,
	})
}

// Completed records a successful step with its duration.
func (r *Recorder) Completed(ctx context.Context, messageID int64, step string, details map[string]any, startedAt time.Time) {
	duration := time.Since(startedAt).Seconds()
	r.append(ctx, &domain.ProcessingLogEntry{
		MessageID:   messageID,
		Step:        step,
		Status:      domain.StepCompleted,
		Details:     details,
		DurationSec: &duration,
	})
}

// Failed records a failed step with the error message.
func (r *Recorder) Failed(ctx context.Context, messageID int64, step string, stepErr error) {
	entry := &domain.ProcessingLogEntry{
		MessageID: messageID,
		Step:      step,
		Status:    domain.StepFailed,
	}
	if stepErr != nil {
		entry.ErrorMessage = stepErr.Error()
	}
	r.append(ctx, entry)
}

func (r *Recorder) append(ctx context.Context, entry *domain.ProcessingLogEntry) {
	entry.CreatedAt = time.Now()
	if err := r.logs.Append(ctx, entry); err != nil {
		logger.WithMessageID(entry.MessageID).Error("Failed to append audit entry for step %s: %v", entry.Step, err)
	}
}
