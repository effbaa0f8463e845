package worker

import (
	"context"
	"time"

	"support_server/core/port/out"
	"support_server/core/service/triage"
	"support_server/pkg/logger"
)

// TriageProcessor executes triage jobs pulled off the work queue.
type TriageProcessor struct {
	pipeline *triage.Pipeline
	notifier *triage.Notifier
	messages out.MessageRepository
	logs     out.AuditLogRepository
}

func NewTriageProcessor(
	pipeline *triage.Pipeline,
	notifier *triage.Notifier,
	messages out.MessageRepository,
	logs out.AuditLogRepository,
) *TriageProcessor {
	return &TriageProcessor{
		pipeline: pipeline,
		notifier: notifier,
		messages: messages,
		logs:     logs,
	}
}

// ProcessTriage runs the full pipeline for one message.
func (p *TriageProcessor) ProcessTriage(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[TriagePayload](msg)
	if err != nil {
		logger.WithError(err).Error("Invalid triage payload")
		return err
	}

	force := payload.Force || msg.Type == JobTriageReprocess
	return p.pipeline.Run(ctx, payload.MessageID, force)
}

// ProcessEscalation fans the escalation notification out to staff.
func (p *TriageProcessor) ProcessEscalation(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[EscalationPayload](msg)
	if err != nil {
		logger.WithError(err).Error("Invalid escalation payload")
		return err
	}

	message, err := p.messages.GetByID(ctx, payload.MessageID)
	if err != nil {
		return err
	}

	return p.notifier.Notify(ctx, message)
}

// ProcessCleanup removes audit entries past the retention window.
func (p *TriageProcessor) ProcessCleanup(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[CleanupPayload](msg)
	if err != nil {
		logger.WithError(err).Error("Invalid cleanup payload")
		return err
	}

	retention := payload.RetentionDays
	if retention <= 0 {
		retention = 90
	}

	before := time.Now().AddDate(0, 0, -retention)
	deleted, err := p.logs.DeleteOlderThan(ctx, before)
	if err != nil {
		return err
	}

	logger.Info("Audit cleanup removed %d entries older than %s", deleted, before.Format(time.DateOnly))
	return nil
}
