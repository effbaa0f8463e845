package worker

import (
	"context"

	"support_server/pkg/logger"

	"github.com/goccy/go-json"
)

type Handler struct {
	triageProcessor *TriageProcessor
}

func NewHandler(triageProcessor *TriageProcessor) *Handler {
	return &Handler{
		triageProcessor: triageProcessor,
	}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing message: %s", msg.Type)

	switch msg.Type {
	case JobTriageProcess, JobTriageReprocess:
		return h.triageProcessor.ProcessTriage(ctx, msg)
	case JobEscalationNotify:
		return h.triageProcessor.ProcessEscalation(ctx, msg)
	case JobAuditCleanup:
		return h.triageProcessor.ProcessCleanup(ctx, msg)
	default:
		logger.Warn("Unknown job type: %s", msg.Type)
		return nil
	}
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
