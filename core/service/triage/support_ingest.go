package triage

import (
	"context"
	"time"

	"support_server/core/domain"
	"support_server/core/port/out"
	"support_server/pkg/apperr"
	"support_server/pkg/logger"
)

// IngestService turns parsed inbound mail into pipeline work. The
// external message ID is the dedup key: re-delivery of a message that
// was already ingested is a silent no-op.
type IngestService struct {
	messages out.MessageRepository
	archive  out.BodyArchive
	producer out.JobProducer
	audit    *Recorder
}

func NewIngestService(messages out.MessageRepository, archive out.BodyArchive, producer out.JobProducer, audit *Recorder) *IngestService {
	return &IngestService{
		messages: messages,
		archive:  archive,
		producer: producer,
		audit:    audit,
	}
}

// Ingest stores raw as a new InboundMessage and enqueues a triage job.
// The second return value is false when the message was seen before.
func (s *IngestService) Ingest(ctx context.Context, raw *domain.RawMessage) (*domain.InboundMessage, bool, error) {
	start := time.Now()

	existing, err := s.messages.GetByExternalID(ctx, raw.ExternalID)
	if err != nil && !apperr.IsNotFound(err) {
		return nil, false, err
	}
	if existing != nil {
		logger.Debug("Duplicate delivery of %s ignored", raw.ExternalID)
		return existing, false, nil
	}

	msg := &domain.InboundMessage{
		ExternalID:     raw.ExternalID,
		FromEmail:      raw.FromEmail,
		FromName:       raw.FromName,
		ToEmail:        raw.ToEmail,
		Subject:        raw.Subject,
		BodyText:       raw.BodyText,
		BodyHTML:       raw.BodyHTML,
		Status:         domain.StatusNew,
		Priority:       domain.PriorityMedium,
		Sentiment:      domain.SentimentNeutral,
		HasAttachments: len(raw.Attachments) > 0,
		ReceivedAt:     raw.ReceivedAt,
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		// A concurrent delivery may have won the unique constraint race.
		if apperr.IsConflict(err) {
			if existing, lookupErr := s.messages.GetByExternalID(ctx, raw.ExternalID); lookupErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	s.audit.Completed(ctx, msg.ID, domain.StepIngestion, map[string]any{
		"external_id": msg.ExternalID,
		"from":        msg.FromEmail,
	}, start)

	if s.archive != nil {
		record := &out.BodyRecord{
			MessageID:  msg.ID,
			ExternalID: msg.ExternalID,
			TextBody:   raw.BodyText,
			HTMLBody:   raw.BodyHTML,
			Raw:        raw.Raw,
		}
		if err := s.archive.SaveBody(ctx, record); err != nil {
			// The primary row already holds the text body; archive loss is survivable.
			logger.WithMessageID(msg.ID).WithError(err).Warn("Failed to archive message body")
		}
	}

	if _, err := s.producer.PublishTriage(ctx, msg.ID, false); err != nil {
		// The recovery scan will pick the message up from status new.
		logger.WithMessageID(msg.ID).WithError(err).Warn("Failed to enqueue triage job")
	}

	return msg, true, nil
}
