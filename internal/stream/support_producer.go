package stream

import (
	"context"
	"time"

	"support_server/core/port/out"

	"github.com/google/uuid"
)

// Producer implements out.JobProducer on Redis Streams.
type Producer struct {
	stream *RedisStream
}

func NewProducer(stream *RedisStream) *Producer {
	return &Producer{stream: stream}
}

type Job struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func (p *Producer) PublishTriage(ctx context.Context, messageID int64, force bool) (string, error) {
	job := &Job{
		ID:   uuid.New().String(),
		Type: "triage.process",
		Payload: map[string]any{
			"message_id": messageID,
			"force":      force,
		},
		CreatedAt: time.Now(),
	}
	return p.stream.Publish(ctx, StreamTriage, job)
}

func (p *Producer) PublishReprocess(ctx context.Context, messageID int64) (string, error) {
	job := &Job{
		ID:   uuid.New().String(),
		Type: "triage.reprocess",
		Payload: map[string]any{
			"message_id": messageID,
		},
		CreatedAt: time.Now(),
	}
	return p.stream.Publish(ctx, StreamTriage, job)
}

func (p *Producer) PublishEscalation(ctx context.Context, messageID int64) (string, error) {
	job := &Job{
		ID:   uuid.New().String(),
		Type: "escalation.notify",
		Payload: map[string]any{
			"message_id": messageID,
		},
		CreatedAt: time.Now(),
	}
	return p.stream.Publish(ctx, StreamEscalation, job)
}

func (p *Producer) PublishCleanup(ctx context.Context, retentionDays int) (string, error) {
	job := &Job{
		ID:   uuid.New().String(),
		Type: "audit.cleanup",
		Payload: map[string]any{
			"retention_days": retentionDays,
		},
		CreatedAt: time.Now(),
	}
	return p.stream.Publish(ctx, StreamMaintenance, job)
}

var _ out.JobProducer = (*Producer)(nil)
