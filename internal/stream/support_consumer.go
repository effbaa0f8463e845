package stream

import (
	"context"
	"errors"

	"support_server/adapter/in/worker"
	"support_server/pkg/logger"

	"github.com/goccy/go-json"
)

// Unacked jobs are redelivered once the pool has room again.
var errPoolSaturated = errors.New("worker pool saturated")

// Consumer bridges Redis Streams to the worker pool.
type Consumer struct {
	stream *RedisStream
	pool   *worker.Pool
	name   string
}

func NewConsumer(stream *RedisStream, pool *worker.Pool, name string) *Consumer {
	return &Consumer{
		stream: stream,
		pool:   pool,
		name:   name,
	}
}

func (c *Consumer) Start(ctx context.Context) {
	streams := []string{StreamTriage, StreamEscalation, StreamMaintenance}
	for _, s := range streams {
		if err := c.stream.CreateGroup(ctx, s); err != nil {
			logger.WithError(err).Error("Failed to create group for %s", s)
		}
	}

	go c.consume(ctx, StreamTriage)
	go c.consume(ctx, StreamEscalation)
	go c.consume(ctx, StreamMaintenance)
}

func (c *Consumer) consume(ctx context.Context, stream string) {
	c.stream.Consume(ctx, stream, c.name, func(id string, data []byte) error {
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			logger.WithError(err).Error("Failed to unmarshal job %s", id)
			return err
		}

		msg := &worker.Message{
			ID:        job.ID,
			Type:      job.Type,
			Payload:   job.Payload,
			CreatedAt: job.CreatedAt,
		}
		if msg.Type == worker.JobEscalationNotify {
			msg.Priority = worker.PriorityHigh
		}

		if !c.pool.Submit(msg) {
			logger.Warn("Pool rejected job %s (%s), leaving unacked", job.ID, job.Type)
			return errPoolSaturated
		}
		return nil
	})
}
