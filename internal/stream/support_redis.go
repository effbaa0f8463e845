package stream

import (
	"context"
	"time"

	"support_server/pkg/logger"

	"github.com/goccy/go-json"

	"github.com/redis/go-redis/v9"
)

const (
	StreamTriage      = "triage:process"
	StreamEscalation  = "escalation:notify"
	StreamMaintenance = "maintenance:jobs"
)

const (
	defaultBatchSize = 10
	defaultBlock     = 5 * time.Second
)

type RedisStream struct {
	client    *redis.Client
	group     string
	batchSize int64
	block     time.Duration
}

func NewRedisStream(client *redis.Client, group string) *RedisStream {
	return &RedisStream{
		client:    client,
		group:     group,
		batchSize: defaultBatchSize,
		block:     defaultBlock,
	}
}

// WithConsumeOptions overrides how many entries a read pulls and how
// long it blocks waiting for new ones. Zero values keep the defaults.
func (s *RedisStream) WithConsumeOptions(batchSize int64, block time.Duration) *RedisStream {
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if block > 0 {
		s.block = block
	}
	return s
}

func (s *RedisStream) CreateGroup(ctx context.Context, stream string) error {
	err := s.client.XGroupCreateMkStream(ctx, stream, s.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

func (s *RedisStream) Publish(ctx context.Context, stream string, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": jsonData},
	}).Result()
}

// Consume reads jobs for this consumer until ctx is cancelled. A job is
// acknowledged only after the handler succeeds, so unacked jobs are
// redelivered after a crash.
func (s *RedisStream) Consume(ctx context.Context, stream, consumer string, handler func(id string, data []byte) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    s.batchSize,
			Block:    s.block,
		}).Result()

		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				logger.WithError(err).Error("Stream read error on %s", stream)
			}
			continue
		}

		for _, str := range streams {
			for _, msg := range str.Messages {
				data, ok := msg.Values["data"].(string)
				if !ok {
					continue
				}

				if err := handler(msg.ID, []byte(data)); err != nil {
					logger.WithError(err).Error("Handler error for %s", msg.ID)
					continue
				}

				s.client.XAck(ctx, str.Stream, s.group, msg.ID)
			}
		}
	}
}

func (s *RedisStream) Ack(ctx context.Context, stream, id string) error {
	return s.client.XAck(ctx, stream, s.group, id).Err()
}

func (s *RedisStream) Pending(ctx context.Context, stream string) (int64, error) {
	info, err := s.client.XPending(ctx, stream, s.group).Result()
	if err != nil {
		return 0, err
	}
	return info.Count, nil
}
