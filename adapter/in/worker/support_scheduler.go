package worker

import (
	"context"
	"time"

	"support_server/core/domain"
	"support_server/core/port/out"
	"support_server/pkg/logger"
)

const recoveryBatchSize = 100

// RecoveryScheduler re-enqueues messages stuck in status new. It is the
// backstop for lost jobs: enqueue failures at ingestion, worker crashes
// after a claim release, and DLQ'd runs all leave the message in new.
type RecoveryScheduler struct {
	messages out.MessageRepository
	producer out.JobProducer
	interval time.Duration
	minAge   time.Duration
}

func NewRecoveryScheduler(messages out.MessageRepository, producer out.JobProducer, interval, minAge time.Duration) *RecoveryScheduler {
	return &RecoveryScheduler{
		messages: messages,
		producer: producer,
		interval: interval,
		minAge:   minAge,
	}
}

// Start runs the recovery scan loop until ctx is cancelled.
func (s *RecoveryScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info("Recovery scheduler started (interval %v, min age %v)", s.interval, s.minAge)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Recovery scheduler stopped")
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *RecoveryScheduler) scan(ctx context.Context) {
	cutoff := time.Now().Add(-s.minAge)
	stale, err := s.messages.ListStale(ctx, domain.StatusNew, cutoff, recoveryBatchSize)
	if err != nil {
		logger.WithError(err).Error("Recovery scan failed")
		return
	}
	if len(stale) == 0 {
		return
	}

	requeued := 0
	for _, msg := range stale {
		if _, err := s.producer.PublishTriage(ctx, msg.ID, false); err != nil {
			logger.WithMessageID(msg.ID).WithError(err).Warn("Failed to requeue stale message")
			continue
		}
		requeued++
	}

	logger.Info("Recovery scan requeued %d/%d stale messages", requeued, len(stale))
}

// RetentionScheduler periodically enqueues the audit retention sweep.
type RetentionScheduler struct {
	producer      out.JobProducer
	interval      time.Duration
	retentionDays int
}

func NewRetentionScheduler(producer out.JobProducer, interval time.Duration, retentionDays int) *RetentionScheduler {
	return &RetentionScheduler{
		producer:      producer,
		interval:      interval,
		retentionDays: retentionDays,
	}
}

// Start runs the retention loop until ctx is cancelled.
func (s *RetentionScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info("Retention scheduler started (interval %v, retention %dd)", s.interval, s.retentionDays)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Retention scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.producer.PublishCleanup(ctx, s.retentionDays); err != nil {
				logger.WithError(err).Error("Failed to enqueue audit cleanup")
			}
		}
	}
}
