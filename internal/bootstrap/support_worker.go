package bootstrap

import (
	"context"
	"os"
	"sync"
	"time"

	"support_server/adapter/in/smtpd"
	"support_server/adapter/in/worker"
	"support_server/config"
	"support_server/internal/stream"
	"support_server/pkg/logger"

	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
)

// Worker is the processing half of the system: the SMTP receiver, the
// stream consumer feeding the pool, and the background schedulers.
type Worker struct {
	pool       *worker.Pool
	consumer   *stream.Consumer
	smtpServer *smtp.Server
	deps       *Dependencies

	recovery  *worker.RecoveryScheduler
	retention *worker.RetentionScheduler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	zlog   zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	// Processors and handler
	triageProcessor := worker.NewTriageProcessor(
		deps.Pipeline,
		deps.Notifier,
		deps.MessageRepo,
		deps.AuditRepo,
	)
	handler := worker.NewHandler(triageProcessor)

	// Pool
	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerMax > 0 {
		poolConfig.MaxWorkers = cfg.WorkerMax
	}
	if cfg.WorkerQueueSize > 0 {
		poolConfig.QueueSize = cfg.WorkerQueueSize
	}
	pool := worker.NewPool(handler, poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		pool:       pool,
		consumer:   stream.NewConsumer(deps.Stream, pool, cfg.WorkerID),
		smtpServer: smtpd.NewServer(smtpd.NewBackend(deps.Ingest), smtpd.ServerConfig{
			Addr:           cfg.SMTPListenAddr,
			Domain:         cfg.SMTPDomain,
			MaxMessageSize: cfg.SMTPMaxMessageSize,
		}),
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}

	if cfg.SchedulerEnabled {
		w.recovery = worker.NewRecoveryScheduler(
			deps.MessageRepo,
			deps.Producer,
			time.Duration(cfg.RecoveryScanSec)*time.Second,
			time.Duration(cfg.RecoveryMinAgeSec)*time.Second,
		)
		w.retention = worker.NewRetentionScheduler(
			deps.Producer,
			time.Duration(cfg.RetentionSweepHours)*time.Hour,
			cfg.LogRetentionDays,
		)
	}

	return w, cleanup, nil
}

func (w *Worker) Start() {
	w.pool.Start()
	w.consumer.Start(w.ctx)

	// Inbound SMTP listener
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.zlog.Info().Str("addr", w.smtpServer.Addr).Msg("Starting inbound SMTP server")
		if err := w.smtpServer.ListenAndServe(); err != nil {
			// ListenAndServe returns a closed-listener error on shutdown.
			if w.ctx.Err() == nil {
				w.zlog.Error().Err(err).Msg("SMTP server error")
			}
		}
	}()

	if w.recovery != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.recovery.Start(w.ctx)
		}()
	}
	if w.retention != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.retention.Start(w.ctx)
		}()
	}

	logger.Info("Worker started (id %s)", w.deps.Config.WorkerID)

	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	w.cancel()

	if err := w.smtpServer.Close(); err != nil {
		w.zlog.Warn().Err(err).Msg("SMTP server close error")
	}

	w.pool.Stop()
	w.wg.Wait()
}

func (w *Worker) Submit(msg *worker.Message) bool {
	return w.pool.Submit(msg)
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
