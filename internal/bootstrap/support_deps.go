package bootstrap

import (
	"context"
	"strings"
	"time"

	"support_server/adapter/out/mail"
	"support_server/adapter/out/mongodb"
	"support_server/adapter/out/persistence"
	"support_server/config"
	"support_server/core/llm"
	"support_server/core/port/out"
	"support_server/core/service/knowledge"
	"support_server/core/service/triage"
	"support_server/infra/database"
	"support_server/internal/stream"
	"support_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Dependencies wires every adapter and service in the system. The
// worker and the API share one instance each per process.
type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	MessageRepo   out.MessageRepository
	ReplyRepo     out.ReplyRepository
	CategoryRepo  out.CategoryRepository
	KnowledgeRepo out.KnowledgeRepository
	AuditRepo     out.AuditLogRepository
	StaffRepo     out.StaffRepository
	BodyArchive   out.BodyArchive

	// Messaging
	Stream   *stream.RedisStream
	Producer out.JobProducer

	// Outbound
	LLMClient *llm.Client
	Sender    *mail.SMTPSender

	// Services
	Recorder *triage.Recorder
	Selector *knowledge.Selector
	Ingest   *triage.IngestService
	Pipeline *triage.Pipeline
	Notifier *triage.Notifier
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	fail := func(err error) (*Dependencies, func(), error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return nil, nil, err
	}

	// Database (pgxpool for health checks and pool stats)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return fail(err)
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx for the adapters)
	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		return fail(err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis (job queue)
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		return fail(err)
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })

	// MongoDB (body archive, optional)
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			logger.WithError(err).Warn("MongoDB connection failed, bodies stay in Postgres only")
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			archive := mongodb.NewBodyArchiveAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := archive.EnsureIndexes(context.Background()); err != nil {
				logger.WithError(err).Warn("Failed to ensure archive indexes")
			}
			deps.BodyArchive = archive
		}
	}

	// Repositories
	deps.MessageRepo = persistence.NewMessageAdapter(sqlDB)
	deps.ReplyRepo = persistence.NewReplyAdapter(sqlDB)
	deps.CategoryRepo = persistence.NewCategoryAdapter(sqlDB)
	deps.KnowledgeRepo = persistence.NewKnowledgeAdapter(sqlDB)
	deps.AuditRepo = persistence.NewAuditLogAdapter(sqlDB)
	deps.StaffRepo = persistence.NewStaffAdapter(sqlDB)

	// Job queue (Redis Streams)
	deps.Stream = stream.NewRedisStream(redisClient, "support-workers").
		WithConsumeOptions(int64(cfg.ConsumerBatchSize), time.Duration(cfg.ConsumerBlockMS)*time.Millisecond)
	deps.Producer = stream.NewProducer(deps.Stream)

	// Reasoning client. With an empty key every call fails and the
	// pipeline takes the fallback classification path.
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, classification will fall back to defaults")
	}
	deps.LLMClient = llm.NewClient(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     time.Duration(cfg.LLMTimeoutSec) * time.Second,
	})

	// Outbound mail
	deps.Sender = mail.NewSMTPSender(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFromEmail,
		FromName: cfg.SMTPFromName,
		UseTLS:   cfg.SMTPUseTLS,
	})

	// Services
	deps.Recorder = triage.NewRecorder(deps.AuditRepo)
	deps.Selector = knowledge.NewSelector(deps.KnowledgeRepo, cfg.KnowledgeArticleLimit)
	deps.Ingest = triage.NewIngestService(deps.MessageRepo, deps.BodyArchive, deps.Producer, deps.Recorder)
	deps.Notifier = triage.NewNotifier(deps.StaffRepo, deps.Sender)
	deps.Pipeline = triage.NewPipeline(
		triage.Config{
			AutoSendThreshold:     cfg.AutoSendThreshold,
			MaxRetryAttempts:      cfg.MaxRetryAttempts,
			BaseRetryDelay:        cfg.BaseRetryDelay(),
			KnowledgeArticleLimit: cfg.KnowledgeArticleLimit,
		},
		deps.MessageRepo,
		deps.ReplyRepo,
		deps.CategoryRepo,
		deps.Selector,
		deps.LLMClient,
		deps.Sender,
		deps.Producer,
		deps.Recorder,
	)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	return deps, cleanup, nil
}

func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if err := d.DB.Ping(ctx); err != nil {
		return err
	}
	return d.Redis.Ping(ctx).Err()
}
