package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int

	// Triage pipeline
	AutoSendThreshold     float64
	MaxRetryAttempts      int
	BaseRetryDelaySec     int
	KnowledgeArticleLimit int

	// Inbound SMTP (receiver)
	SMTPListenAddr     string
	SMTPDomain         string
	SMTPMaxMessageSize int64

	// Outbound SMTP (sender)
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromEmail string
	SMTPFromName  string
	SMTPUseTLS    bool

	// Worker
	WorkerID        string
	WorkerMax       int
	WorkerQueueSize int

	// Consumer (Redis Stream)
	ConsumerBatchSize int
	ConsumerBlockMS   int

	// Schedulers
	SchedulerEnabled    bool
	RecoveryScanSec     int
	RecoveryMinAgeSec   int
	LogRetentionDays    int
	RetentionSweepHours int
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "support"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2048),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 60),

		// Triage pipeline
		AutoSendThreshold:     getEnvFloat("AUTO_SEND_THRESHOLD", 0.85),
		MaxRetryAttempts:      getEnvInt("MAX_RETRY_ATTEMPTS", 3),
		BaseRetryDelaySec:     getEnvInt("BASE_RETRY_DELAY_SEC", 60),
		KnowledgeArticleLimit: getEnvInt("KNOWLEDGE_ARTICLE_LIMIT", 3),

		// Inbound SMTP
		SMTPListenAddr:     getEnv("SMTP_LISTEN_ADDR", ":2525"),
		SMTPDomain:         getEnv("SMTP_DOMAIN", "localhost"),
		SMTPMaxMessageSize: int64(getEnvInt("SMTP_MAX_MESSAGE_SIZE", 25*1024*1024)),

		// Outbound SMTP
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnvInt("SMTP_PORT", 587),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPFromEmail: getEnv("SMTP_FROM_EMAIL", "support@localhost"),
		SMTPFromName:  getEnv("SMTP_FROM_NAME", "Support Team"),
		SMTPUseTLS:    getEnvBool("SMTP_USE_TLS", true),

		// Worker
		WorkerID:        getEnv("WORKER_ID", generateWorkerID()),
		WorkerMax:       getEnvInt("WORKER_MAX", 10),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 1000),

		// Consumer
		ConsumerBatchSize: getEnvInt("CONSUMER_BATCH_SIZE", 10),
		ConsumerBlockMS:   getEnvInt("CONSUMER_BLOCK_MS", 5000),

		// Schedulers
		SchedulerEnabled:    getEnvBool("SCHEDULER_ENABLED", true),
		RecoveryScanSec:     getEnvInt("RECOVERY_SCAN_SEC", 300),
		RecoveryMinAgeSec:   getEnvInt("RECOVERY_MIN_AGE_SEC", 600),
		LogRetentionDays:    getEnvInt("LOG_RETENTION_DAYS", 90),
		RetentionSweepHours: getEnvInt("RETENTION_SWEEP_HOURS", 24),
	}, nil
}

// BaseRetryDelay returns the configured base backoff delay.
func (c *Config) BaseRetryDelay() time.Duration {
	return time.Duration(c.BaseRetryDelaySec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
