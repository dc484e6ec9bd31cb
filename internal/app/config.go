package app

import (
	"time"

	"github.com/vladislavdragonenkov/paysync/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/paysync/internal/service/poller"
)

// Поддерживаемые хранилища заказов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса сверки платежей.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	// SeedProducts — начальный сток в формате "P1=10,P2=5"; применяется при старте.
	SeedProducts string

	// Если RedisAddr пустой, real-time уведомления отключены, остаётся только запись в БД.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// KafkaBrokers — список брокеров через запятую; пустой — события остаются в outbox.
	KafkaBrokers     string
	KafkaClientID    string
	KafkaEventsTopic string
	KafkaDLQTopic    string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	DokuClientID    string
	DokuSecretKey   string
	DokuBaseURL     string
	DokuWebhookPath string

	MidtransServerKey string
	MidtransBaseURL   string

	PollerInterval    time.Duration
	PollerGracePeriod time.Duration
	PollerBatchSize   int
	PollerTimeout     time.Duration
	PollerRate        float64
	PollerBurst       int

	AuditRetention       time.Duration
	AuditCleanupInterval time.Duration
	AuditCleanupBatch    int
}

// DefaultConfig возвращает значения по умолчанию для локального запуска.
func DefaultConfig() Config {
	pollerCfg := poller.DefaultConfig()
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaClientID:    "paysync",
		KafkaEventsTopic: kafka.TopicOrderEvents,
		KafkaDLQTopic:    kafka.TopicDeadLetterQueue,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,

		DokuBaseURL:     "https://api-sandbox.doku.com",
		DokuWebhookPath: "/webhooks/doku",
		MidtransBaseURL: "https://api.sandbox.midtrans.com",

		PollerInterval:    time.Minute,
		PollerGracePeriod: 15 * time.Minute,
		PollerBatchSize:   50,
		PollerTimeout:     pollerCfg.QueryTimeout,
		PollerRate:        pollerCfg.RatePerSecond,
		PollerBurst:       pollerCfg.Burst,

		AuditRetention:       30 * 24 * time.Hour,
		AuditCleanupInterval: time.Hour,
		AuditCleanupBatch:    500,
	}
}

// pollerConfig собирает настройки поллера с дефолтами для breaker.
func (c Config) pollerConfig() poller.Config {
	cfg := poller.DefaultConfig()
	if c.PollerTimeout > 0 {
		cfg.QueryTimeout = c.PollerTimeout
	}
	if c.PollerRate > 0 {
		cfg.RatePerSecond = c.PollerRate
	}
	if c.PollerBurst > 0 {
		cfg.Burst = c.PollerBurst
	}
	return cfg
}
