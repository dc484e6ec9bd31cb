package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/paysync/internal/app"
	"github.com/vladislavdragonenkov/paysync/internal/version"
)

const (
	envLogLevel = "PAYSYNC_LOG_LEVEL"

	envHTTPAddr    = "PAYSYNC_HTTP_ADDR"
	envGRPCAddr    = "PAYSYNC_GRPC_ADDR"
	envMetricsAddr = "PAYSYNC_METRICS_ADDR"

	envStorageDriver       = "PAYSYNC_STORAGE_DRIVER"
	envPostgresDSN         = "PAYSYNC_POSTGRES_DSN"
	envPostgresAutoMigrate = "PAYSYNC_POSTGRES_AUTO_MIGRATE"
	envSeedProducts        = "PAYSYNC_SEED_PRODUCTS"

	envRedisAddr     = "PAYSYNC_REDIS_ADDR"
	envRedisPassword = "PAYSYNC_REDIS_PASSWORD"
	envRedisDB       = "PAYSYNC_REDIS_DB"

	envKafkaBrokers     = "PAYSYNC_KAFKA_BROKERS"
	envKafkaClientID    = "PAYSYNC_KAFKA_CLIENT_ID"
	envKafkaEventsTopic = "PAYSYNC_KAFKA_EVENTS_TOPIC"
	envKafkaDLQTopic    = "PAYSYNC_KAFKA_DLQ_TOPIC"

	envOutboxPollInterval = "PAYSYNC_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "PAYSYNC_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "PAYSYNC_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay   = "PAYSYNC_OUTBOX_RETRY_DELAY"

	envDokuClientID    = "PAYSYNC_DOKU_CLIENT_ID"
	envDokuSecretKey   = "PAYSYNC_DOKU_SECRET_KEY"
	envDokuBaseURL     = "PAYSYNC_DOKU_BASE_URL"
	envDokuWebhookPath = "PAYSYNC_DOKU_WEBHOOK_PATH"

	envMidtransServerKey = "PAYSYNC_MIDTRANS_SERVER_KEY"
	envMidtransBaseURL   = "PAYSYNC_MIDTRANS_BASE_URL"

	envPollerInterval    = "PAYSYNC_POLLER_INTERVAL"
	envPollerGracePeriod = "PAYSYNC_POLLER_GRACE_PERIOD"
	envPollerBatchSize   = "PAYSYNC_POLLER_BATCH_SIZE"
	envPollerTimeout     = "PAYSYNC_POLLER_TIMEOUT"
	envPollerRate        = "PAYSYNC_POLLER_RATE"
	envPollerBurst       = "PAYSYNC_POLLER_BURST"

	envAuditRetention       = "PAYSYNC_AUDIT_RETENTION"
	envAuditCleanupInterval = "PAYSYNC_AUDIT_CLEANUP_INTERVAL"
	envAuditCleanupBatch    = "PAYSYNC_AUDIT_CLEANUP_BATCH"
)

// envLookup совпадает по сигнатуре с os.LookupEnv.
type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не роняют старт: остаётся дефолт, а в warnings попадает причина.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v, using default", key, err))
	}
	setString := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := get(key); ok {
			parsed, err := parseBool(v)
			if err != nil {
				warn(key, err)
				return
			}
			*dst = parsed
		}
	}
	setInt := func(key string, dst *int, valid func(int) bool, rule string) {
		if v, ok := get(key); ok {
			parsed, err := parseInt(v, valid, rule)
			if err != nil {
				warn(key, err)
				return
			}
			*dst = parsed
		}
	}
	setDuration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		if v, ok := get(key); ok {
			parsed, err := parseDuration(v, valid, rule)
			if err != nil {
				warn(key, err)
				return
			}
			*dst = parsed
		}
	}
	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envGRPCAddr, &cfg.GRPCAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)

	if v, ok := get(envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setBool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	setString(envSeedProducts, &cfg.SeedProducts)

	setString(envRedisAddr, &cfg.RedisAddr)
	setString(envRedisPassword, &cfg.RedisPassword)
	setInt(envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0")

	setString(envKafkaBrokers, &cfg.KafkaBrokers)
	setString(envKafkaClientID, &cfg.KafkaClientID)
	setString(envKafkaEventsTopic, &cfg.KafkaEventsTopic)
	setString(envKafkaDLQTopic, &cfg.KafkaDLQTopic)

	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")

	setString(envDokuClientID, &cfg.DokuClientID)
	setString(envDokuSecretKey, &cfg.DokuSecretKey)
	setString(envDokuBaseURL, &cfg.DokuBaseURL)
	setString(envDokuWebhookPath, &cfg.DokuWebhookPath)

	setString(envMidtransServerKey, &cfg.MidtransServerKey)
	setString(envMidtransBaseURL, &cfg.MidtransBaseURL)

	setDuration(envPollerInterval, &cfg.PollerInterval, positiveDuration, "must be > 0")
	setDuration(envPollerGracePeriod, &cfg.PollerGracePeriod, nonNegativeDuration, "must be >= 0")
	setInt(envPollerBatchSize, &cfg.PollerBatchSize, positive, "must be > 0")
	setDuration(envPollerTimeout, &cfg.PollerTimeout, positiveDuration, "must be > 0")
	if v, ok := get(envPollerRate); ok {
		rate, err := strconv.ParseFloat(v, 64)
		switch {
		case err != nil:
			warn(envPollerRate, err)
		case rate <= 0:
			warn(envPollerRate, errors.New("must be > 0"))
		default:
			cfg.PollerRate = rate
		}
	}
	setInt(envPollerBurst, &cfg.PollerBurst, positive, "must be > 0")

	setDuration(envAuditRetention, &cfg.AuditRetention, positiveDuration, "must be > 0")
	setDuration(envAuditCleanupInterval, &cfg.AuditCleanupInterval, positiveDuration, "must be > 0")
	setInt(envAuditCleanupBatch, &cfg.AuditCleanupBatch, positive, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	setupLogger(os.Getenv(envLogLevel))
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.GetVersion(),
		"commit":         version.GetCommit(),
		"build_date":     version.GetDate(),
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
	}).Info("запускаем payment reconciler")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("payment reconciler остановлен")
}
