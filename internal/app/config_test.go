package app

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/paysync/internal/messaging/kafka"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != ":50051" {
		t.Errorf("expected GRPCAddr :50051, got %s", cfg.GRPCAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if !cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be true")
	}
	if cfg.KafkaEventsTopic != kafka.TopicOrderEvents || cfg.KafkaDLQTopic != kafka.TopicDeadLetterQueue {
		t.Errorf("unexpected kafka topics: %s / %s", cfg.KafkaEventsTopic, cfg.KafkaDLQTopic)
	}
	if cfg.DokuWebhookPath != "/webhooks/doku" {
		t.Errorf("unexpected doku webhook path: %s", cfg.DokuWebhookPath)
	}
	if cfg.OutboxPollInterval <= 0 || cfg.OutboxBatchSize <= 0 || cfg.OutboxMaxAttempts <= 0 {
		t.Error("expected positive outbox settings")
	}
	if cfg.PollerGracePeriod <= 0 || cfg.PollerInterval <= 0 || cfg.PollerBatchSize <= 0 {
		t.Error("expected positive poller settings")
	}
	if cfg.AuditRetention < 24*time.Hour {
		t.Errorf("audit retention is too short: %s", cfg.AuditRetention)
	}
}

func TestConfig_PollerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollerTimeout = 2 * time.Second
	cfg.PollerRate = 1.5
	cfg.PollerBurst = 3

	pc := cfg.pollerConfig()
	if pc.QueryTimeout != 2*time.Second {
		t.Errorf("unexpected timeout: %s", pc.QueryTimeout)
	}
	if pc.RatePerSecond != 1.5 || pc.Burst != 3 {
		t.Errorf("unexpected rate: %v/%d", pc.RatePerSecond, pc.Burst)
	}
	if pc.BreakerFailures <= 0 || pc.BreakerReset <= 0 {
		t.Errorf("breaker defaults must be kept: %+v", pc)
	}

	zero := Config{}.pollerConfig()
	if zero.QueryTimeout <= 0 || zero.RatePerSecond <= 0 || zero.Burst <= 0 {
		t.Errorf("zero config must fall back to defaults: %+v", zero)
	}
}
