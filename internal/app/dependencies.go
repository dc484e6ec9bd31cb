package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/paysync/internal/health"
	"github.com/vladislavdragonenkov/paysync/internal/provider/doku"
	"github.com/vladislavdragonenkov/paysync/internal/provider/midtrans"
	"github.com/vladislavdragonenkov/paysync/internal/storage/memory"
	"github.com/vladislavdragonenkov/paysync/internal/storage/postgres"
)

// runtimeDependencies — хранилище, выбранное конфигурацией.
type runtimeDependencies struct {
	txm           domain.TxManager
	orders        domain.OrderReader
	notifications domain.NotificationRepository
	outboxRepo    domain.OutboxRepository
	auditRepo     domain.AuditRepository

	storageChecker healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies открывает хранилище и применяет начальный сток.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	seed, err := parseProductSeed(cfg.SeedProducts)
	if err != nil {
		return runtimeDependencies{}, err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		for productID, stock := range seed {
			store.SeedProduct(productID, stock)
		}
		logger.WithField("products", len(seed)).Info("using in-memory storage")
		return runtimeDependencies{
			txm:           store,
			orders:        store,
			notifications: store,
			outboxRepo:    store,
			auditRepo:     memory.NewAuditRepository(),
		}, nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return runtimeDependencies{}, errors.New("postgres dsn is required for postgres storage driver")
		}

		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply migrations: %w", err)
			}
		}
		for productID, stock := range seed {
			if err := store.UpsertProduct(ctx, productID, stock); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("seed product %s: %w", productID, err)
			}
		}

		logger.WithFields(log.Fields{
			"auto_migrate": cfg.PostgresAutoMigrate,
			"products":     len(seed),
		}).Info("using postgres storage")
		return runtimeDependencies{
			txm:            store,
			orders:         postgres.NewOrderRepository(store),
			notifications:  postgres.NewNotificationRepository(store),
			outboxRepo:     postgres.NewOutboxRepository(store),
			auditRepo:      postgres.NewAuditRepository(store),
			storageChecker: healthcheck.NewPingChecker("postgres", store.Ping),
			closeFn:        store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// parseProductSeed разбирает строку вида "P1=10,P2=5".
func parseProductSeed(raw string) (map[string]int64, error) {
	seed := make(map[string]int64)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		productID, qty, ok := strings.Cut(part, "=")
		productID = strings.TrimSpace(productID)
		if !ok || productID == "" {
			return nil, fmt.Errorf("invalid product seed %q: expected id=stock", part)
		}
		stock, err := strconv.ParseInt(strings.TrimSpace(qty), 10, 64)
		if err != nil || stock < 0 {
			return nil, fmt.Errorf("invalid stock for product %s: %q", productID, qty)
		}
		seed[productID] = stock
	}
	return seed, nil
}

// buildProviders создаёт проверки вебхуков и клиентов запроса статуса
// для провайдеров с заполненными учётными данными.
func buildProviders(cfg Config, logger *log.Entry) (*doku.Verifier, *midtrans.Verifier, []domain.PaymentGateway) {
	var (
		dokuVerifier     *doku.Verifier
		midtransVerifier *midtrans.Verifier
		gateways         []domain.PaymentGateway
	)

	if cfg.DokuClientID != "" && cfg.DokuSecretKey != "" {
		dokuVerifier = doku.NewVerifier(cfg.DokuClientID, cfg.DokuSecretKey, cfg.DokuWebhookPath)
		gateways = append(gateways, doku.NewClient(doku.ClientConfig{
			BaseURL:   cfg.DokuBaseURL,
			ClientID:  cfg.DokuClientID,
			SecretKey: cfg.DokuSecretKey,
			Timeout:   cfg.PollerTimeout,
		}))
	} else {
		logger.Warn("doku credentials are not configured, doku webhooks are disabled")
	}

	if cfg.MidtransServerKey != "" {
		midtransVerifier = midtrans.NewVerifier(cfg.MidtransServerKey)
		gateways = append(gateways, midtrans.NewClient(midtrans.ClientConfig{
			BaseURL:   cfg.MidtransBaseURL,
			ServerKey: cfg.MidtransServerKey,
			Timeout:   cfg.PollerTimeout,
		}))
	} else {
		logger.Warn("midtrans server key is not configured, midtrans webhooks are disabled")
	}

	return dokuVerifier, midtransVerifier, gateways
}
