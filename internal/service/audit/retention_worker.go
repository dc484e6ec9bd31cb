// Package audit поддерживает журнал проверенных событий провайдеров.
package audit

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/metrics"
)

const (
	defaultRetention         = 30 * 24 * time.Hour
	defaultRetentionInterval = 1 * time.Hour
	defaultRetentionBatch    = 500
)

// RetentionOptions задаёт параметры воркера очистки журнала.
type RetentionOptions struct {
	Logger    *log.Entry
	Metrics   *metrics.ReconcileMetrics
	Retention time.Duration
	Interval  time.Duration
	BatchSize int
}

// RetentionOption настраивает RetentionWorker.
type RetentionOption func(*RetentionOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.ReconcileMetrics) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Metrics = m
	}
}

// WithRetention задаёт срок хранения записей.
func WithRetention(retention time.Duration) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Retention = retention
	}
}

// WithInterval задаёт интервал между проходами.
func WithInterval(interval time.Duration) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Interval = interval
	}
}

// WithBatchSize задаёт размер batch для одного удаления.
func WithBatchSize(batchSize int) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.BatchSize = batchSize
	}
}

// RetentionWorker удаляет записи журнала старше срока хранения.
type RetentionWorker struct {
	repo      domain.AuditRepository
	metrics   *metrics.ReconcileMetrics
	logger    *log.Entry
	retention time.Duration
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewRetentionWorker создаёт воркер очистки журнала.
func NewRetentionWorker(repo domain.AuditRepository, options ...RetentionOption) *RetentionWorker {
	opts := RetentionOptions{
		Retention: defaultRetention,
		Interval:  defaultRetentionInterval,
		BatchSize: defaultRetentionBatch,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "audit-retention-worker")
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultRetentionInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultRetentionBatch
	}

	return &RetentionWorker{
		repo:      repo,
		metrics:   opts.Metrics,
		logger:    logger,
		retention: opts.Retention,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("audit retention worker is disabled: repo is nil")
		return
	}

	w.purge(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.purge(ctx)
		}
	}
}

func (w *RetentionWorker) purge(ctx context.Context) {
	before := w.now().Add(-w.retention)
	deleted, err := w.DeleteBefore(ctx, before)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.WithError(err).Warn("audit retention run failed")
		return
	}
	if deleted > 0 {
		w.logger.WithFields(log.Fields{
			"deleted": deleted,
			"before":  before.Format(time.RFC3339),
		}).Info("audit retention completed")
	}
}

// DeleteBefore удаляет все записи, полученные раньше before, порциями batchSize.
func (w *RetentionWorker) DeleteBefore(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteBefore(before, w.batchSize)
		if err != nil {
			return total, err
		}

		total += deleted
		w.metrics.RecordAuditPurged(deleted)

		if deleted < w.batchSize {
			break
		}
	}
	return total, nil
}
