package poller

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

const (
	defaultSweepInterval = time.Minute
	defaultGracePeriod   = 15 * time.Minute
	defaultSweepBatch    = 50
)

// WorkerOptions задаёт параметры планового опроса.
type WorkerOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	Grace     time.Duration
	BatchSize int
}

// WorkerOption настраивает Worker.
type WorkerOption func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между проходами.
func WithInterval(interval time.Duration) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.Interval = interval
	}
}

// WithGracePeriod задаёт, сколько ждать вебхук до первого опроса провайдера.
func WithGracePeriod(grace time.Duration) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.Grace = grace
	}
}

// WithBatchSize задаёт число заказов за один проход.
func WithBatchSize(batchSize int) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// SweepStats — итог одного прохода.
type SweepStats struct {
	Checked      int
	Transitioned int
	Unverified   int
	Skipped      int
}

// Worker периодически сверяет зависшие pending-заказы.
type Worker struct {
	orders    domain.OrderReader
	poller    *Poller
	logger    *log.Entry
	interval  time.Duration
	grace     time.Duration
	batchSize int
	now       func() time.Time
}

// NewWorker создаёт воркер планового опроса.
func NewWorker(orders domain.OrderReader, poller *Poller, options ...WorkerOption) *Worker {
	opts := WorkerOptions{
		Interval:  defaultSweepInterval,
		Grace:     defaultGracePeriod,
		BatchSize: defaultSweepBatch,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "reconcile-poller-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatch
	}

	return &Worker{
		orders:    orders,
		poller:    poller,
		logger:    logger,
		interval:  opts.Interval,
		grace:     opts.Grace,
		batchSize: opts.BatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run запускает периодический опрос до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.orders == nil || w.poller == nil {
		w.logger.Warn("reconcile poller worker is disabled: orders or poller is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce сверяет одну порцию pending-заказов старше grace-периода.
func (w *Worker) SweepOnce(ctx context.Context) SweepStats {
	var stats SweepStats
	if ctx.Err() != nil {
		return stats
	}

	orders, err := w.orders.ListPending(ctx, w.now().Add(-w.grace), w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to list pending orders")
		return stats
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			break
		}

		res, err := w.poller.CheckStatus(ctx, order.OrderNumber)
		switch {
		case errors.Is(err, domain.ErrProviderNotSelected):
			stats.Skipped++
			continue
		case errors.Is(err, domain.ErrUnableToVerify):
			stats.Unverified++
			continue
		case err != nil:
			w.logger.WithError(err).WithField("order_number", order.OrderNumber).Warn("poller check failed")
			continue
		}

		stats.Checked++
		if res.Outcome == domain.OutcomeTransitioned {
			stats.Transitioned++
		}
	}

	if len(orders) > 0 {
		w.logger.WithFields(log.Fields{
			"pending":      len(orders),
			"checked":      stats.Checked,
			"transitioned": stats.Transitioned,
			"unverified":   stats.Unverified,
			"skipped":      stats.Skipped,
		}).Info("reconcile sweep completed")
	}
	return stats
}
