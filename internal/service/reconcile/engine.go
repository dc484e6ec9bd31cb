// Package reconcile применяет нормализованные события провайдеров к заказам.
// Вебхуки и поллер используют один и тот же Engine.Apply.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/metrics"
	"github.com/vladislavdragonenkov/paysync/internal/service/inventory"
	"github.com/vladislavdragonenkov/paysync/internal/service/notification"
)

// Result — исход применения события и состояние заказа после него.
type Result struct {
	Outcome domain.Outcome
	Order   domain.Order
}

// Engine — машина состояний заказа.
type Engine struct {
	txm       domain.TxManager
	inventory *inventory.Coordinator
	notifier  *notification.Dispatcher
	audit     domain.AuditRepository
	metrics   *metrics.ReconcileMetrics
	logger    *log.Entry
	now       func() time.Time
}

// Option настраивает Engine.
type Option func(*Engine)

// WithAudit включает журнал проверенных событий.
func WithAudit(repo domain.AuditRepository) Option {
	return func(e *Engine) { e.audit = repo }
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.ReconcileMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine создаёт машину состояний.
func NewEngine(txm domain.TxManager, inv *inventory.Coordinator, notifier *notification.Dispatcher, options ...Option) *Engine {
	e := &Engine{
		txm:       txm,
		inventory: inv,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(e)
	}
	if e.logger == nil {
		e.logger = log.WithField("component", "reconcile-engine")
	}
	return e
}

// Apply применяет событие к заказу ровно один раз.
//
// Блокировка строки заказа держится только на время транзакции: повторная
// доставка ждёт её снятия, перечитывает терминальный статус и завершается
// как duplicate. Сетевые вызовы внутри транзакции не выполняются.
func (e *Engine) Apply(ctx context.Context, ev domain.PaymentEvent) (Result, error) {
	if errs := ev.Validate(); len(errs) > 0 {
		return Result{}, fmt.Errorf("invalid payment event: %w", errors.Join(errs...))
	}

	started := time.Now()
	logger := e.logger.WithFields(log.Fields{
		"provider":        ev.Provider,
		"source":          ev.Source,
		"order_ref":       ev.OrderRef,
		"provider_status": ev.ProviderStatus,
		"status":          ev.Status,
	})

	var (
		result  Result
		pending *domain.Notification
	)
	err := e.txm.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		result, pending = Result{}, nil

		order, err := tx.LockOrder(ctx, ev.OrderRef)
		if err != nil {
			return err
		}

		decision := domain.Decide(order.Status, ev.Status)
		result.Outcome = decision.Outcome

		switch decision.Outcome {
		case domain.OutcomeTransitioned:
			n, err := e.transition(ctx, tx, &order, decision, ev)
			if err != nil {
				return err
			}
			pending = n
		case domain.OutcomeIgnored:
			if err := e.recordProviderStatus(ctx, tx, &order, ev); err != nil {
				return err
			}
		}

		result.Order = order
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			result = Result{Outcome: domain.OutcomeNotFound}
			logger.Warn("payment event for unknown order")
			e.metrics.RecordAnomaly(string(ev.Provider), "unknown_order")
			e.finish(ctx, ev, result, started)
			return result, err
		}
		logger.WithError(err).Error("apply payment event failed")
		return Result{}, fmt.Errorf("apply payment event: %w", err)
	}

	logger = logger.WithFields(log.Fields{
		"order_id":     result.Order.ID,
		"order_number": result.Order.OrderNumber,
		"outcome":      result.Outcome,
		"order_status": result.Order.Status,
	})
	switch result.Outcome {
	case domain.OutcomeConflict:
		logger.Error("provider reports a different terminal status than recorded")
		e.metrics.RecordAnomaly(string(ev.Provider), "conflict")
	case domain.OutcomeTransitioned:
		logger.Info("order transitioned")
	default:
		logger.Debug("payment event applied without transition")
	}

	if ev.Status == domain.NormalizedPaid {
		e.checkAmount(logger, ev, result.Order)
	}

	if pending != nil {
		e.notifier.Publish(ctx, *pending)
	}
	e.finish(ctx, ev, result, started)
	return result, nil
}

// checkAmount сверяет сумму провайдера с заказом. Расхождение только логируется:
// на переход оно не влияет.
func (e *Engine) checkAmount(logger *log.Entry, ev domain.PaymentEvent, order domain.Order) {
	fields := log.Fields{
		"paid_amount_minor":  ev.PaidAmountMinor,
		"order_amount_minor": order.AmountMinor,
	}
	switch {
	case ev.PaidAmountMinor <= 0 && order.AmountMinor > 0:
		logger.WithFields(fields).Warn("provider amount is missing or invalid")
		e.metrics.RecordAnomaly(string(ev.Provider), "invalid_amount")
	case ev.PaidAmountMinor > 0 && ev.PaidAmountMinor != order.AmountMinor:
		logger.WithFields(fields).Warn("provider amount differs from order total")
		e.metrics.RecordAnomaly(string(ev.Provider), "amount_mismatch")
	}
}

// transition переводит pending-заказ в терминальный статус со всеми побочными эффектами.
func (e *Engine) transition(ctx context.Context, tx domain.Tx, order *domain.Order, decision domain.Decision, ev domain.PaymentEvent) (*domain.Notification, error) {
	now := e.now()

	order.Status = decision.Target
	order.LastProviderStatus = ev.ProviderStatus
	order.Provider = ev.Provider
	if ev.PaymentMethod != "" {
		order.PaymentMethod = ev.PaymentMethod
	}
	if ev.TransactionRef != "" {
		order.TransactionRef = ev.TransactionRef
	}
	if decision.Target == domain.OrderStatusPaid {
		order.PaidAt = &now
	}

	if decision.ReleaseStock {
		err := e.inventory.Release(ctx, tx, order)
		switch {
		case errors.Is(err, domain.ErrStockAlreadyReleased):
			e.logger.WithField("order_id", order.ID).Warn("stock already released, skipping")
		case err != nil:
			return nil, err
		default:
			e.metrics.RecordStockReleased()
		}
	}

	if err := e.save(ctx, tx, order, now); err != nil {
		return nil, err
	}

	var pending *domain.Notification
	if n, ok := e.notifier.Compose(*order, decision.Target); ok {
		if err := e.notifier.Record(ctx, tx, n); err != nil {
			return nil, err
		}
		pending = &n
	}

	msg, err := domain.NewOrderOutboxMessage(*order, now)
	if err != nil {
		return nil, err
	}
	if err := tx.EnqueueOutbox(ctx, msg); err != nil {
		return nil, err
	}
	return pending, nil
}

// recordProviderStatus обновляет только аудит последнего статуса у pending-заказа.
func (e *Engine) recordProviderStatus(ctx context.Context, tx domain.Tx, order *domain.Order, ev domain.PaymentEvent) error {
	if order.Status != domain.OrderStatusPending || ev.ProviderStatus == "" {
		return nil
	}

	changed := order.LastProviderStatus != ev.ProviderStatus
	if order.Provider == "" {
		order.Provider = ev.Provider
		changed = true
	}
	if order.PaymentMethod == "" && ev.PaymentMethod != "" {
		order.PaymentMethod = ev.PaymentMethod
		changed = true
	}
	if order.TransactionRef == "" && ev.TransactionRef != "" {
		order.TransactionRef = ev.TransactionRef
		changed = true
	}
	if !changed {
		return nil
	}
	order.LastProviderStatus = ev.ProviderStatus
	return e.save(ctx, tx, order, e.now())
}

func (e *Engine) save(ctx context.Context, tx domain.Tx, order *domain.Order, now time.Time) error {
	if err := tx.UpdateOrder(ctx, *order); err != nil {
		return err
	}
	order.Version++
	order.UpdatedAt = now
	return nil
}

// finish пишет аудит и метрики после завершения транзакции.
func (e *Engine) finish(ctx context.Context, ev domain.PaymentEvent, result Result, started time.Time) {
	e.metrics.RecordEvent(string(ev.Provider), string(ev.Source), string(result.Outcome), time.Since(started))

	if e.audit == nil {
		return
	}
	receivedAt := ev.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = e.now()
	}
	record := domain.AuditRecord{
		Provider:       ev.Provider,
		Source:         ev.Source,
		OrderRef:       ev.OrderRef,
		ProviderStatus: ev.ProviderStatus,
		Status:         ev.Status,
		TransactionRef: ev.TransactionRef,
		Outcome:        result.Outcome,
		Payload:        ev.Raw,
		ReceivedAt:     receivedAt,
	}
	if err := e.audit.Append(ctx, record); err != nil {
		e.logger.WithError(err).WithField("order_ref", ev.OrderRef).Warn("failed to append payment audit")
	}
}
