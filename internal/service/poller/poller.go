// Package poller сверяет pending-заказы с провайдерами, когда вебхук не пришёл.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/metrics"
	"github.com/vladislavdragonenkov/paysync/internal/service/reconcile"
)

// Applier применяет нормализованное событие к заказу.
type Applier interface {
	Apply(ctx context.Context, ev domain.PaymentEvent) (reconcile.Result, error)
}

// Config — настройки исходящих запросов к провайдерам.
type Config struct {
	// QueryTimeout ограничивает один запрос статуса.
	QueryTimeout time.Duration
	// RatePerSecond и Burst ограничивают частоту запросов ко всем провайдерам.
	RatePerSecond float64
	Burst         int
	// BreakerFailures подряд открывают breaker провайдера на BreakerReset.
	BreakerFailures int
	BreakerReset    time.Duration
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		QueryTimeout:    5 * time.Second,
		RatePerSecond:   5,
		Burst:           5,
		BreakerFailures: 5,
		BreakerReset:    30 * time.Second,
	}
}

// CheckResult — результат ручной или плановой сверки.
type CheckResult struct {
	Order domain.Order
	// Queried false, если заказ уже был терминальным и провайдер не опрашивался.
	Queried        bool
	Outcome        domain.Outcome
	ProviderStatus string
}

// Poller опрашивает провайдера и передаёт ответ в ту же машину состояний, что и вебхуки.
type Poller struct {
	orders   domain.OrderReader
	applier  Applier
	gateways map[domain.Provider]domain.PaymentGateway
	breakers map[domain.Provider]*CircuitBreaker
	limiter  *rate.Limiter
	timeout  time.Duration
	metrics  *metrics.ReconcileMetrics
	logger   *log.Entry
}

// New создаёт поллер. Шлюзы создаются один раз при старте и не меняются.
func New(orders domain.OrderReader, applier Applier, gateways []domain.PaymentGateway, cfg Config, m *metrics.ReconcileMetrics, logger *log.Entry) *Poller {
	defaults := DefaultConfig()
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaults.QueryTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaults.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if logger == nil {
		logger = log.WithField("component", "reconcile-poller")
	}

	p := &Poller{
		orders:   orders,
		applier:  applier,
		gateways: make(map[domain.Provider]domain.PaymentGateway, len(gateways)),
		breakers: make(map[domain.Provider]*CircuitBreaker, len(gateways)),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		timeout:  cfg.QueryTimeout,
		metrics:  m,
		logger:   logger,
	}
	for _, gw := range gateways {
		provider := gw.Provider()
		p.gateways[provider] = gw

		breaker := NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset, logger.WithField("provider", provider))
		breaker.OnStateChange(func(state CircuitState) {
			m.SetBreakerOpen(string(provider), state == CircuitOpen)
		})
		p.breakers[provider] = breaker
	}
	return p
}

// CheckStatus сверяет заказ с провайдером.
// Терминальный заказ возвращается без сетевого вызова. Любой сбой провайдера
// даёт ErrUnableToVerify, заказ при этом не меняется.
func (p *Poller) CheckStatus(ctx context.Context, ref string) (CheckResult, error) {
	order, err := p.orders.Get(ctx, ref)
	if err != nil {
		return CheckResult{}, err
	}
	if order.Status.Terminal() {
		p.metrics.RecordPollerCheck(string(order.Provider), "terminal")
		return CheckResult{Order: order}, nil
	}
	if order.Provider == "" {
		return CheckResult{Order: order}, domain.ErrProviderNotSelected
	}

	logger := p.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"provider":     order.Provider,
	})

	ev, err := p.query(ctx, order)
	if err != nil {
		logger.WithError(err).Warn("unable to verify payment status")
		p.metrics.RecordPollerCheck(string(order.Provider), "unable_to_verify")
		return CheckResult{Order: order}, fmt.Errorf("%w: %w", domain.ErrUnableToVerify, err)
	}

	ev.Source = domain.EventSourcePoller
	if ev.OrderRef == "" {
		ev.OrderRef = order.OrderNumber
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}

	res, err := p.applier.Apply(ctx, ev)
	if err != nil {
		p.metrics.RecordPollerCheck(string(order.Provider), "error")
		return CheckResult{Order: order, Queried: true, ProviderStatus: ev.ProviderStatus}, err
	}

	p.metrics.RecordPollerCheck(string(order.Provider), string(res.Outcome))
	logger.WithFields(log.Fields{
		"provider_status": ev.ProviderStatus,
		"outcome":         res.Outcome,
	}).Debug("payment status checked")

	return CheckResult{
		Order:          res.Order,
		Queried:        true,
		Outcome:        res.Outcome,
		ProviderStatus: ev.ProviderStatus,
	}, nil
}

// query выполняет запрос вне какой-либо транзакции: rate limit, breaker, таймаут.
func (p *Poller) query(ctx context.Context, order domain.Order) (domain.PaymentEvent, error) {
	gw, ok := p.gateways[order.Provider]
	if !ok {
		return domain.PaymentEvent{}, fmt.Errorf("no gateway configured for provider %q", order.Provider)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("rate limiter: %w", err)
	}

	var ev domain.PaymentEvent
	err := p.breakers[order.Provider].Execute("query_status", func() error {
		qctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		var qerr error
		ev, qerr = gw.QueryStatus(qctx, order)
		return qerr
	})
	if errors.Is(err, ErrCircuitOpen) {
		return domain.PaymentEvent{}, fmt.Errorf("provider %s: %w", order.Provider, err)
	}
	return ev, err
}
