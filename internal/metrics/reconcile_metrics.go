// Package metrics содержит Prometheus-метрики сверки платежей.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics — метрики вебхуков, машины состояний и поллера.
// Методы безопасны для nil-получателя.
type ReconcileMetrics struct {
	// Исходы применения событий
	events        *prometheus.CounterVec
	applyDuration *prometheus.HistogramVec
	anomalies     *prometheus.CounterVec

	// Вход вебхуков
	webhookRejected *prometheus.CounterVec

	// Поллер
	pollerChecks *prometheus.CounterVec
	breakerOpen  *prometheus.GaugeVec

	// Побочные эффекты
	stockReleased        prometheus.Counter
	notificationsPublish *prometheus.CounterVec
	auditPurged          prometheus.Counter
}

// NewReconcileMetrics регистрирует метрики в DefaultRegisterer.
func NewReconcileMetrics() *ReconcileMetrics {
	return NewReconcileMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewReconcileMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewReconcileMetricsWithRegisterer(registerer prometheus.Registerer) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ReconcileMetrics{
		events: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paysync_payment_events_total",
			Help: "Payment events applied to orders grouped by provider, source and outcome.",
		}, []string{"provider", "source", "outcome"})),
		applyDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paysync_apply_duration_seconds",
			Help:    "Duration of the order transition transaction.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"source"})),
		anomalies: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paysync_payment_anomalies_total",
			Help: "Conflicting, unknown-order and amount-mismatch events.",
		}, []string{"provider", "kind"})),
		webhookRejected: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paysync_webhook_rejected_total",
			Help: "Webhook requests rejected before reaching the state machine.",
		}, []string{"provider", "reason"})),
		pollerChecks: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paysync_poller_checks_total",
			Help: "Provider status queries grouped by result.",
		}, []string{"provider", "result"})),
		breakerOpen: register(registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "paysync_provider_circuit_open",
			Help: "1 when the provider circuit breaker is open.",
		}, []string{"provider"})),
		stockReleased: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paysync_stock_releases_total",
			Help: "Orders whose reserved stock was returned.",
		})),
		notificationsPublish: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paysync_notification_publish_total",
			Help: "Real-time notification publishes grouped by result.",
		}, []string{"result"})),
		auditPurged: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paysync_audit_purged_total",
			Help: "Payment audit records removed by retention.",
		})),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordEvent фиксирует исход применения события и длительность транзакции.
func (m *ReconcileMetrics) RecordEvent(provider, source, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(provider, source, outcome).Inc()
	m.applyDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordAnomaly увеличивает счётчик аномалий (conflict, unknown_order, amount_mismatch, invalid_amount).
func (m *ReconcileMetrics) RecordAnomaly(provider, kind string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(provider, kind).Inc()
}

// RecordWebhookRejected фиксирует отклонённый вебхук.
func (m *ReconcileMetrics) RecordWebhookRejected(provider, reason string) {
	if m == nil {
		return
	}
	m.webhookRejected.WithLabelValues(provider, reason).Inc()
}

// RecordPollerCheck фиксирует результат опроса провайдера.
func (m *ReconcileMetrics) RecordPollerCheck(provider, result string) {
	if m == nil {
		return
	}
	m.pollerChecks.WithLabelValues(provider, result).Inc()
}

// SetBreakerOpen выставляет состояние circuit breaker провайдера.
func (m *ReconcileMetrics) SetBreakerOpen(provider string, open bool) {
	if m == nil {
		return
	}
	value := 0.0
	if open {
		value = 1
	}
	m.breakerOpen.WithLabelValues(provider).Set(value)
}

// RecordStockReleased увеличивает счётчик возвратов стока.
func (m *ReconcileMetrics) RecordStockReleased() {
	if m == nil {
		return
	}
	m.stockReleased.Inc()
}

// RecordNotificationPublish фиксирует результат real-time доставки.
func (m *ReconcileMetrics) RecordNotificationPublish(ok bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.notificationsPublish.WithLabelValues(result).Inc()
}

// RecordAuditPurged увеличивает счётчик удалённых записей аудита.
func (m *ReconcileMetrics) RecordAuditPurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.auditPurged.Add(float64(n))
}
