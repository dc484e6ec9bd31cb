// Package httpapi содержит HTTP-вход сервиса: вебхуки провайдеров и API заказов.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/metrics"
	"github.com/vladislavdragonenkov/paysync/internal/provider/doku"
	"github.com/vladislavdragonenkov/paysync/internal/provider/midtrans"
	"github.com/vladislavdragonenkov/paysync/internal/service/checkout"
	"github.com/vladislavdragonenkov/paysync/internal/service/poller"
	"github.com/vladislavdragonenkov/paysync/internal/service/reconcile"
)

const (
	// DokuWebhookPath — путь, на который Doku присылает уведомления; участвует в подписи.
	DokuWebhookPath = "/webhooks/doku"
	// MidtransWebhookPath — путь уведомлений Midtrans.
	MidtransWebhookPath = "/webhooks/midtrans"

	maxBodyBytes = 1 << 20
)

// Applier применяет нормализованное событие к заказу.
type Applier interface {
	Apply(ctx context.Context, ev domain.PaymentEvent) (reconcile.Result, error)
}

// OrderPlacer оформляет новый заказ.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req checkout.PlaceOrderRequest) (domain.Order, error)
}

// StatusChecker сверяет заказ с провайдером по запросу покупателя.
type StatusChecker interface {
	CheckStatus(ctx context.Context, ref string) (poller.CheckResult, error)
}

// NotificationLister отдаёт уведомления пользователя.
type NotificationLister interface {
	List(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

// Dependencies — всё, что нужно роутеру. Audit необязателен.
type Dependencies struct {
	Applier       Applier
	Orders        domain.OrderReader
	Checkout      OrderPlacer
	Checker       StatusChecker
	Notifications NotificationLister
	Audit         domain.AuditRepository

	Doku     *doku.Verifier
	Midtrans *midtrans.Verifier

	Metrics *metrics.ReconcileMetrics
	Logger  *log.Entry
	// Now подменяется в тестах.
	Now func() time.Time
}

type api struct {
	deps   Dependencies
	logger *log.Entry
	now    func() time.Time
}

// NewRouter собирает chi-роутер со всеми маршрутами сервиса.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	a := &api{deps: deps, logger: logger, now: now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/doku", a.dokuWebhook)
		r.Post("/midtrans", a.midtransWebhook)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", a.placeOrder)
		r.Route("/orders/{ref}", func(r chi.Router) {
			r.Get("/", a.getOrder)
			r.Post("/check-status", a.checkStatus)
			r.Get("/events", a.orderEvents)
		})
		r.Get("/users/{userID}/notifications", a.listNotifications)
	})

	return r
}

// requestLogger пишет одну строку на запрос через logrus.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()

			next.ServeHTTP(ww, r)

			entry := logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(started).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
				"remote_addr": r.RemoteAddr,
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("http request")
				return
			}
			entry.Debug("http request")
		})
	}
}
