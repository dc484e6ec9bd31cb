package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/provider/doku"
	"github.com/vladislavdragonenkov/paysync/internal/provider/midtrans"
)

// dokuWebhook принимает уведомление с подписью в заголовках.
// Подпись проверяется по сырому телу до разбора JSON.
func (a *api) dokuWebhook(w http.ResponseWriter, r *http.Request) {
	provider := string(domain.ProviderDoku)
	logger := a.logger.WithFields(log.Fields{
		"provider":   provider,
		"request_id": middleware.GetReqID(r.Context()),
	})
	if a.deps.Doku == nil {
		writeError(w, http.StatusNotFound, "provider not configured")
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		a.deps.Metrics.RecordWebhookRejected(provider, "body")
		return
	}

	if err := a.deps.Doku.Verify(r.Header, body); err != nil {
		status, reason := http.StatusUnauthorized, "signature"
		if errors.Is(err, doku.ErrMissingHeaders) {
			status, reason = http.StatusBadRequest, "missing_headers"
		}
		a.deps.Metrics.RecordWebhookRejected(provider, reason)
		logger.WithError(err).Warn("webhook rejected")
		writeError(w, status, err.Error())
		return
	}

	n, err := doku.ParseNotification(body)
	if err != nil {
		// Подлинное, но нечитаемое уведомление: повтор ничего не исправит.
		a.deps.Metrics.RecordWebhookRejected(provider, "malformed")
		logger.WithError(err).Warn("authenticated webhook has malformed body")
		writeJSON(w, http.StatusOK, ackResponse{Status: "ignored"})
		return
	}

	ev := n.Event(body, r.Header.Get(doku.HeaderRequestID), domain.EventSourceWebhook, a.now())
	a.applyEvent(w, r, ev, logger)
}

// midtransWebhook принимает уведомление с signature_key в теле.
func (a *api) midtransWebhook(w http.ResponseWriter, r *http.Request) {
	provider := string(domain.ProviderMidtrans)
	logger := a.logger.WithFields(log.Fields{
		"provider":   provider,
		"request_id": middleware.GetReqID(r.Context()),
	})
	if a.deps.Midtrans == nil {
		writeError(w, http.StatusNotFound, "provider not configured")
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		a.deps.Metrics.RecordWebhookRejected(provider, "body")
		return
	}

	n, err := midtrans.ParseNotification(body)
	if err != nil {
		a.deps.Metrics.RecordWebhookRejected(provider, "malformed")
		logger.WithError(err).Warn("webhook body is not a notification")
		writeJSON(w, http.StatusOK, ackResponse{Status: "ignored"})
		return
	}

	if err := a.deps.Midtrans.Verify(n); err != nil {
		reason := "signature"
		if errors.Is(err, midtrans.ErrMissingFields) {
			reason = "missing_fields"
		}
		a.deps.Metrics.RecordWebhookRejected(provider, reason)
		logger.WithError(err).WithField("order_ref", n.OrderID).Warn("webhook rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev := n.Event(body, domain.EventSourceWebhook, a.now())
	a.applyEvent(w, r, ev, logger)
}

// applyEvent передаёт событие в машину состояний и переводит исход в HTTP-код.
// duplicate, conflict и ignored отвечают 200, чтобы провайдер прекратил повторы.
func (a *api) applyEvent(w http.ResponseWriter, r *http.Request, ev domain.PaymentEvent, logger *log.Entry) {
	res, err := a.deps.Applier.Apply(r.Context(), ev)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ackResponse{Status: "ok", Outcome: string(res.Outcome)})
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case domain.IsRetryable(err):
		// 5xx: провайдер доставит событие повторно.
		logger.WithError(err).Error("failed to apply payment event")
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		logger.WithError(err).Warn("payment event rejected")
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
