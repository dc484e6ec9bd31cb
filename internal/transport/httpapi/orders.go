package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/service/checkout"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

func (a *api) placeOrder(w http.ResponseWriter, r *http.Request) {
	if a.deps.Checkout == nil {
		writeError(w, http.StatusNotFound, "checkout not configured")
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req checkout.PlaceOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	order, err := a.deps.Checkout.PlaceOrder(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, newOrderView(order))
	case errors.Is(err, checkout.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrOrderNumberTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		a.logger.WithError(err).Error("failed to place order")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *api) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.deps.Orders.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		a.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

// checkStatus — кнопка «проверить статус оплаты».
// Недоступность провайдера отдаёт 503, заказ при этом не меняется.
func (a *api) checkStatus(w http.ResponseWriter, r *http.Request) {
	if a.deps.Checker == nil {
		writeError(w, http.StatusNotFound, "status check not configured")
		return
	}

	res, err := a.deps.Checker.CheckStatus(r.Context(), chi.URLParam(r, "ref"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, checkStatusView{
			Order:   newOrderView(res.Order),
			Queried: res.Queried,
			Outcome: string(res.Outcome),
		})
	case errors.Is(err, domain.ErrUnableToVerify):
		writeError(w, http.StatusServiceUnavailable, "unable to verify payment status, try again later")
	case errors.Is(err, domain.ErrProviderNotSelected):
		writeError(w, http.StatusConflict, err.Error())
	default:
		a.writeLookupError(w, err)
	}
}

func (a *api) orderEvents(w http.ResponseWriter, r *http.Request) {
	if a.deps.Audit == nil {
		writeError(w, http.StatusNotFound, "audit not configured")
		return
	}

	order, err := a.deps.Orders.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		a.writeLookupError(w, err)
		return
	}

	// Провайдер мог ссылаться на заказ и номером, и внутренним ID.
	views := make([]auditView, 0)
	for _, ref := range []string{order.OrderNumber, order.ID} {
		records, err := a.deps.Audit.ListByOrder(r.Context(), ref)
		if err != nil {
			a.logger.WithError(err).Error("failed to list audit records")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		for _, record := range records {
			views = append(views, newAuditView(record))
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *api) listNotifications(w http.ResponseWriter, r *http.Request) {
	if a.deps.Notifications == nil {
		writeError(w, http.StatusNotFound, "notifications not configured")
		return
	}

	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxNotificationLimit)
	}

	items, err := a.deps.Notifications.List(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		if errors.Is(err, domain.ErrUserRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.WithError(err).Error("failed to list notifications")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *api) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	a.logger.WithError(err).Error("failed to load order")
	writeError(w, http.StatusInternalServerError, "internal error")
}
