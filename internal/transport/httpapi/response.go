package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/money"
)

type errorResponse struct {
	Error string `json:"error"`
}

// ackResponse — ответ провайдеру на принятое уведомление.
type ackResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
}

type itemView struct {
	ProductID      string `json:"product_id"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

// orderView — представление заказа для покупателя. Сырой статус провайдера не отдаётся.
type orderView struct {
	ID            string     `json:"id"`
	OrderNumber   string     `json:"order_number"`
	UserID        string     `json:"user_id"`
	Status        string     `json:"status"`
	Currency      string     `json:"currency"`
	AmountMinor   int64      `json:"amount_minor"`
	Amount        string     `json:"amount"`
	Provider      string     `json:"provider,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	Items         []itemView `json:"items"`
	CreatedAt     time.Time  `json:"created_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type checkStatusView struct {
	Order   orderView `json:"order"`
	Queried bool      `json:"queried"`
	Outcome string    `json:"outcome,omitempty"`
}

type auditView struct {
	ID             string    `json:"id"`
	Provider       string    `json:"provider"`
	Source         string    `json:"source"`
	ProviderStatus string    `json:"provider_status"`
	Status         string    `json:"status"`
	TransactionRef string    `json:"transaction_ref,omitempty"`
	Outcome        string    `json:"outcome"`
	ReceivedAt     time.Time `json:"received_at"`
}

func newOrderView(o domain.Order) orderView {
	items := make([]itemView, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, itemView{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
		})
	}
	return orderView{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        string(o.Status),
		Currency:      o.Currency,
		AmountMinor:   o.AmountMinor,
		Amount:        money.FormatMajor(o.AmountMinor),
		Provider:      string(o.Provider),
		PaymentMethod: o.PaymentMethod,
		Items:         items,
		CreatedAt:     o.CreatedAt,
		PaidAt:        o.PaidAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func newAuditView(r domain.AuditRecord) auditView {
	return auditView{
		ID:             r.ID,
		Provider:       string(r.Provider),
		Source:         string(r.Source),
		ProviderStatus: r.ProviderStatus,
		Status:         string(r.Status),
		TransactionRef: r.TransactionRef,
		Outcome:        string(r.Outcome),
		ReceivedAt:     r.ReceivedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// readBody читает тело целиком. Превышение лимита отдаёт 413.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return nil, false
	}
	return body, true
}
