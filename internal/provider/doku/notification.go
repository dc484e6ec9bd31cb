package doku

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/money"
)

// ErrMalformedNotification — тело уведомления не удалось разобрать.
var ErrMalformedNotification = errors.New("doku: malformed notification")

// Notification — тело HTTP-уведомления и ответа на запрос статуса.
type Notification struct {
	Order struct {
		InvoiceNumber string `json:"invoice_number"`
		Amount        int64  `json:"amount"`
	} `json:"order"`
	Transaction struct {
		Status            string `json:"status"`
		Date              string `json:"date"`
		OriginalRequestID string `json:"original_request_id"`
	} `json:"transaction"`
	Service struct {
		ID string `json:"id"`
	} `json:"service"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	VirtualAccountPayment *struct {
		ReferenceNumber string `json:"reference_number"`
	} `json:"virtual_account_payment,omitempty"`
}

// ParseNotification разбирает тело уведомления.
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if strings.TrimSpace(n.Order.InvoiceNumber) == "" {
		return Notification{}, fmt.Errorf("%w: order.invoice_number is empty", ErrMalformedNotification)
	}
	return n, nil
}

// NormalizeStatus отображает статус провайдера на единый словарь.
// Сравнение без учёта регистра; неизвестные значения дают UNKNOWN.
func NormalizeStatus(status string) domain.NormalizedStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESS", "COMPLETED":
		return domain.NormalizedPaid
	case "FAILED":
		return domain.NormalizedFailed
	case "EXPIRED", "CANCELLED":
		return domain.NormalizedCancelled
	case "PENDING":
		return domain.NormalizedPending
	default:
		return domain.NormalizedUnknown
	}
}

// Event переводит уведомление в нормализованное событие.
// requestID используется как ссылка на транзакцию, если провайдер не прислал свою.
func (n Notification) Event(raw []byte, requestID string, source domain.EventSource, now time.Time) domain.PaymentEvent {
	txRef := n.Transaction.OriginalRequestID
	if n.VirtualAccountPayment != nil && n.VirtualAccountPayment.ReferenceNumber != "" {
		txRef = n.VirtualAccountPayment.ReferenceNumber
	}
	if txRef == "" {
		txRef = requestID
	}
	// Сумма нужна только для поиска аномалий: некорректная даёт 0.
	amount, err := money.FromMajor(n.Order.Amount)
	if err != nil {
		amount = 0
	}

	method := n.Channel.ID
	if method == "" {
		method = n.Service.ID
	}

	return domain.PaymentEvent{
		Provider:        domain.ProviderDoku,
		ProviderStatus:  n.Transaction.Status,
		Status:          NormalizeStatus(n.Transaction.Status),
		TransactionRef:  txRef,
		OrderRef:        strings.TrimSpace(n.Order.InvoiceNumber),
		PaymentMethod:   method,
		PaidAmountMinor: amount,
		Raw:             raw,
		Source:          source,
		ReceivedAt:      now.UTC(),
	}
}
