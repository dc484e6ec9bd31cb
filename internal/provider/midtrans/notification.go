package midtrans

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/money"
)

// ErrMalformedNotification — тело не является JSON-объектом уведомления.
var ErrMalformedNotification = errors.New("midtrans: malformed notification")

// Notification — тело HTTP-уведомления и ответа /v2/{order_id}/status.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
	StatusMessage     string `json:"status_message,omitempty"`
}

// ParseNotification разбирает JSON. Проверка полей выполняется в Verifier.
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	n.OrderID = strings.TrimSpace(n.OrderID)
	return n, nil
}

// NormalizeStatus отображает transaction_status и fraud_status на единый словарь.
func NormalizeStatus(transactionStatus, fraudStatus string) domain.NormalizedStatus {
	switch strings.ToLower(strings.TrimSpace(transactionStatus)) {
	case "settlement":
		return domain.NormalizedPaid
	case "capture":
		switch strings.ToLower(strings.TrimSpace(fraudStatus)) {
		case "", "accept":
			return domain.NormalizedPaid
		case "challenge":
			return domain.NormalizedPending
		default:
			return domain.NormalizedUnknown
		}
	case "pending", "authorize":
		return domain.NormalizedPending
	case "deny", "failure":
		return domain.NormalizedFailed
	case "cancel", "expire":
		return domain.NormalizedCancelled
	default:
		return domain.NormalizedUnknown
	}
}

// Event переводит проверенное уведомление в нормализованное событие.
// Нечитаемая сумма не мешает переходу: она нужна только для сверки.
func (n Notification) Event(raw []byte, source domain.EventSource, now time.Time) domain.PaymentEvent {
	amount, err := money.ParseMinor(n.GrossAmount)
	if err != nil {
		amount = 0
	}
	return domain.PaymentEvent{
		Provider:        domain.ProviderMidtrans,
		ProviderStatus:  n.TransactionStatus,
		Status:          NormalizeStatus(n.TransactionStatus, n.FraudStatus),
		TransactionRef:  n.TransactionID,
		OrderRef:        n.OrderID,
		PaymentMethod:   n.PaymentType,
		PaidAmountMinor: amount,
		Raw:             raw,
		Source:          source,
		ReceivedAt:      now.UTC(),
	}
}
