package domain

import "time"

// Provider — код внешнего платёжного провайдера.
type Provider string

const (
	// ProviderDoku — провайдер с HMAC-подписью заголовков (Doku).
	ProviderDoku Provider = "doku"
	// ProviderMidtrans — провайдер с SHA-512 подписью в теле уведомления (Midtrans).
	ProviderMidtrans Provider = "midtrans"
)

// Valid проверяет, что провайдер поддерживается.
func (p Provider) Valid() bool {
	return p == ProviderDoku || p == ProviderMidtrans
}

// NormalizedStatus — единый словарь статусов, на который отображаются статусы провайдеров.
type NormalizedStatus string

const (
	NormalizedPaid      NormalizedStatus = "PAID"
	NormalizedPending   NormalizedStatus = "PENDING"
	NormalizedFailed    NormalizedStatus = "FAILED"
	NormalizedCancelled NormalizedStatus = "CANCELLED"
	// NormalizedUnknown — легитимный результат: переход не выполняется.
	NormalizedUnknown NormalizedStatus = "UNKNOWN"
)

// EventSource указывает, каким путём пришло событие.
type EventSource string

const (
	EventSourceWebhook EventSource = "webhook"
	EventSourcePoller  EventSource = "poller"
)

// PaymentEvent — нормализованное уведомление провайдера, которое потребляет машина состояний.
type PaymentEvent struct {
	Provider       Provider
	ProviderStatus string
	Status         NormalizedStatus
	TransactionRef string
	// OrderRef — номер заказа или внутренний ID, в зависимости от того, что провайдер получил при инициации.
	OrderRef      string
	PaymentMethod string
	// PaidAmountMinor используется только для логов и поиска аномалий.
	PaidAmountMinor int64
	Raw             []byte
	Source          EventSource
	ReceivedAt      time.Time
}

// Validate проверяет минимальный набор полей события.
func (e *PaymentEvent) Validate() []error {
	var errs []error
	if !e.Provider.Valid() {
		errs = append(errs, ErrPaymentProviderRequired)
	}
	if e.OrderRef == "" {
		errs = append(errs, ErrOrderRefRequired)
	}
	return errs
}
