package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Типы событий жизненного цикла заказа в outbox.
const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPaid      = "OrderPaid"
	EventOrderFailed    = "OrderFailed"
	EventOrderCancelled = "OrderCancelled"

	// AggregateOrder — тип агрегата в outbox.
	AggregateOrder = "order"
)

// OrderStatusEvent — тело outbox-события о заказе.
type OrderStatusEvent struct {
	OrderID        string      `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	UserID         string      `json:"user_id"`
	Status         OrderStatus `json:"status"`
	AmountMinor    int64       `json:"amount_minor"`
	Currency       string      `json:"currency"`
	Provider       Provider    `json:"provider,omitempty"`
	ProviderStatus string      `json:"provider_status,omitempty"`
	TransactionRef string      `json:"transaction_ref,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

// EventTypeForStatus возвращает тип outbox-события для статуса заказа.
func EventTypeForStatus(status OrderStatus) string {
	switch status {
	case OrderStatusPaid:
		return EventOrderPaid
	case OrderStatusFailed:
		return EventOrderFailed
	case OrderStatusCancelled:
		return EventOrderCancelled
	default:
		return EventOrderCreated
	}
}

// NewOrderOutboxMessage собирает outbox-сообщение о текущем состоянии заказа.
func NewOrderOutboxMessage(order Order, occurredAt time.Time) (OutboxMessage, error) {
	payload, err := json.Marshal(OrderStatusEvent{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Status:         order.Status,
		AmountMinor:    order.AmountMinor,
		Currency:       order.Currency,
		Provider:       order.Provider,
		ProviderStatus: order.LastProviderStatus,
		TransactionRef: order.TransactionRef,
		OccurredAt:     occurredAt.UTC(),
	})
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal order event: %w", err)
	}

	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   order.ID,
		EventType:     EventTypeForStatus(order.Status),
		Payload:       payload,
	}, nil
}
