package domain

import "time"

// NotificationType описывает вид пользовательского уведомления.
type NotificationType string

const (
	NotificationPaymentSuccess   NotificationType = "payment_success"
	NotificationPaymentFailed    NotificationType = "payment_failed"
	NotificationPaymentCancelled NotificationType = "payment_cancelled"
)

// Notification — видимая пользователю запись о смене статуса заказа.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	OrderID   string           `json:"order_id"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	URL       string           `json:"url"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
