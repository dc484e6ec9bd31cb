package domain

import (
	"context"
	"time"
)

// Tx — единица работы поверх хранилища заказов. Все изменения одного события
// (статус, сток, уведомление, outbox) фиксируются или откатываются вместе.
type Tx interface {
	// LockOrder ищет заказ по номеру, затем по внутреннему ID, и удерживает
	// блокировку строки до конца транзакции.
	LockOrder(ctx context.Context, ref string) (Order, error)
	// CreateOrder сохраняет новый заказ вместе с позициями.
	CreateOrder(ctx context.Context, order Order) error
	// UpdateOrder применяет изменения заказа с проверкой версии.
	UpdateOrder(ctx context.Context, order Order) error
	// AdjustStock меняет сток товара на delta; результат не может уйти ниже нуля.
	AdjustStock(ctx context.Context, productID string, delta int64) error
	// CreateNotification сохраняет пользовательское уведомление.
	CreateNotification(ctx context.Context, n Notification) error
	// EnqueueOutbox ставит событие в transactional outbox.
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) error
}

// TxManager запускает fn в транзакции. Ошибка fn откатывает всё.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// OrderReader — чтение заказов без блокировок (статус для клиента, поллер).
type OrderReader interface {
	// Get возвращает заказ по номеру или внутреннему ID.
	Get(ctx context.Context, ref string) (Order, error)
	// ListPending возвращает pending-заказы, созданные раньше createdBefore.
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]Order, error)
}

// StockReader отдаёт текущий сток товара.
type StockReader interface {
	Stock(ctx context.Context, productID string) (int64, error)
}

// NotificationRepository — чтение уведомлений пользователя.
type NotificationRepository interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error)
}

// NotificationPublisher доставляет уведомление в персональный real-time канал пользователя.
type NotificationPublisher interface {
	Publish(ctx context.Context, n Notification) error
}

// PaymentGateway опрашивает провайдера о статусе платежа (для поллера).
type PaymentGateway interface {
	Provider() Provider
	QueryStatus(ctx context.Context, order Order) (PaymentEvent, error)
}

// AuditRepository хранит проверенные события провайдеров.
type AuditRepository interface {
	Append(ctx context.Context, record AuditRecord) error
	ListByOrder(ctx context.Context, orderRef string) ([]AuditRecord, error)
	DeleteBefore(before time.Time, limit int) (int, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository отдаёт накопленные события воркеру публикации.
type OutboxRepository interface {
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
