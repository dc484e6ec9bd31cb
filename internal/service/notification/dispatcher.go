// Package notification формирует, сохраняет и доставляет уведомления о смене статуса заказа.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/metrics"
)

const defaultListLimit = 50

// Dispatcher создаёт уведомления внутри транзакции перехода и публикует их после commit.
type Dispatcher struct {
	repo      domain.NotificationRepository
	publisher domain.NotificationPublisher
	metrics   *metrics.ReconcileMetrics
	logger    *log.Entry
	now       func() time.Time
	newID     func() string
}

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

// WithPublisher задаёт real-time канал доставки.
func WithPublisher(publisher domain.NotificationPublisher) Option {
	return func(d *Dispatcher) { d.publisher = publisher }
}

// WithMetrics задаёт метрики доставки.
func WithMetrics(m *metrics.ReconcileMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher создаёт диспетчер. Без publisher уведомления только сохраняются.
func NewDispatcher(repo domain.NotificationRepository, options ...Option) *Dispatcher {
	d := &Dispatcher{
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, option := range options {
		option(d)
	}
	if d.logger == nil {
		d.logger = log.WithField("component", "notification-dispatcher")
	}
	return d
}

// Compose формирует уведомление для терминального статуса. Для pending второй результат false.
func (d *Dispatcher) Compose(order domain.Order, status domain.OrderStatus) (domain.Notification, bool) {
	var (
		kind    domain.NotificationType
		message string
	)
	switch status {
	case domain.OrderStatusPaid:
		kind = domain.NotificationPaymentSuccess
		message = fmt.Sprintf("Payment for order %s was successful. We are preparing your items.", order.OrderNumber)
	case domain.OrderStatusFailed:
		kind = domain.NotificationPaymentFailed
		message = fmt.Sprintf("Payment for order %s failed. Reserved items were returned to stock.", order.OrderNumber)
	case domain.OrderStatusCancelled:
		kind = domain.NotificationPaymentCancelled
		message = fmt.Sprintf("Payment for order %s was cancelled or expired.", order.OrderNumber)
	default:
		return domain.Notification{}, false
	}

	return domain.Notification{
		ID:        d.newID(),
		UserID:    order.UserID,
		OrderID:   order.ID,
		Message:   message,
		Type:      kind,
		URL:       "/orders/" + order.OrderNumber,
		CreatedAt: d.now(),
	}, true
}

// Record сохраняет уведомление в транзакции перехода.
func (d *Dispatcher) Record(ctx context.Context, tx domain.Tx, n domain.Notification) error {
	if err := tx.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

// Publish доставляет уведомление в персональный канал пользователя.
// Ошибка доставки не откатывает переход: запись уже сохранена и доступна через List.
func (d *Dispatcher) Publish(ctx context.Context, n domain.Notification) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, n); err != nil {
		d.metrics.RecordNotificationPublish(false)
		d.logger.WithError(err).WithFields(log.Fields{
			"notification_id": n.ID,
			"user_id":         n.UserID,
			"order_id":        n.OrderID,
		}).Warn("real-time notification publish failed")
		return
	}
	d.metrics.RecordNotificationPublish(true)
}

// List возвращает уведомления пользователя, новые первыми.
func (d *Dispatcher) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return d.repo.ListByUser(ctx, userID, limit)
}
