// Package redis доставляет уведомления в персональные real-time каналы пользователей.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

// ChannelPrefix — префикс персонального канала пользователя.
const ChannelPrefix = "notifications:"

const defaultPublishTimeout = 2 * time.Second

var errClientNotInitialized = errors.New("redis client is not initialized")

// publishClient — подмножество *goredis.Client, нужное для PUBLISH.
type publishClient interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

// Options — параметры подключения.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient создаёт клиента Redis.
func NewClient(opts Options) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Channel возвращает имя канала пользователя.
func Channel(userID string) string {
	return ChannelPrefix + userID
}

// NotificationPublisher публикует уведомления через Redis PUBLISH.
type NotificationPublisher struct {
	client  publishClient
	timeout time.Duration
}

// NewNotificationPublisher создаёт publisher поверх клиента Redis.
func NewNotificationPublisher(client publishClient) *NotificationPublisher {
	return &NotificationPublisher{client: client, timeout: defaultPublishTimeout}
}

// Publish отправляет уведомление в канал notifications:<user_id>.
// Отсутствие подписчиков не считается ошибкой.
func (p *NotificationPublisher) Publish(ctx context.Context, n domain.Notification) error {
	if p == nil || p.client == nil {
		return errClientNotInitialized
	}
	if n.UserID == "" {
		return domain.ErrUserRequired
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, Channel(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", Channel(n.UserID), err)
	}
	return nil
}

var _ domain.NotificationPublisher = (*NotificationPublisher)(nil)
