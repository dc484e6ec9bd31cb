package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

// pgTx реализует domain.Tx поверх *sql.Tx.
type pgTx struct {
	tx *sql.Tx
}

// LockOrder берёт SELECT ... FOR UPDATE по номеру заказа, затем по ID.
func (t *pgTx) LockOrder(ctx context.Context, ref string) (domain.Order, error) {
	return selectOrder(ctx, t.tx, ref, "FOR UPDATE")
}

func (t *pgTx) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, user_id, status, currency, amount_minor,
			provider, payment_method, transaction_ref, last_provider_status,
			stock_released, version, created_at, paid_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		order.ID, order.OrderNumber, order.UserID, string(order.Status), order.Currency, order.AmountMinor,
		nullString(string(order.Provider)), nullString(order.PaymentMethod),
		nullString(order.TransactionRef), nullString(order.LastProviderStatus),
		order.StockReleased, order.Version, order.CreatedAt, nullTime(order.PaidAt), order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderNumberTaken
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, qty, unit_price_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6)
		`,
			item.ID, order.ID, item.ProductID, item.Qty, item.UnitPriceMinor, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// UpdateOrder сохраняет изменяемые поля заказа. Позиции и сумма неизменны.
func (t *pgTx) UpdateOrder(ctx context.Context, order domain.Order) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    provider = $2,
		    payment_method = $3,
		    transaction_ref = $4,
		    last_provider_status = $5,
		    stock_released = $6,
		    paid_at = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $9
		  AND version = $10
	`,
		string(order.Status),
		nullString(string(order.Provider)),
		nullString(order.PaymentMethod),
		nullString(order.TransactionRef),
		nullString(order.LastProviderStatus),
		order.StockReleased,
		nullTime(order.PaidAt),
		time.Now().UTC(),
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var id string
		err := t.tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, order.ID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		return domain.ErrOrderVersionConflict
	}
	return nil
}

// AdjustStock меняет сток одним условным UPDATE, чтобы значение не ушло ниже нуля.
func (t *pgTx) AdjustStock(ctx context.Context, productID string, delta int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND stock + $2 >= 0
	`, productID, delta)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("check product exists: %w", err)
	}
	if !exists {
		return domain.ErrProductNotFound
	}
	return domain.ErrInsufficientStock
}

func (t *pgTx) CreateNotification(ctx context.Context, n domain.Notification) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, order_id, message, type, url, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, n.ID, n.UserID, n.OrderID, n.Message, string(n.Type), n.URL, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (t *pgTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$6)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now)
	if err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ domain.Tx = (*pgTx)(nil)
