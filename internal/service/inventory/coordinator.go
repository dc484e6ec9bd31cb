// Package inventory резервирует и возвращает сток товаров заказа.
package inventory

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

// Coordinator — единственное место, где меняется сток.
// Все методы работают внутри транзакции вызывающего.
type Coordinator struct {
	logger *log.Entry
}

// NewCoordinator создаёт координатор склада.
func NewCoordinator(logger *log.Entry) *Coordinator {
	if logger == nil {
		logger = log.WithField("component", "inventory")
	}
	return &Coordinator{logger: logger}
}

// Reserve списывает сток под позиции заказа. Любая ошибка откатывает
// создание заказа целиком, частичного резерва не бывает.
func (c *Coordinator) Reserve(ctx context.Context, tx domain.Tx, order domain.Order) error {
	for _, line := range domain.ReservationLines(order.Items) {
		if errs := line.Validate(); len(errs) > 0 {
			return fmt.Errorf("reserve %s: %w", line.ProductID, errs[0])
		}
		if err := tx.AdjustStock(ctx, line.ProductID, -line.Qty); err != nil {
			return fmt.Errorf("reserve %s x%d: %w", line.ProductID, line.Qty, err)
		}
	}
	return nil
}

// Release возвращает резерв на склад и помечает заказ флагом StockReleased.
// Повторный вызов для того же заказа возвращает ErrStockAlreadyReleased.
func (c *Coordinator) Release(ctx context.Context, tx domain.Tx, order *domain.Order) error {
	if order.StockReleased {
		return domain.ErrStockAlreadyReleased
	}

	lines := domain.ReservationLines(order.Items)
	for _, line := range lines {
		if err := tx.AdjustStock(ctx, line.ProductID, line.Qty); err != nil {
			return fmt.Errorf("release %s x%d: %w", line.ProductID, line.Qty, err)
		}
	}
	order.StockReleased = true

	c.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"lines":        len(lines),
	}).Info("stock released")
	return nil
}
