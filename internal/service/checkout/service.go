// Package checkout оформляет заказы: создаёт pending-заказ и резервирует сток.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/service/inventory"
)

// ErrInvalidOrder оборачивает ошибки валидации запроса.
var ErrInvalidOrder = errors.New("invalid order request")

const (
	orderNumberPrefix = "TH"
	// maxNumberAttempts ограничивает повторы при коллизии сгенерированного номера.
	maxNumberAttempts = 3
)

// ItemRequest — позиция запроса на оформление.
type ItemRequest struct {
	ProductID      string `json:"product_id"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

// PlaceOrderRequest — запрос на оформление заказа.
type PlaceOrderRequest struct {
	// OrderNumber необязателен: пустой номер генерируется.
	OrderNumber   string          `json:"order_number,omitempty"`
	UserID        string          `json:"user_id"`
	Currency      string          `json:"currency"`
	Provider      domain.Provider `json:"provider,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Items         []ItemRequest   `json:"items"`
}

// Service оформляет заказы.
type Service struct {
	txm       domain.TxManager
	inventory *inventory.Coordinator
	logger    *log.Entry
	now       func() time.Time
	newNumber func(time.Time) string
}

// NewService создаёт сервис оформления.
func NewService(txm domain.TxManager, inv *inventory.Coordinator, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	return &Service{
		txm:       txm,
		inventory: inv,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newNumber: GenerateOrderNumber,
	}
}

// GenerateOrderNumber возвращает номер вида TH-YYYYMMDD-XXXXXXXX.
func GenerateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", orderNumberPrefix, now.UTC().Format("20060102"), suffix)
}

// PlaceOrder создаёт заказ в статусе pending и резервирует сток в одной транзакции.
// Сумма считается по позициям; при нехватке стока ничего не сохраняется.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error) {
	order, err := s.buildOrder(req)
	if err != nil {
		return domain.Order{}, err
	}

	generated := strings.TrimSpace(req.OrderNumber) == ""
	for attempt := 1; ; attempt++ {
		if generated {
			order.OrderNumber = s.newNumber(order.CreatedAt)
		}

		err = s.txm.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			if err := s.inventory.Reserve(ctx, tx, order); err != nil {
				return err
			}
			if err := tx.CreateOrder(ctx, order); err != nil {
				return err
			}
			msg, err := domain.NewOrderOutboxMessage(order, order.CreatedAt)
			if err != nil {
				return err
			}
			return tx.EnqueueOutbox(ctx, msg)
		})
		if errors.Is(err, domain.ErrOrderNumberTaken) && generated && attempt < maxNumberAttempts {
			s.logger.WithField("order_number", order.OrderNumber).Warn("generated order number collision, retrying")
			continue
		}
		break
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
	})
	if err != nil {
		logger.WithError(err).Warn("place order failed")
		return domain.Order{}, fmt.Errorf("place order: %w", err)
	}

	logger.WithField("amount_minor", order.AmountMinor).Info("order placed")
	return order, nil
}

func (s *Service) buildOrder(req PlaceOrderRequest) (domain.Order, error) {
	if req.Provider != "" && !req.Provider.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unsupported provider %q", ErrInvalidOrder, req.Provider)
	}

	now := s.now()
	items := make([]domain.OrderItem, 0, len(req.Items))
	for idx, item := range req.Items {
		if item.Qty <= 0 {
			return domain.Order{}, fmt.Errorf("%w: item[%d]: %w", ErrInvalidOrder, idx, domain.ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			return domain.Order{}, fmt.Errorf("%w: item[%d]: %w", ErrInvalidOrder, idx, domain.ErrItemPriceInvalid)
		}
		items = append(items, domain.OrderItem{
			ID:             uuid.NewString(),
			ProductID:      strings.TrimSpace(item.ProductID),
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			CreatedAt:      now,
		})
	}
	amount, err := domain.ItemsTotal(items)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}

	order := domain.Order{
		ID:            uuid.NewString(),
		OrderNumber:   strings.TrimSpace(req.OrderNumber),
		UserID:        strings.TrimSpace(req.UserID),
		Status:        domain.OrderStatusPending,
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
		AmountMinor:   amount,
		Items:         items,
		Provider:      req.Provider,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Номер ещё может быть пустым: проверяем инварианты с плейсхолдером.
	check := order
	if check.OrderNumber == "" {
		check.OrderNumber = orderNumberPrefix
	}
	if errs := check.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, fmt.Errorf("%w: %w", ErrInvalidOrder, errors.Join(errs...))
	}
	return order, nil
}
