package domain

import (
	"math"
	"time"
)

// OrderStatus описывает жизненный цикл заказа в витрине.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, сток зарезервирован, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — оплата подтверждена провайдером.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFailed — провайдер отклонил платёж.
	OrderStatusFailed OrderStatus = "failed"
	// OrderStatusCancelled — платёж отменён или истёк срок оплаты.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed || s == OrderStatusCancelled
}

// OrderItem представляет одну позицию заказа (снимок на момент оформления).
type OrderItem struct {
	ID string
	// ProductID — идентификатор товара, сток которого резервируется.
	ProductID string
	// Qty — количество единиц товара.
	Qty int32
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах.
	UnitPriceMinor int64
	CreatedAt      time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID          string
	OrderNumber string
	UserID      string
	Status      OrderStatus
	Currency    string
	AmountMinor int64
	Items       []OrderItem

	// Provider и PaymentMethod пустые, пока покупатель не выбрал способ оплаты.
	Provider      Provider
	PaymentMethod string
	// TransactionRef заполняется после первого ответа провайдера.
	TransactionRef string
	// LastProviderStatus хранит последний «сырой» статус провайдера для аудита.
	LastProviderStatus string
	// StockReleased выставляется один раз, когда резерв вернули на склад.
	StockReleased bool

	Version   int64
	CreatedAt time.Time
	PaidAt    *time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error
	if o.OrderNumber == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}
	// paidAt заполнен тогда и только тогда, когда заказ оплачен.
	if (o.PaidAt != nil) != (o.Status == OrderStatusPaid) {
		errs = append(errs, ErrPaidAtMismatch)
	}

	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrProductRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}

	calc, err := ItemsTotal(o.Items)
	switch {
	case err != nil:
		errs = append(errs, err)
	case calc != o.AmountMinor:
		errs = append(errs, ErrAmountMismatch)
	}
	return errs
}

// LineTotal возвращает qty × цена позиции или ErrAmountOverflow.
func (i OrderItem) LineTotal() (int64, error) {
	if i.Qty <= 0 || i.UnitPriceMinor <= 0 {
		return 0, nil
	}
	if i.UnitPriceMinor > math.MaxInt64/int64(i.Qty) {
		return 0, ErrAmountOverflow
	}
	return int64(i.Qty) * i.UnitPriceMinor, nil
}

// ItemsTotal суммирует позиции с проверкой переполнения.
func ItemsTotal(items []OrderItem) (int64, error) {
	var total int64
	for _, item := range items {
		line, err := item.LineTotal()
		if err != nil {
			return 0, err
		}
		if line > math.MaxInt64-total {
			return 0, ErrAmountOverflow
		}
		total += line
	}
	return total, nil
}

// MatchesRef сообщает, ссылается ли провайдер на этот заказ (по номеру или внутреннему ID).
func (o *Order) MatchesRef(ref string) bool {
	return ref != "" && (o.OrderNumber == ref || o.ID == ref)
}
