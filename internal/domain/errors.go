package domain

import "errors"

var (
	// Ошибка отсутствующего номера заказа.
	ErrOrderNumberRequired = errors.New("order_number is required")
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отсутствующего товара в позиции.
	ErrProductRequired = errors.New("product_id is required")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка неизвестного статуса заказа.
	ErrOrderStatusInvalid = errors.New("order status is invalid")
	// paid_at должен быть заполнен только у оплаченного заказа.
	ErrPaidAtMismatch = errors.New("paid_at must be set if and only if order is paid")
	// Сумма позиций не помещается в int64.
	ErrAmountOverflow = errors.New("order amount overflows int64")
	// Ошибка отсутствующего кода платёжного провайдера.
	ErrPaymentProviderRequired = errors.New("payment provider is required")
	// Ошибка отсутствующей ссылки на заказ в событии провайдера.
	ErrOrderRefRequired = errors.New("order reference is required")
	// Ошибка некорректного количества в резерве.
	ErrReservationQtyInvalid = errors.New("reservation qty must be greater than zero")

	// ErrOrderNotFound возвращается, если заказ не найден ни по номеру, ни по ID.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNumberTaken — номер заказа уже использован.
	ErrOrderNumberTaken = errors.New("order number already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrProductNotFound — товар отсутствует в каталоге склада.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — недостаточно стока для резерва.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockAlreadyReleased — резерв по заказу уже возвращён.
	ErrStockAlreadyReleased = errors.New("stock already released for order")
	// ErrProviderNotSelected — у заказа ещё нет провайдера, опрашивать некого.
	ErrProviderNotSelected = errors.New("payment provider not selected for order")
	// ErrUnableToVerify — провайдер недоступен, статус заказа не меняется.
	ErrUnableToVerify = errors.New("unable to verify payment status")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsRetryable сообщает, имеет ли смысл провайдеру повторить доставку.
// Бизнес-ошибки не повторяются, сбои хранилища и сети повторяются.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrOrderRefRequired),
		errors.Is(err, ErrPaymentProviderRequired),
		errors.Is(err, ErrStockAlreadyReleased):
		return false
	default:
		return true
	}
}
