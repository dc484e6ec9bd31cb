package domain

import "sort"

// ReservationLine — суммарное количество одного товара в заказе.
type ReservationLine struct {
	ProductID string
	Qty       int64
}

// Validate проверяет, корректно ли заполнена строка резерва.
func (r *ReservationLine) Validate() []error {
	var errs []error
	if r.ProductID == "" {
		errs = append(errs, ErrProductRequired)
	}
	if r.Qty <= 0 {
		errs = append(errs, ErrReservationQtyInvalid)
	}
	return errs
}

// ReservationLines сворачивает позиции заказа по товару и сортирует по ProductID,
// чтобы параллельные транзакции блокировали строки склада в одном порядке.
func ReservationLines(items []OrderItem) []ReservationLine {
	totals := make(map[string]int64, len(items))
	for _, item := range items {
		totals[item.ProductID] += int64(item.Qty)
	}

	lines := make([]ReservationLine, 0, len(totals))
	for productID, qty := range totals {
		lines = append(lines, ReservationLine{ProductID: productID, Qty: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}
