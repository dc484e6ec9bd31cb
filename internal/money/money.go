// Package money переводит суммы провайдеров в минимальные денежные единицы.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// minorExponent — количество знаков после запятой в минимальной единице.
const minorExponent = 2

var (
	// ErrFractionalMinor — сумма не укладывается в целое число минимальных единиц.
	ErrFractionalMinor = errors.New("amount has more precision than minor units")
	// ErrOutOfRange — сумма отрицательная или не помещается в int64 минимальных единиц.
	ErrOutOfRange = errors.New("amount is negative or out of range")
)

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// ParseMinor разбирает строку вида "10000.00" в минимальные единицы (1000000).
func ParseMinor(amount string) (int64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, fmt.Errorf("parse amount: empty string")
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	shifted := d.Shift(minorExponent)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("parse amount %q: %w", amount, ErrFractionalMinor)
	}
	if shifted.IsNegative() || shifted.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("parse amount %q: %w", amount, ErrOutOfRange)
	}
	return shifted.IntPart(), nil
}

// FromMajor переводит целую сумму в основных единицах в минимальные.
func FromMajor(units int64) (int64, error) {
	shifted := decimal.NewFromInt(units).Shift(minorExponent)
	if shifted.IsNegative() || shifted.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("amount %d: %w", units, ErrOutOfRange)
	}
	return shifted.IntPart(), nil
}

// FormatMajor печатает минимальные единицы как сумму с двумя знаками ("10000.00").
func FormatMajor(minor int64) string {
	return decimal.New(minor, -minorExponent).StringFixed(minorExponent)
}
