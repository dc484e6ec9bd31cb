// Package midtrans реализует проверку, нормализацию и опрос статуса для провайдера
// с SHA-512 подписью в теле уведомления.
package midtrans

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrMissingFields — в уведомлении нет полей, участвующих в подписи.
	ErrMissingFields = errors.New("midtrans: missing signature fields")
	// ErrSignatureMismatch — signature_key не совпал.
	ErrSignatureMismatch = errors.New("midtrans: signature mismatch")
)

// Signature возвращает hex(SHA-512(order_id + status_code + gross_amount + server_key)).
// gross_amount берётся строкой ровно в том виде, в каком его прислал провайдер.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// Verifier проверяет signature_key уведомлений и ответов API.
type Verifier struct {
	serverKey string
}

// NewVerifier создаёт проверку с серверным ключом.
func NewVerifier(serverKey string) *Verifier {
	return &Verifier{serverKey: serverKey}
}

// Verify возвращает nil, если подпись корректна.
func (v *Verifier) Verify(n Notification) error {
	if n.OrderID == "" || n.StatusCode == "" || n.GrossAmount == "" || n.SignatureKey == "" {
		return ErrMissingFields
	}
	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, v.serverKey)
	provided := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}
