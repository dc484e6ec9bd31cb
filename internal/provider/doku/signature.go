// Package doku реализует проверку, нормализацию и опрос статуса для провайдера
// с HMAC-SHA256 подписью заголовков запроса.
package doku

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// Заголовки подписанного запроса.
const (
	HeaderSignature        = "Signature"
	HeaderClientID         = "Client-Id"
	HeaderRequestID        = "Request-Id"
	HeaderRequestTimestamp = "Request-Timestamp"

	signaturePrefix = "HMACSHA256="
	// TimestampLayout — формат Request-Timestamp (ISO-8601, UTC).
	TimestampLayout = "2006-01-02T15:04:05Z"
)

var (
	// ErrMissingHeaders — в запросе нет обязательных заголовков подписи.
	ErrMissingHeaders = errors.New("doku: missing signature headers")
	// ErrClientMismatch — Client-Id не совпадает с настроенным.
	ErrClientMismatch = errors.New("doku: client id mismatch")
	// ErrSignatureMismatch — подпись не сошлась.
	ErrSignatureMismatch = errors.New("doku: signature mismatch")
)

// Components — поля, из которых строится каноническая строка подписи.
type Components struct {
	ClientID  string
	RequestID string
	Timestamp string
	// Target — путь запроса, например /payments/notifications/doku.
	Target string
	// Body пустой для GET-запросов, тогда строка Digest не добавляется.
	Body []byte
}

// Digest возвращает base64(SHA-256(body)).
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Canonical собирает строку для подписи.
func Canonical(c Components) string {
	var b strings.Builder
	b.WriteString("Client-Id:")
	b.WriteString(c.ClientID)
	b.WriteString("\nRequest-Id:")
	b.WriteString(c.RequestID)
	b.WriteString("\nRequest-Timestamp:")
	b.WriteString(c.Timestamp)
	b.WriteString("\nRequest-Target:")
	b.WriteString(c.Target)
	if len(c.Body) > 0 {
		b.WriteString("\nDigest:")
		b.WriteString(Digest(c.Body))
	}
	return b.String()
}

// Signer подписывает запросы общим секретом. Используется и для входящих
// уведомлений, и для исходящих запросов статуса.
type Signer struct {
	secretKey []byte
}

// NewSigner создаёт подписчика с секретом.
func NewSigner(secretKey string) Signer {
	return Signer{secretKey: []byte(secretKey)}
}

// Sign возвращает значение заголовка Signature.
func (s Signer) Sign(c Components) string {
	return signaturePrefix + base64.StdEncoding.EncodeToString(s.mac(c))
}

func (s Signer) mac(c Components) []byte {
	m := hmac.New(sha256.New, s.secretKey)
	m.Write([]byte(Canonical(c)))
	return m.Sum(nil)
}

// Verifier проверяет входящие уведомления.
type Verifier struct {
	signer      Signer
	clientID    string
	webhookPath string
}

// NewVerifier создаёт проверку для фиксированного пути вебхука.
// Путь берётся из конфигурации, а не из запроса.
func NewVerifier(clientID, secretKey, webhookPath string) *Verifier {
	return &Verifier{
		signer:      NewSigner(secretKey),
		clientID:    clientID,
		webhookPath: webhookPath,
	}
}

// Verify возвращает nil, если подпись корректна. На любых входных данных не паникует.
func (v *Verifier) Verify(header http.Header, body []byte) error {
	signature := strings.TrimSpace(header.Get(HeaderSignature))
	clientID := strings.TrimSpace(header.Get(HeaderClientID))
	requestID := strings.TrimSpace(header.Get(HeaderRequestID))
	timestamp := strings.TrimSpace(header.Get(HeaderRequestTimestamp))
	if signature == "" || clientID == "" || requestID == "" || timestamp == "" {
		return ErrMissingHeaders
	}
	if !subtleStringEqual(clientID, v.clientID) {
		return ErrClientMismatch
	}

	raw, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return ErrSignatureMismatch
	}
	provided, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return ErrSignatureMismatch
	}

	expected := v.signer.mac(Components{
		ClientID:  clientID,
		RequestID: requestID,
		Timestamp: timestamp,
		Target:    v.webhookPath,
		Body:      body,
	})
	if !hmac.Equal(provided, expected) {
		return ErrSignatureMismatch
	}
	return nil
}

func subtleStringEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
