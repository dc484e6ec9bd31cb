package doku

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

const statusPathPrefix = "/orders/v1/status/"

var (
	// ErrStatusQuery — провайдер не дал пригодного ответа на запрос статуса.
	ErrStatusQuery = errors.New("doku: status query failed")

	errUnknownRef = errors.New("invoice not found")
)

// ClientConfig — учётные данные и адрес API провайдера.
type ClientConfig struct {
	BaseURL   string
	ClientID  string
	SecretKey string
	Timeout   time.Duration
}

// Client опрашивает провайдера о статусе оплаты заказа.
type Client struct {
	http     *resty.Client
	signer   Signer
	clientID string
	now      func() time.Time
	newID    func() string
}

// NewClient создаёт клиента. Вызывается один раз при старте.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:     httpClient,
		signer:   NewSigner(cfg.SecretKey),
		clientID: cfg.ClientID,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Provider реализует domain.PaymentGateway.
func (c *Client) Provider() domain.Provider {
	return domain.ProviderDoku
}

// QueryStatus запрашивает статус по номеру заказа, который провайдер получил как invoice_number.
// Если провайдер номер не знает, повторяет запрос по внутреннему ID.
func (c *Client) QueryStatus(ctx context.Context, order domain.Order) (domain.PaymentEvent, error) {
	ev, err := c.queryRef(ctx, order, order.OrderNumber)
	if errors.Is(err, errUnknownRef) && order.ID != "" && order.ID != order.OrderNumber {
		return c.queryRef(ctx, order, order.ID)
	}
	return ev, err
}

func (c *Client) queryRef(ctx context.Context, order domain.Order, ref string) (domain.PaymentEvent, error) {
	target := statusPathPrefix + url.PathEscape(ref)
	requestID := c.newID()
	timestamp := c.now().UTC().Format(TimestampLayout)

	signature := c.signer.Sign(Components{
		ClientID:  c.clientID,
		RequestID: requestID,
		Timestamp: timestamp,
		Target:    target,
	})

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderClientID, c.clientID).
		SetHeader(HeaderRequestID, requestID).
		SetHeader(HeaderRequestTimestamp, timestamp).
		SetHeader(HeaderSignature, signature).
		Get(target)
	if err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrStatusQuery, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %w: %s", ErrStatusQuery, errUnknownRef, ref)
	}
	if resp.StatusCode() != http.StatusOK {
		return domain.PaymentEvent{}, fmt.Errorf("%w: http %d", ErrStatusQuery, resp.StatusCode())
	}

	body := resp.Body()
	n, err := ParseNotification(body)
	if err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrStatusQuery, err)
	}
	if !order.MatchesRef(n.Order.InvoiceNumber) {
		return domain.PaymentEvent{}, fmt.Errorf("%w: invoice %q does not match order", ErrStatusQuery, n.Order.InvoiceNumber)
	}

	return n.Event(body, requestID, domain.EventSourcePoller, c.now()), nil
}
