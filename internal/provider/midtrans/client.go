package midtrans

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

var (
	// ErrStatusQuery — провайдер не дал пригодного ответа на запрос статуса.
	ErrStatusQuery = errors.New("midtrans: status query failed")

	errUnknownRef = errors.New("transaction not found")
)

// ClientConfig — серверный ключ и адрес API провайдера.
type ClientConfig struct {
	BaseURL   string
	ServerKey string
	Timeout   time.Duration
}

// Client опрашивает провайдера о статусе транзакции.
type Client struct {
	http     *resty.Client
	verifier *Verifier
	now      func() time.Time
}

// NewClient создаёт клиента с basic-авторизацией серверным ключом.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetBasicAuth(cfg.ServerKey, "").
		SetHeader("Accept", "application/json")

	return &Client{
		http:     httpClient,
		verifier: NewVerifier(cfg.ServerKey),
		now:      time.Now,
	}
}

// Provider реализует domain.PaymentGateway.
func (c *Client) Provider() domain.Provider {
	return domain.ProviderMidtrans
}

// QueryStatus запрашивает статус по order_id и проверяет подпись ответа тем же кодом,
// что и входящие уведомления. Если номер заказа провайдеру неизвестен, повторяет запрос
// по внутреннему ID.
func (c *Client) QueryStatus(ctx context.Context, order domain.Order) (domain.PaymentEvent, error) {
	ev, err := c.queryRef(ctx, order, order.OrderNumber)
	if errors.Is(err, errUnknownRef) && order.ID != "" && order.ID != order.OrderNumber {
		return c.queryRef(ctx, order, order.ID)
	}
	return ev, err
}

func (c *Client) queryRef(ctx context.Context, order domain.Order, ref string) (domain.PaymentEvent, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/v2/" + url.PathEscape(ref) + "/status")
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
	// API отвечает 200 и для ошибок, настоящий код лежит в status_code.
	if n.StatusCode == "404" {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %w: %s", ErrStatusQuery, errUnknownRef, ref)
	}
	if !strings.HasPrefix(n.StatusCode, "2") && n.StatusCode != "407" {
		return domain.PaymentEvent{}, fmt.Errorf("%w: status_code %s: %s", ErrStatusQuery, n.StatusCode, n.StatusMessage)
	}
	if err := c.verifier.Verify(n); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrStatusQuery, err)
	}
	if !order.MatchesRef(n.OrderID) {
		return domain.PaymentEvent{}, fmt.Errorf("%w: order_id %q does not match order", ErrStatusQuery, n.OrderID)
	}

	return n.Event(body, domain.EventSourcePoller, c.now()), nil
}
