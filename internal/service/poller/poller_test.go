package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/service/inventory"
	"github.com/vladislavdragonenkov/paysync/internal/service/notification"
	"github.com/vladislavdragonenkov/paysync/internal/service/reconcile"
	"github.com/vladislavdragonenkov/paysync/internal/storage/memory"
)

type fakeGateway struct {
	provider domain.Provider

	mu     sync.Mutex
	calls  int
	status domain.NormalizedStatus
	err    error
}

func (g *fakeGateway) Provider() domain.Provider { return g.provider }

func (g *fakeGateway) QueryStatus(_ context.Context, order domain.Order) (domain.PaymentEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return domain.PaymentEvent{}, g.err
	}
	return domain.PaymentEvent{
		Provider:       g.provider,
		ProviderStatus: string(g.status),
		Status:         g.status,
		OrderRef:       order.OrderNumber,
		TransactionRef: "tx-" + order.OrderNumber,
	}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type pollerFixture struct {
	store   *memory.Store
	gateway *fakeGateway
	poller  *Poller
}

func newPollerFixture(t *testing.T, cfg Config) *pollerFixture {
	t.Helper()

	store := memory.NewStore()
	store.SeedProduct("P1", 10)

	engine := reconcile.NewEngine(store, inventory.NewCoordinator(nil), notification.NewDispatcher(store))
	gw := &fakeGateway{provider: domain.ProviderDoku, status: domain.NormalizedPaid}
	p := New(store, engine, []domain.PaymentGateway{gw}, cfg, nil, nil)

	return &pollerFixture{store: store, gateway: gw, poller: p}
}

func (f *pollerFixture) createOrder(t *testing.T, number string, provider domain.Provider, createdAt time.Time) {
	t.Helper()

	order := domain.Order{
		ID:          "id-" + number,
		OrderNumber: number,
		UserID:      "user-1",
		Status:      domain.OrderStatusPending,
		Currency:    "IDR",
		AmountMinor: 1000,
		Provider:    provider,
		Items:       []domain.OrderItem{{ID: number + "-1", ProductID: "P1", Qty: 1, UnitPriceMinor: 1000, CreatedAt: createdAt}},
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if err := tx.AdjustStock(ctx, "P1", -1); err != nil {
			return err
		}
		return tx.CreateOrder(ctx, order)
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
}

func TestCheckStatus_AppliesProviderStatus(t *testing.T) {
	f := newPollerFixture(t, Config{RatePerSecond: 1000, Burst: 10})
	f.createOrder(t, "TH-1", domain.ProviderDoku, time.Now().UTC())

	res, err := f.poller.CheckStatus(context.Background(), "TH-1")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if !res.Queried || res.Outcome != domain.OutcomeTransitioned || res.Order.Status != domain.OrderStatusPaid {
		t.Fatalf("unexpected result: %+v", res)
	}

	stored, _ := f.store.Get(context.Background(), "TH-1")
	if stored.Status != domain.OrderStatusPaid || stored.TransactionRef != "tx-TH-1" {
		t.Fatalf("order not updated: %+v", stored)
	}
}

func TestCheckStatus_TerminalSkipsProviderCall(t *testing.T) {
	f := newPollerFixture(t, Config{RatePerSecond: 1000, Burst: 10})
	f.createOrder(t, "TH-2", domain.ProviderDoku, time.Now().UTC())

	if _, err := f.poller.CheckStatus(context.Background(), "TH-2"); err != nil {
		t.Fatalf("first check: %v", err)
	}
	res, err := f.poller.CheckStatus(context.Background(), "TH-2")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if res.Queried || res.Order.Status != domain.OrderStatusPaid {
		t.Fatalf("terminal order must be returned without query: %+v", res)
	}
	if f.gateway.callCount() != 1 {
		t.Fatalf("expected one provider call, got %d", f.gateway.callCount())
	}
}

func TestCheckStatus_ProviderNotSelected(t *testing.T) {
	f := newPollerFixture(t, Config{RatePerSecond: 1000, Burst: 10})
	f.createOrder(t, "TH-3", "", time.Now().UTC())

	_, err := f.poller.CheckStatus(context.Background(), "TH-3")
	if !errors.Is(err, domain.ErrProviderNotSelected) {
		t.Fatalf("expected ErrProviderNotSelected, got %v", err)
	}
	if f.gateway.callCount() != 0 {
		t.Fatal("provider must not be called")
	}
}

func TestCheckStatus_ProviderFailureLeavesOrderUntouched(t *testing.T) {
	f := newPollerFixture(t, Config{RatePerSecond: 1000, Burst: 10, BreakerFailures: 2, BreakerReset: time.Hour})
	f.createOrder(t, "TH-4", domain.ProviderDoku, time.Now().UTC())
	f.gateway.err = errors.New("connection refused")

	for i := 0; i < 3; i++ {
		res, err := f.poller.CheckStatus(context.Background(), "TH-4")
		if !errors.Is(err, domain.ErrUnableToVerify) {
			t.Fatalf("attempt %d: expected ErrUnableToVerify, got %v", i, err)
		}
		if res.Order.Status != domain.OrderStatusPending {
			t.Fatalf("order must stay pending: %+v", res.Order)
		}
	}

	// Третья попытка отсечена открытым breaker.
	if f.gateway.callCount() != 2 {
		t.Fatalf("expected breaker to stop calls after 2 failures, got %d", f.gateway.callCount())
	}

	stored, _ := f.store.Get(context.Background(), "TH-4")
	if stored.Status != domain.OrderStatusPending || stored.Version != 0 {
		t.Fatalf("order must be untouched: %+v", stored)
	}
	stock, _ := f.store.Stock(context.Background(), "P1")
	if stock != 9 {
		t.Fatalf("stock must stay reserved, got %d", stock)
	}
}

func TestCheckStatus_UnknownOrder(t *testing.T) {
	f := newPollerFixture(t, Config{})

	_, err := f.poller.CheckStatus(context.Background(), "missing")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCheckStatus_NoGatewayForProvider(t *testing.T) {
	f := newPollerFixture(t, Config{RatePerSecond: 1000, Burst: 10})
	f.createOrder(t, "TH-5", domain.ProviderMidtrans, time.Now().UTC())

	_, err := f.poller.CheckStatus(context.Background(), "TH-5")
	if !errors.Is(err, domain.ErrUnableToVerify) {
		t.Fatalf("expected ErrUnableToVerify, got %v", err)
	}
}
