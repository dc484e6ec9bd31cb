package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/storage/memory"
)

func newOrder() domain.Order {
	now := time.Now().UTC().Add(-time.Hour)
	return domain.Order{
		ID:          "order-1",
		OrderNumber: "TH-1",
		UserID:      "user-1",
		Status:      domain.OrderStatusPending,
		Currency:    "IDR",
		AmountMinor: 500,
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "P1", Qty: 5, UnitPriceMinor: 100, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func createOrder(t *testing.T, store *memory.Store, order domain.Order) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.CreateOrder(ctx, order)
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
}

func TestStore_CreateGetByNumberAndID(t *testing.T) {
	store := memory.NewStore()
	order := newOrder()
	createOrder(t, store, order)

	for _, ref := range []string{"TH-1", "order-1"} {
		stored, err := store.Get(context.Background(), ref)
		if err != nil {
			t.Fatalf("get %s failed: %v", ref, err)
		}
		if stored.ID != order.ID {
			t.Fatalf("expected id %s, got %s", order.ID, stored.ID)
		}
	}

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestStore_DuplicateOrderNumber(t *testing.T) {
	store := memory.NewStore()
	createOrder(t, store, newOrder())

	dup := newOrder()
	dup.ID = "order-2"
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.CreateOrder(ctx, dup)
	})
	if !errors.Is(err, domain.ErrOrderNumberTaken) {
		t.Fatalf("expected ErrOrderNumberTaken, got %v", err)
	}
}

func TestStore_RollbackOnError(t *testing.T) {
	store := memory.NewStore()
	store.SeedProduct("P1", 10)
	createOrder(t, store, newOrder())

	boom := errors.New("boom")
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.LockOrder(ctx, "TH-1")
		if err != nil {
			return err
		}
		order.Status = domain.OrderStatusCancelled
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.AdjustStock(ctx, "P1", 5); err != nil {
			return err
		}
		if err := tx.CreateNotification(ctx, domain.Notification{ID: "n1", UserID: "user-1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	order, _ := store.Get(context.Background(), "TH-1")
	if order.Status != domain.OrderStatusPending || order.Version != 0 {
		t.Fatalf("order must be untouched, got %s v%d", order.Status, order.Version)
	}
	if stock, _ := store.Stock(context.Background(), "P1"); stock != 10 {
		t.Fatalf("stock must be untouched, got %d", stock)
	}
	if notes, _ := store.ListByUser(context.Background(), "user-1", 10); len(notes) != 0 {
		t.Fatalf("notification must be rolled back, got %d", len(notes))
	}
}

func TestStore_UpdateVersionCheck(t *testing.T) {
	store := memory.NewStore()
	createOrder(t, store, newOrder())

	stale := newOrder()
	stale.Version = 3
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.UpdateOrder(ctx, stale)
	})
	if !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	err = store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.LockOrder(ctx, "order-1")
		if err != nil {
			return err
		}
		order.LastProviderStatus = "pending"
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	updated, _ := store.Get(context.Background(), "order-1")
	if updated.Version != 1 || updated.LastProviderStatus != "pending" {
		t.Fatalf("unexpected order after update: %+v", updated)
	}
}

func TestStore_AdjustStock(t *testing.T) {
	store := memory.NewStore()
	store.SeedProduct("P1", 2)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.AdjustStock(ctx, "P1", -3)
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	err = store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.AdjustStock(ctx, "P404", 1)
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	err = store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if err := tx.AdjustStock(ctx, "P1", -2); err != nil {
			return err
		}
		return tx.AdjustStock(ctx, "P1", 1)
	})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if stock, _ := store.Stock(context.Background(), "P1"); stock != 1 {
		t.Fatalf("expected stock 1, got %d", stock)
	}
}

func TestStore_ListPending(t *testing.T) {
	store := memory.NewStore()
	older := newOrder()
	older.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	createOrder(t, store, older)

	fresh := newOrder()
	fresh.ID, fresh.OrderNumber = "order-2", "TH-2"
	fresh.CreatedAt = time.Now().UTC()
	createOrder(t, store, fresh)

	paid := newOrder()
	paid.ID, paid.OrderNumber = "order-3", "TH-3"
	paid.Status = domain.OrderStatusPaid
	createOrder(t, store, paid)

	pending, err := store.ListPending(context.Background(), time.Now().UTC().Add(-30*time.Minute), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "order-1" {
		t.Fatalf("unexpected pending list: %+v", pending)
	}
}

func TestStore_NotificationsNewestFirst(t *testing.T) {
	store := memory.NewStore()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for _, id := range []string{"n1", "n2", "n3"} {
			if err := tx.CreateNotification(ctx, domain.Notification{ID: id, UserID: "user-1"}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("create notifications failed: %v", err)
	}

	notes, err := store.ListByUser(context.Background(), "user-1", 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(notes) != 2 || notes[0].ID != "n3" || notes[1].ID != "n2" {
		t.Fatalf("unexpected notifications: %+v", notes)
	}
}

func TestStore_CanceledContext(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(context.Context, domain.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected context.Canceled without running fn, got %v (called=%v)", err, called)
	}
}
