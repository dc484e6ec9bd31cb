package memory

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

func enqueue(t *testing.T, store *Store, msg domain.OutboxMessage) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.EnqueueOutbox(ctx, msg)
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
}

func TestOutbox_EnqueueAndPull(t *testing.T) {
	store := NewStore()
	enqueue(t, store, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "OrderPaid",
		Payload:       []byte(`{"status":"paid"}`),
	})

	pending, err := store.PullPending(10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}
	if pending[0].ID == "" {
		t.Fatal("expected generated id")
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOutbox_MarkSentAndFailed(t *testing.T) {
	store := NewStore()
	enqueue(t, store, domain.OutboxMessage{ID: "m1", AggregateType: "order"})
	enqueue(t, store, domain.OutboxMessage{ID: "m2", AggregateType: "order"})

	if err := store.MarkSent("m1"); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := store.MarkFailed("m2"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if len(store.AllPending()) != 0 {
		t.Fatal("expected no pending messages")
	}
	if err := store.MarkSent("missing"); err == nil {
		t.Fatal("expected error for unknown id")
	}
	if store.outbox["m1"].attemptCnt != 1 || store.outbox["m2"].status != outboxStatusFailed {
		t.Fatalf("unexpected records: %+v %+v", store.outbox["m1"], store.outbox["m2"])
	}
}

func TestOutbox_RolledBackWithTx(t *testing.T) {
	store := NewStore()
	_ = store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_ = tx.EnqueueOutbox(ctx, domain.OutboxMessage{ID: "m1"})
		return domain.ErrOrderNotFound
	})
	if len(store.AllPending()) != 0 {
		t.Fatal("outbox must not keep rolled back messages")
	}
}
