package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

func enqueueForIntegrationTest(t *testing.T, store *Store, msg domain.OutboxMessage) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.EnqueueOutbox(ctx, msg)
	})
	if err != nil {
		t.Fatalf("enqueue outbox: %v", err)
	}
}

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	enqueueForIntegrationTest(t, store, domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "OrderPaid",
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	enqueueForIntegrationTest(t, store, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-2",
		EventType:     "OrderCancelled",
		Payload:       []byte(`{"order_id":"order-2"}`),
	})

	pending, err := repo.PullPending(0)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats before marks: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats before marks: %+v", stats)
	}

	if err := repo.MarkSent(pending[0].ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkFailed(pending[1].ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	after, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending after marks: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("expected no pending after marks, got %d", len(after))
	}
}

func TestOutboxRepository_PostgresMissingRows(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	if err := repo.MarkSent("missing-outbox"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish on mark sent missing id, got %v", err)
	}
	if err := repo.MarkFailed("missing-outbox"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish on mark failed missing id, got %v", err)
	}
}
