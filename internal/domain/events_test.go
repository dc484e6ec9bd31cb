package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

func TestNewOrderOutboxMessage(t *testing.T) {
	order := domain.Order{
		ID:                 "order-1",
		OrderNumber:        "TH-1",
		UserID:             "user-1",
		Status:             domain.OrderStatusPaid,
		AmountMinor:        1000000,
		Currency:           "IDR",
		Provider:           domain.ProviderMidtrans,
		LastProviderStatus: "settlement",
		TransactionRef:     "trx-1",
	}

	msg, err := domain.NewOrderOutboxMessage(order, time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.EventType != domain.EventOrderPaid || msg.AggregateType != domain.AggregateOrder || msg.AggregateID != "order-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	var payload domain.OrderStatusEvent
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("payload must be JSON: %v", err)
	}
	if payload.OrderNumber != "TH-1" || payload.ProviderStatus != "settlement" || payload.Status != domain.OrderStatusPaid {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestEventTypeForStatus(t *testing.T) {
	cases := map[domain.OrderStatus]string{
		domain.OrderStatusPending:   domain.EventOrderCreated,
		domain.OrderStatusPaid:      domain.EventOrderPaid,
		domain.OrderStatusFailed:    domain.EventOrderFailed,
		domain.OrderStatusCancelled: domain.EventOrderCancelled,
	}
	for status, want := range cases {
		if got := domain.EventTypeForStatus(status); got != want {
			t.Fatalf("EventTypeForStatus(%s) = %s, want %s", status, got, want)
		}
	}
}
