package domain

import "testing"

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		current  OrderStatus
		incoming NormalizedStatus
		want     Decision
	}{
		{"pending to paid", OrderStatusPending, NormalizedPaid, Decision{Outcome: OutcomeTransitioned, Target: OrderStatusPaid}},
		{"pending to failed", OrderStatusPending, NormalizedFailed, Decision{Outcome: OutcomeTransitioned, Target: OrderStatusFailed, ReleaseStock: true}},
		{"pending to cancelled", OrderStatusPending, NormalizedCancelled, Decision{Outcome: OutcomeTransitioned, Target: OrderStatusCancelled, ReleaseStock: true}},
		{"pending stays pending", OrderStatusPending, NormalizedPending, Decision{Outcome: OutcomeIgnored}},
		{"unknown ignored", OrderStatusPending, NormalizedUnknown, Decision{Outcome: OutcomeIgnored}},
		{"paid duplicate", OrderStatusPaid, NormalizedPaid, Decision{Outcome: OutcomeDuplicate}},
		{"failed duplicate", OrderStatusFailed, NormalizedFailed, Decision{Outcome: OutcomeDuplicate}},
		{"late failed after paid", OrderStatusPaid, NormalizedFailed, Decision{Outcome: OutcomeConflict}},
		{"late paid after cancel", OrderStatusCancelled, NormalizedPaid, Decision{Outcome: OutcomeConflict}},
		{"pending after paid", OrderStatusPaid, NormalizedPending, Decision{Outcome: OutcomeIgnored}},
		{"unknown after failed", OrderStatusFailed, NormalizedUnknown, Decision{Outcome: OutcomeIgnored}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.current, tt.incoming); got != tt.want {
				t.Fatalf("Decide(%s, %s) = %+v, want %+v", tt.current, tt.incoming, got, tt.want)
			}
		})
	}
}

// Никакая последовательность событий не выводит заказ из терминального статуса.
func TestDecide_TerminalIsMonotonic(t *testing.T) {
	all := []NormalizedStatus{NormalizedPaid, NormalizedPending, NormalizedFailed, NormalizedCancelled, NormalizedUnknown}
	for _, current := range []OrderStatus{OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled} {
		for _, incoming := range all {
			if d := Decide(current, incoming); d.Outcome == OutcomeTransitioned {
				t.Fatalf("terminal %s transitioned on %s", current, incoming)
			}
		}
	}
}
