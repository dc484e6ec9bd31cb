package domain

// Outcome — результат применения события к заказу.
type Outcome string

const (
	// OutcomeTransitioned — заказ перешёл в терминальный статус, побочные эффекты поставлены.
	OutcomeTransitioned Outcome = "transitioned"
	// OutcomeDuplicate — повторная доставка того же терминального статуса.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeConflict — событие требует другого терминального статуса, чем уже записан.
	OutcomeConflict Outcome = "conflict"
	// OutcomeIgnored — PENDING/UNKNOWN: перехода нет.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeNotFound — заказ по ссылке провайдера не найден.
	OutcomeNotFound Outcome = "not_found"
)

// Decision описывает, что машина состояний должна сделать с заказом.
type Decision struct {
	Outcome Outcome
	// Target заполнен только для OutcomeTransitioned.
	Target OrderStatus
	// ReleaseStock требует вернуть зарезервированный сток.
	ReleaseStock bool
}

// TargetStatus отображает нормализованный статус на терминальный статус заказа.
// Второй результат false, если статус не ведёт к переходу.
func TargetStatus(status NormalizedStatus) (OrderStatus, bool) {
	switch status {
	case NormalizedPaid:
		return OrderStatusPaid, true
	case NormalizedFailed:
		return OrderStatusFailed, true
	case NormalizedCancelled:
		return OrderStatusCancelled, true
	default:
		return "", false
	}
}

// Decide — чистая функция перехода (текущий статус, нормализованное событие) -> решение.
// Терминальные статусы монотонны: из них нет переходов.
func Decide(current OrderStatus, incoming NormalizedStatus) Decision {
	target, ok := TargetStatus(incoming)
	if !ok {
		return Decision{Outcome: OutcomeIgnored}
	}

	if current.Terminal() {
		if current == target {
			return Decision{Outcome: OutcomeDuplicate}
		}
		return Decision{Outcome: OutcomeConflict}
	}

	if current != OrderStatusPending {
		return Decision{Outcome: OutcomeIgnored}
	}

	return Decision{
		Outcome:      OutcomeTransitioned,
		Target:       target,
		ReleaseStock: target == OrderStatusFailed || target == OrderStatusCancelled,
	}
}
