package domain

import "time"

// AuditRecord фиксирует проверенное событие провайдера и исход его применения.
type AuditRecord struct {
	ID             string
	Provider       Provider
	Source         EventSource
	OrderRef       string
	ProviderStatus string
	Status         NormalizedStatus
	TransactionRef string
	Outcome        Outcome
	Payload        []byte
	ReceivedAt     time.Time
}
