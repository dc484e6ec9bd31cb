package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

// auditRepositoryInMemory хранит журнал событий провайдеров в памяти.
type auditRepositoryInMemory struct {
	mu      sync.RWMutex
	records map[string][]domain.AuditRecord
}

// NewAuditRepository создаёт in-memory реализацию AuditRepository.
func NewAuditRepository() domain.AuditRepository {
	return &auditRepositoryInMemory{records: make(map[string][]domain.AuditRecord)}
}

// Append добавляет запись в журнал заказа.
func (r *auditRepositoryInMemory) Append(_ context.Context, record domain.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	r.records[record.OrderRef] = append(r.records[record.OrderRef], record)

	sort.SliceStable(r.records[record.OrderRef], func(i, j int) bool {
		return r.records[record.OrderRef][i].ReceivedAt.Before(r.records[record.OrderRef][j].ReceivedAt)
	})

	return nil
}

// ListByOrder возвращает события заказа в хронологическом порядке.
func (r *auditRepositoryInMemory) ListByOrder(_ context.Context, orderRef string) ([]domain.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := r.records[orderRef]
	result := make([]domain.AuditRecord, len(records))
	copy(result, records)
	return result, nil
}

// DeleteBefore удаляет до limit записей, полученных раньше before.
func (r *auditRepositoryInMemory) DeleteBefore(before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for ref, records := range r.records {
		kept := records[:0]
		for _, rec := range records {
			if deleted < limit && rec.ReceivedAt.Before(before) {
				deleted++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(r.records, ref)
			continue
		}
		r.records[ref] = kept
	}
	return deleted, nil
}

var _ domain.AuditRepository = (*auditRepositoryInMemory)(nil)
