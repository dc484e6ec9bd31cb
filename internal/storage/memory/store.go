// Package memory содержит in-memory хранилище для локальной разработки и тестов.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

// Store хранит заказы, сток, уведомления и outbox в памяти.
// Транзакции сериализуются: WithinTx держит эксклюзивную блокировку,
// изменения копятся в tx и применяются только при успешном завершении fn.
type Store struct {
	mu sync.RWMutex

	orders   map[string]domain.Order
	byNumber map[string]string
	stock    map[string]int64
	notes    map[string][]domain.Notification
	outbox   map[string]*outboxRecord
	now      func() time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		orders:   make(map[string]domain.Order),
		byNumber: make(map[string]string),
		stock:    make(map[string]int64),
		notes:    make(map[string][]domain.Notification),
		outbox:   make(map[string]*outboxRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SeedProduct задаёт начальный сток товара.
func (s *Store) SeedProduct(productID string, stock int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[productID] = stock
}

// WithinTx выполняет fn атомарно.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:  s,
		orders: make(map[string]domain.Order),
		stock:  make(map[string]int64),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Get возвращает заказ по номеру, затем по внутреннему ID.
func (s *Store) Get(_ context.Context, ref string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.lookup(ref)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListPending возвращает pending-заказы старше createdBefore, самые старые первыми.
func (s *Store) ListPending(_ context.Context, createdBefore time.Time, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.Status != domain.OrderStatusPending || !order.CreatedAt.Before(createdBefore) {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Stock возвращает текущий сток товара.
func (s *Store) Stock(_ context.Context, productID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stock, ok := s.stock[productID]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	return stock, nil
}

// ListByUser возвращает уведомления пользователя, новые первыми.
func (s *Store) ListByUser(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := s.notes[userID]
	result := make([]domain.Notification, 0, len(notes))
	for i := len(notes) - 1; i >= 0; i-- {
		result = append(result, notes[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) lookup(ref string) (domain.Order, bool) {
	if id, ok := s.byNumber[ref]; ok {
		order, found := s.orders[id]
		return order, found
	}
	order, ok := s.orders[ref]
	return order, ok
}

// memTx накапливает изменения одной транзакции.
type memTx struct {
	store  *Store
	orders map[string]domain.Order
	stock  map[string]int64
	notes  []domain.Notification
	outbox []domain.OutboxMessage
}

func (tx *memTx) LockOrder(_ context.Context, ref string) (domain.Order, error) {
	for _, order := range tx.orders {
		if order.MatchesRef(ref) {
			return cloneOrder(order), nil
		}
	}
	order, ok := tx.store.lookup(ref)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (tx *memTx) CreateOrder(_ context.Context, order domain.Order) error {
	if _, exists := tx.store.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if _, exists := tx.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if _, taken := tx.store.byNumber[order.OrderNumber]; taken {
		return domain.ErrOrderNumberTaken
	}
	for _, staged := range tx.orders {
		if staged.OrderNumber == order.OrderNumber {
			return domain.ErrOrderNumberTaken
		}
	}
	tx.orders[order.ID] = cloneOrder(order)
	return nil
}

func (tx *memTx) UpdateOrder(_ context.Context, order domain.Order) error {
	current, ok := tx.orders[order.ID]
	if !ok {
		current, ok = tx.store.orders[order.ID]
	}
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	order.Version++
	order.UpdatedAt = tx.store.now()
	tx.orders[order.ID] = cloneOrder(order)
	return nil
}

func (tx *memTx) AdjustStock(_ context.Context, productID string, delta int64) error {
	current, ok := tx.stock[productID]
	if !ok {
		current, ok = tx.store.stock[productID]
	}
	if !ok {
		return domain.ErrProductNotFound
	}
	if current+delta < 0 {
		return domain.ErrInsufficientStock
	}
	tx.stock[productID] = current + delta
	return nil
}

func (tx *memTx) CreateNotification(_ context.Context, n domain.Notification) error {
	tx.notes = append(tx.notes, n)
	return nil
}

func (tx *memTx) EnqueueOutbox(_ context.Context, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	tx.outbox = append(tx.outbox, msg)
	return nil
}

func (tx *memTx) commit() {
	s := tx.store
	for id, order := range tx.orders {
		s.orders[id] = order
		s.byNumber[order.OrderNumber] = id
	}
	for productID, stock := range tx.stock {
		s.stock[productID] = stock
	}
	for _, n := range tx.notes {
		s.notes[n.UserID] = append(s.notes[n.UserID], n)
	}
	now := s.now()
	for _, msg := range tx.outbox {
		s.outbox[msg.ID] = &outboxRecord{msg: msg, status: outboxStatusPending, createdAt: now, updatedAt: now}
	}
}

func cloneOrder(order domain.Order) domain.Order {
	items := make([]domain.OrderItem, len(order.Items))
	copy(items, order.Items)
	order.Items = items
	if order.PaidAt != nil {
		paidAt := *order.PaidAt
		order.PaidAt = &paidAt
	}
	return order
}

var (
	_ domain.TxManager              = (*Store)(nil)
	_ domain.OrderReader            = (*Store)(nil)
	_ domain.StockReader            = (*Store)(nil)
	_ domain.NotificationRepository = (*Store)(nil)
	_ domain.Tx                     = (*memTx)(nil)
)
