package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	orderColumns = `
		id, order_number, user_id, status, currency, amount_minor,
		provider, payment_method, transaction_ref, last_provider_status,
		stock_released, version, created_at, paid_at, updated_at`
)

// rowQueryer — общий интерфейс *sql.DB и *sql.Tx для чтения.
type rowQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// OrderRepository читает заказы и сток без блокировок.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию чтения заказов и стока.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{db: store.DB()}
}

// Get ищет заказ по номеру, затем по внутреннему ID.
func (r *OrderRepository) Get(ctx context.Context, ref string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return selectOrder(ctx, r.db, ref, "")
}

// ListPending возвращает pending-заказы старше createdBefore, самые старые первыми.
func (r *OrderRepository) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := loadItems(ctx, r.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// Stock возвращает текущий сток товара.
func (r *OrderRepository) Stock(ctx context.Context, productID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var stock int64
	err := r.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrProductNotFound
		}
		return 0, fmt.Errorf("select product stock: %w", err)
	}
	return stock, nil
}

// selectOrder читает заказ с позициями; lockClause добавляется в конец запроса (например, FOR UPDATE).
// Номер заказа имеет приоритет над внутренним ID.
func selectOrder(ctx context.Context, q rowQueryer, ref, lockClause string) (domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_number = $1
		`+lockClause, ref))
	if errors.Is(err, domain.ErrOrderNotFound) {
		order, err = scanOrder(q.QueryRowContext(ctx, `
			SELECT `+orderColumns+`
			FROM orders
			WHERE id = $1
			`+lockClause, ref))
	}
	if err != nil {
		return domain.Order{}, err
	}

	items, err := loadItems(ctx, q, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                               domain.Order
		status                              string
		provider, method, txRef, lastStatus sql.NullString
		paidAt                              sql.NullTime
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &status, &order.Currency, &order.AmountMinor,
		&provider, &method, &txRef, &lastStatus,
		&order.StockReleased, &order.Version, &order.CreatedAt, &paidAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}

	order.Status = domain.OrderStatus(status)
	order.Provider = domain.Provider(provider.String)
	order.PaymentMethod = method.String
	order.TransactionRef = txRef.String
	order.LastProviderStatus = lastStatus.String
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		order.PaidAt = &t
	}
	return order, nil
}

func loadItems(ctx context.Context, q rowQueryer, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, qty, unit_price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Qty, &item.UnitPriceMinor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var (
	_ domain.OrderReader = (*OrderRepository)(nil)
	_ domain.StockReader = (*OrderRepository)(nil)
)
