package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
)

type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository создаёт PostgreSQL-реализацию AuditRepository.
func NewAuditRepository(store *Store) domain.AuditRepository {
	return &auditRepository{db: store.DB()}
}

func (r *auditRepository) Append(ctx context.Context, record domain.AuditRecord) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_audit (
			id, provider, source, order_ref, provider_status, normalized_status,
			transaction_ref, outcome, payload, received_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		record.ID, string(record.Provider), string(record.Source), record.OrderRef,
		record.ProviderStatus, string(record.Status), nullString(record.TransactionRef),
		string(record.Outcome), record.Payload, record.ReceivedAt,
	); err != nil {
		return fmt.Errorf("append payment audit: %w", err)
	}

	return nil
}

func (r *auditRepository) ListByOrder(ctx context.Context, orderRef string) ([]domain.AuditRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, provider, source, order_ref, provider_status, normalized_status,
		       transaction_ref, outcome, payload, received_at
		FROM payment_audit
		WHERE order_ref = $1
		ORDER BY received_at ASC, id ASC
	`, orderRef)
	if err != nil {
		return nil, fmt.Errorf("list payment audit: %w", err)
	}
	defer rows.Close()

	records := make([]domain.AuditRecord, 0)
	for rows.Next() {
		var (
			rec                               domain.AuditRecord
			provider, source, status, outcome string
			txRef                             sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &provider, &source, &rec.OrderRef, &rec.ProviderStatus, &status,
			&txRef, &outcome, &rec.Payload, &rec.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment audit: %w", err)
		}
		rec.Provider = domain.Provider(provider)
		rec.Source = domain.EventSource(source)
		rec.Status = domain.NormalizedStatus(status)
		rec.Outcome = domain.Outcome(outcome)
		rec.TransactionRef = txRef.String
		rec.ReceivedAt = rec.ReceivedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment audit: %w", err)
	}

	return records, nil
}

// DeleteBefore удаляет батч записей старше before.
func (r *auditRepository) DeleteBefore(before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM payment_audit
		WHERE id IN (
			SELECT id
			FROM payment_audit
			WHERE received_at < $1
			ORDER BY received_at ASC
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete payment audit: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.AuditRepository = (*auditRepository)(nil)
