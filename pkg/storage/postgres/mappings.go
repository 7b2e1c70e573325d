package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/coachgate/pkg/pg"
	"github.com/dmitrymomot/coachgate/pkg/subscription"
)

// Mappings implements subscription.MappingStore.
type Mappings struct {
	db pg.DBTX
}

func NewMappings(db pg.DBTX) *Mappings {
	return &Mappings{db: db}
}

const mappingColumns = `original_transaction_id, user_id, product_id, expires_time, active, created_at, updated_at`

// Register inserts the mapping or refreshes the summary of an existing one
// owned by the same user. The conditional upsert returns no row when another
// user owns the transaction.
func (s *Mappings) Register(ctx context.Context, m subscription.TransactionMapping) (*subscription.TransactionMapping, error) {
	conn := pg.Conn(ctx, s.db)
	row := conn.QueryRow(ctx, `
INSERT INTO transaction_mappings AS t (`+mappingColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (original_transaction_id) DO UPDATE SET
	product_id   = COALESCE(NULLIF(EXCLUDED.product_id, ''), t.product_id),
	expires_time = EXCLUDED.expires_time,
	active       = EXCLUDED.active,
	updated_at   = EXCLUDED.updated_at
WHERE t.user_id = EXCLUDED.user_id
RETURNING `+mappingColumns,
		m.OriginalTransactionID, m.UserID, m.ProductID, m.ExpiresTime, m.Active, m.UpdatedAt)

	saved, err := scanMapping(row)
	if err == nil {
		return saved, nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, err
	}

	existing, err := s.Resolve(ctx, m.OriginalTransactionID)
	if err != nil {
		return nil, err
	}
	return existing, subscription.ErrTransactionConflict
}

func (s *Mappings) Resolve(ctx context.Context, originalTransactionID string) (*subscription.TransactionMapping, error) {
	row := pg.Conn(ctx, s.db).QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM transaction_mappings WHERE original_transaction_id = $1`,
		originalTransactionID)
	m, err := scanMapping(row)
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrMappingNotFound
	}
	return m, err
}

func scanMapping(row pgx.Row) (*subscription.TransactionMapping, error) {
	var m subscription.TransactionMapping
	if err := row.Scan(&m.OriginalTransactionID, &m.UserID, &m.ProductID, &m.ExpiresTime, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
