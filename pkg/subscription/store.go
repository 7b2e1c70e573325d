package subscription

import "context"

// RecordStore persists entitlement records.
type RecordStore interface {
	// Get returns ErrRecordNotFound when the user has no record.
	Get(ctx context.Context, userID string) (*Record, error)

	// Update runs fn on the current record, nil when none exists, while
	// holding a per-user lock, and stores the record fn returns.
	Update(ctx context.Context, userID string, fn func(current *Record) (*Record, error)) (*Record, error)
}

// MappingStore persists the transaction index.
type MappingStore interface {
	// Register inserts m or refreshes it when it already belongs to m.UserID.
	// When the ID belongs to another user it returns the existing mapping and
	// ErrTransactionConflict, leaving the mapping unchanged.
	Register(ctx context.Context, m TransactionMapping) (*TransactionMapping, error)

	// Resolve returns ErrMappingNotFound for unknown IDs.
	Resolve(ctx context.Context, originalTransactionID string) (*TransactionMapping, error)
}
