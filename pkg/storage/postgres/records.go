package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/coachgate/pkg/pg"
	"github.com/dmitrymomot/coachgate/pkg/subscription"
)

// Records implements subscription.RecordStore.
type Records struct {
	db pg.TxBeginner
}

func NewRecords(db pg.TxBeginner) *Records {
	return &Records{db: db}
}

const recordColumns = `user_id, product_id, original_transaction_id, transaction_id, purchase_time,
	expires_time, is_trial, is_intro_offer, auto_renew_status, environment, verified_at,
	last_notification_type, last_notified_at, last_validated_at, created_at, updated_at`

func (s *Records) Get(ctx context.Context, userID string) (*subscription.Record, error) {
	row := pg.Conn(ctx, s.db).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM entitlement_records WHERE user_id = $1`, userID)
	rec, err := scanRecord(row)
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrRecordNotFound
	}
	return rec, err
}

// Update locks the user's row for the duration of fn. The first record of a
// user is inserted without a prior lock; a concurrent first insert makes the
// loser retry against the winner's row.
func (s *Records) Update(ctx context.Context, userID string, fn func(*subscription.Record) (*subscription.Record, error)) (*subscription.Record, error) {
	var out *subscription.Record
	for attempt := 0; attempt < 2; attempt++ {
		retry := false
		err := pg.WithTx(ctx, s.db, func(ctx context.Context) error {
			conn := pg.Conn(ctx, s.db)

			current, err := scanRecord(conn.QueryRow(ctx,
				`SELECT `+recordColumns+` FROM entitlement_records WHERE user_id = $1 FOR UPDATE`, userID))
			switch {
			case pg.IsNotFoundError(err):
				current = nil
			case err != nil:
				return err
			}

			next, err := fn(current)
			if err != nil {
				return err
			}

			if current == nil {
				tag, err := conn.Exec(ctx, insertRecord, recordArgs(userID, next)...)
				if err != nil {
					return err
				}
				if tag.RowsAffected() == 0 {
					retry = true
					return errRetry
				}
			} else if _, err := conn.Exec(ctx, updateRecord, recordArgs(userID, next)...); err != nil {
				return err
			}
			out = next
			return nil
		})
		if retry {
			continue
		}
		return out, err
	}
	return nil, errConcurrentInsert
}

var (
	errRetry            = errors.New("postgres: retry")
	errConcurrentInsert = errors.New("postgres: entitlement record inserted concurrently")
)

const insertRecord = `INSERT INTO entitlement_records (` + recordColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (user_id) DO NOTHING`

const updateRecord = `UPDATE entitlement_records SET
	product_id = $2, original_transaction_id = $3, transaction_id = $4, purchase_time = $5,
	expires_time = $6, is_trial = $7, is_intro_offer = $8, auto_renew_status = $9,
	environment = $10, verified_at = $11, last_notification_type = $12,
	last_notified_at = $13, last_validated_at = $14, created_at = $15, updated_at = $16
WHERE user_id = $1`

func recordArgs(userID string, r *subscription.Record) []any {
	snap := r.Snapshot
	return []any{
		userID, snap.ProductID, snap.OriginalTransactionID, snap.TransactionID, nullTime(snap.PurchaseTime),
		snap.ExpiresTime, snap.IsTrial, snap.IsIntroOffer, snap.AutoRenewStatus, string(snap.Environment), nullTime(snap.VerifiedAt),
		r.LastNotificationType, r.LastNotifiedAt, r.LastValidatedAt, r.CreatedAt, r.UpdatedAt,
	}
}

func scanRecord(row pgx.Row) (*subscription.Record, error) {
	var (
		r                   subscription.Record
		env                 string
		purchased, verified *time.Time
	)
	err := row.Scan(
		&r.UserID, &r.Snapshot.ProductID, &r.Snapshot.OriginalTransactionID, &r.Snapshot.TransactionID, &purchased,
		&r.Snapshot.ExpiresTime, &r.Snapshot.IsTrial, &r.Snapshot.IsIntroOffer, &r.Snapshot.AutoRenewStatus, &env, &verified,
		&r.LastNotificationType, &r.LastNotifiedAt, &r.LastValidatedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Snapshot.Environment = subscription.Environment(env)
	if purchased != nil {
		r.Snapshot.PurchaseTime = *purchased
	}
	if verified != nil {
		r.Snapshot.VerifiedAt = *verified
	}
	return &r, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
