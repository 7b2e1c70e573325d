package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/coachgate/pkg/pg"
	"github.com/dmitrymomot/coachgate/pkg/quota"
)

// Counters implements quota.Store. Each operation is one statement, so the
// limit check and the increment are atomic under row locks.
type Counters struct {
	db  pg.DBTX
	now func() time.Time
}

func NewCounters(db pg.DBTX) *Counters {
	return &Counters{db: db, now: time.Now}
}

// Transactional reports that writes join the transaction in the context.
func (s *Counters) Transactional() bool {
	return true
}

func (s *Counters) Reserve(ctx context.Context, key quota.CounterKey, amount, limit int64, retention time.Duration) (quota.Counter, bool, error) {
	conn := pg.Conn(ctx, s.db)

	var c quota.Counter
	err := conn.QueryRow(ctx, `
INSERT INTO quota_counters AS c (subject, resource, window_id, used, reserved, expires_at)
SELECT $1::text, $2::text, $3::text, 0, $4::bigint, $6::timestamptz WHERE $4::bigint <= $5::bigint
ON CONFLICT (subject, resource, window_id) DO UPDATE SET
	reserved   = c.reserved + EXCLUDED.reserved,
	expires_at = GREATEST(c.expires_at, EXCLUDED.expires_at),
	updated_at = now()
WHERE c.used + c.reserved + EXCLUDED.reserved <= $5::bigint
RETURNING used, reserved`,
		key.Subject, string(key.Resource), key.Window, amount, limit, s.now().Add(retention),
	).Scan(&c.Used, &c.Reserved)
	if err == nil {
		return c, true, nil
	}
	if !pg.IsNotFoundError(err) {
		return quota.Counter{}, false, err
	}

	counters, err := s.Get(ctx, key)
	if err != nil {
		return quota.Counter{}, false, err
	}
	return counters[0], false, nil
}

func (s *Counters) Commit(ctx context.Context, key quota.CounterKey, reserved, actual int64, retention time.Duration) error {
	_, err := pg.Conn(ctx, s.db).Exec(ctx, `
INSERT INTO quota_counters AS c (subject, resource, window_id, used, reserved, expires_at)
VALUES ($1, $2, $3, $5, 0, $6)
ON CONFLICT (subject, resource, window_id) DO UPDATE SET
	reserved   = GREATEST(c.reserved - $4, 0),
	used       = c.used + $5,
	expires_at = GREATEST(c.expires_at, EXCLUDED.expires_at),
	updated_at = now()`,
		key.Subject, string(key.Resource), key.Window, reserved, actual, s.now().Add(retention))
	return err
}

func (s *Counters) Release(ctx context.Context, key quota.CounterKey, amount int64) error {
	_, err := pg.Conn(ctx, s.db).Exec(ctx, `
UPDATE quota_counters SET reserved = GREATEST(reserved - $4, 0), updated_at = now()
WHERE subject = $1 AND resource = $2 AND window_id = $3`,
		key.Subject, string(key.Resource), key.Window, amount)
	return err
}

func (s *Counters) Get(ctx context.Context, keys ...quota.CounterKey) ([]quota.Counter, error) {
	out := make([]quota.Counter, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(`SELECT used, reserved FROM quota_counters
WHERE subject = $1 AND resource = $2 AND window_id = $3`, k.Subject, string(k.Resource), k.Window)
	}

	results := pg.Conn(ctx, s.db).SendBatch(ctx, batch)
	defer results.Close()

	for i := range keys {
		err := results.QueryRow().Scan(&out[i].Used, &out[i].Reserved)
		if err != nil && !pg.IsNotFoundError(err) {
			return nil, err
		}
	}
	return out, nil
}

// Prune deletes counters whose retention has passed and that hold no
// reservation. It returns the number of deleted rows.
func (s *Counters) Prune(ctx context.Context) (int64, error) {
	tag, err := pg.Conn(ctx, s.db).Exec(ctx,
		`DELETE FROM quota_counters WHERE expires_at < $1 AND reserved = 0`, s.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
