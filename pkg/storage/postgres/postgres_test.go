package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/coachgate/pkg/coach"
	"github.com/dmitrymomot/coachgate/pkg/pg"
	"github.com/dmitrymomot/coachgate/pkg/quota"
	"github.com/dmitrymomot/coachgate/pkg/storage/postgres"
	"github.com/dmitrymomot/coachgate/pkg/subscription"
)

var (
	poolOnce sync.Once
	pool     *pgxpool.Pool
	poolErr  error
)

// testPool connects to TEST_DATABASE_URL and applies the migrations once.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	poolOnce.Do(func() {
		cfg := pg.Config{
			ConnectionString: dsn,
			MaxOpenConns:     10,
			MaxIdleConns:     1,
			RetryAttempts:    1,
			RetryInterval:    time.Second,
			MigrationsTable:  "coachgate_migrations_test",
		}
		ctx := context.Background()
		pool, poolErr = pg.Connect(ctx, cfg)
		if poolErr != nil {
			return
		}
		poolErr = postgres.Migrate(ctx, pool, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})
	require.NoError(t, poolErr)
	return pool
}

func TestRecords(t *testing.T) {
	t.Parallel()
	db := testPool(t)
	ctx := context.Background()
	records := postgres.NewRecords(db)

	t.Run("missing record", func(t *testing.T) {
		t.Parallel()
		_, err := records.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, subscription.ErrRecordNotFound)
	})

	t.Run("insert then update", func(t *testing.T) {
		t.Parallel()
		userID := uuid.NewString()
		expires := time.Date(2026, 11, 16, 0, 0, 0, 0, time.UTC)
		renew := true

		_, err := records.Update(ctx, userID, func(cur *subscription.Record) (*subscription.Record, error) {
			assert.Nil(t, cur)
			return &subscription.Record{
				UserID: userID,
				Snapshot: subscription.Snapshot{
					ProductID:             "premium_monthly",
					OriginalTransactionID: "1000",
					ExpiresTime:           &expires,
					AutoRenewStatus:       &renew,
					Environment:           subscription.EnvSandbox,
				},
				CreatedAt: expires.AddDate(0, -1, 0),
				UpdatedAt: expires.AddDate(0, -1, 0),
			}, nil
		})
		require.NoError(t, err)

		_, err = records.Update(ctx, userID, func(cur *subscription.Record) (*subscription.Record, error) {
			require.NotNil(t, cur)
			next := *cur
			next.LastNotificationType = "DID_RENEW"
			return &next, nil
		})
		require.NoError(t, err)

		got, err := records.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "premium_monthly", got.Snapshot.ProductID)
		assert.Equal(t, "DID_RENEW", got.LastNotificationType)
		assert.Equal(t, subscription.EnvSandbox, got.Snapshot.Environment)
		require.NotNil(t, got.Snapshot.ExpiresTime)
		assert.True(t, expires.Equal(*got.Snapshot.ExpiresTime))
		require.NotNil(t, got.Snapshot.AutoRenewStatus)
		assert.True(t, *got.Snapshot.AutoRenewStatus)
		assert.True(t, got.Snapshot.PurchaseTime.IsZero())
	})

	t.Run("service round trip", func(t *testing.T) {
		t.Parallel()
		userID := uuid.NewString()
		svc := subscription.NewService(records, postgres.NewMappings(db))
		expires := time.Now().Add(24 * time.Hour).UTC()

		_, err := svc.Apply(ctx, userID, subscription.Snapshot{
			ProductID:             "premium_monthly",
			OriginalTransactionID: uuid.NewString(),
			ExpiresTime:           &expires,
		}, subscription.SourceClientVerification, nil)
		require.NoError(t, err)
		assert.True(t, svc.Entitled(ctx, userID))
	})
}

func TestMappings(t *testing.T) {
	t.Parallel()
	db := testPool(t)
	ctx := context.Background()
	mappings := postgres.NewMappings(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	otid := uuid.NewString()
	_, err := mappings.Register(ctx, subscription.TransactionMapping{
		OriginalTransactionID: otid, UserID: "u1", ProductID: "premium_monthly", Active: true, UpdatedAt: now,
	})
	require.NoError(t, err)

	// Same owner refreshes the summary and keeps the product when none is given.
	saved, err := mappings.Register(ctx, subscription.TransactionMapping{
		OriginalTransactionID: otid, UserID: "u1", Active: false, UpdatedAt: now.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, "premium_monthly", saved.ProductID)
	assert.False(t, saved.Active)

	existing, err := mappings.Register(ctx, subscription.TransactionMapping{
		OriginalTransactionID: otid, UserID: "u2", ProductID: "other", UpdatedAt: now,
	})
	assert.ErrorIs(t, err, subscription.ErrTransactionConflict)
	require.NotNil(t, existing)
	assert.Equal(t, "u1", existing.UserID)

	got, err := mappings.Resolve(ctx, otid)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = mappings.Resolve(ctx, uuid.NewString())
	assert.ErrorIs(t, err, subscription.ErrMappingNotFound)
}

func TestCounters(t *testing.T) {
	t.Parallel()
	db := testPool(t)
	ctx := context.Background()
	store := postgres.NewCounters(db)

	newKey := func() quota.CounterKey {
		return quota.CounterKey{Subject: uuid.NewString(), Resource: quota.Chat, Window: "hour:2026-10-16T15"}
	}

	t.Run("denied reserve leaves counter untouched", func(t *testing.T) {
		t.Parallel()
		key := newKey()
		c, ok, err := store.Reserve(ctx, key, 3, 3, time.Hour)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, quota.Counter{Reserved: 3}, c)

		c, ok, err = store.Reserve(ctx, key, 1, 3, time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, quota.Counter{Reserved: 3}, c)
	})

	t.Run("amount above limit on empty counter", func(t *testing.T) {
		t.Parallel()
		key := newKey()
		c, ok, err := store.Reserve(ctx, key, 5, 3, time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, quota.Counter{}, c)
	})

	t.Run("commit and release", func(t *testing.T) {
		t.Parallel()
		key := newKey()
		_, _, err := store.Reserve(ctx, key, 4, 10, time.Hour)
		require.NoError(t, err)
		_, _, err = store.Reserve(ctx, key, 2, 10, time.Hour)
		require.NoError(t, err)

		require.NoError(t, store.Commit(ctx, key, 4, 3, time.Hour))
		require.NoError(t, store.Release(ctx, key, 2))

		got, err := store.Get(ctx, key, newKey())
		require.NoError(t, err)
		assert.Equal(t, []quota.Counter{{Used: 3}, {}}, got)
	})

	t.Run("concurrent reserves never exceed the limit", func(t *testing.T) {
		t.Parallel()
		key := newKey()
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted int
		)
		for range 40 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := store.Reserve(ctx, key, 1, 20, time.Hour)
				if assert.NoError(t, err) && ok {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 20, granted)
	})

	t.Run("ledger on postgres", func(t *testing.T) {
		t.Parallel()
		ledger := quota.NewLedger(store, quota.DefaultPolicy())
		subject := uuid.NewString()
		for range 3 {
			res, err := ledger.Reserve(ctx, subject, quota.Affirmation, 1)
			require.NoError(t, err)
			require.NoError(t, ledger.Commit(ctx, res, 1))
		}
		_, err := ledger.Reserve(ctx, subject, quota.Affirmation, 1)
		var denied *quota.DeniedError
		assert.ErrorAs(t, err, &denied)
	})
}

func TestCoachingInTransaction(t *testing.T) {
	t.Parallel()
	db := testPool(t)
	ctx := context.Background()
	store := postgres.NewCoaching(db)

	id := uuid.NewString()
	err := pg.WithTx(ctx, db, func(ctx context.Context) error {
		if err := store.SaveReport(ctx, coach.Report{
			ID:            id,
			DeviceID:      "device-1",
			Goals:         []string{"focus"},
			EstimatedDays: 15,
			CreatedAt:     time.Now(),
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var n int
	require.NoError(t, db.QueryRow(ctx, `SELECT count(*) FROM onboarding_reports WHERE id = $1`, id).Scan(&n))
	assert.Zero(t, n, "rolled back with the transaction")

	require.NoError(t, store.SaveExchange(ctx, coach.Exchange{
		ID: uuid.NewString(), SessionID: "s1", UserID: "u1", Kind: coach.KindChat,
		UserText: "hi", ReplyText: "hello", ResponseType: "casual", CreatedAt: time.Now(),
	}))
}
