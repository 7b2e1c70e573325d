package quota_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/coachgate/pkg/quota"
)

// testStore runs the Store contract against an implementation.
func testStore(t *testing.T, newStore func(t *testing.T) quota.Store) {
	key := quota.CounterKey{Subject: "u1", Resource: quota.Chat, Window: "hour:2026-10-16T15"}
	ctx := context.Background()

	t.Run("reserve within limit", func(t *testing.T) {
		s := newStore(t)
		c, ok, err := s.Reserve(ctx, key, 2, 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, quota.Counter{Reserved: 2}, c)
	})

	t.Run("denied reserve leaves counter untouched", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Reserve(ctx, key, 3, 3, time.Hour)
		require.NoError(t, err)
		require.True(t, ok)

		c, ok, err := s.Reserve(ctx, key, 1, 3, time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, quota.Counter{Reserved: 3}, c)

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []quota.Counter{{Reserved: 3}}, got)
	})

	t.Run("commit moves reservation to usage", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.Reserve(ctx, key, 2, 10, time.Hour)
		require.NoError(t, err)
		require.NoError(t, s.Commit(ctx, key, 2, 5, time.Hour))

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []quota.Counter{{Used: 5}}, got)
	})

	t.Run("release drops reservation", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.Reserve(ctx, key, 4, 10, time.Hour)
		require.NoError(t, err)
		require.NoError(t, s.Release(ctx, key, 4))
		require.NoError(t, s.Release(ctx, key, 4), "over-release clamps at zero")

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []quota.Counter{{}}, got)
	})

	t.Run("missing counters read as zero", func(t *testing.T) {
		s := newStore(t)
		other := key
		other.Subject = "nobody"
		got, err := s.Get(ctx, key, other)
		require.NoError(t, err)
		assert.Equal(t, []quota.Counter{{}, {}}, got)
	})

	t.Run("concurrent reserves never exceed limit", func(t *testing.T) {
		s := newStore(t)
		var granted atomic.Int64
		var wg sync.WaitGroup
		for range 40 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := s.Reserve(ctx, key, 1, 15, time.Hour)
				if assert.NoError(t, err) && ok {
					granted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int64(15), granted.Load())
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	testStore(t, func(t *testing.T) quota.Store {
		s := quota.NewMemoryStore()
		t.Cleanup(s.Close)
		return s
	})
}

func TestRedisStore(t *testing.T) {
	t.Parallel()
	testStore(t, func(t *testing.T) quota.Store {
		srv := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return quota.NewRedisStore(client, "test:")
	})
}

func TestRedisStoreSetsRetention(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := quota.NewRedisStore(client, "test:")

	key := quota.CounterKey{Subject: "u1", Resource: quota.Voice, Window: "day:2026-10-16"}
	_, ok, err := s.Reserve(context.Background(), key, 1, 50, 48*time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ttl := srv.TTL("test:quota:voice:u1:day:2026-10-16")
	assert.Equal(t, 48*time.Hour, ttl)

	srv.FastForward(49 * time.Hour)
	got, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []quota.Counter{{}}, got)
}

func TestLedgerWithRedisStore(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := newClock(base)
	l := quota.NewLedger(quota.NewRedisStore(client, ""), quota.DefaultPolicy(), quota.WithClock(c.Now))
	use(t, l, "u1", quota.Chat, 20)

	_, err := l.Reserve(context.Background(), "u1", quota.Chat, 1)
	var denied *quota.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, quota.Hourly, denied.Period)
}

func TestMemoryStoreCleanup(t *testing.T) {
	t.Parallel()

	c := newClock(base)
	s := quota.NewMemoryStore(quota.WithStoreClock(c.Now), quota.WithCleanupInterval(5*time.Millisecond))
	t.Cleanup(s.Close)

	key := quota.CounterKey{Subject: "u1", Resource: quota.Chat, Window: "hour:2026-10-16T15"}
	ctx := context.Background()
	_, _, err := s.Reserve(ctx, key, 1, 5, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, key, 1, 1, time.Hour))

	c.Advance(2 * time.Hour)
	require.Eventually(t, func() bool {
		got, err := s.Get(ctx, key)
		return err == nil && got[0] == quota.Counter{}
	}, time.Second, 5*time.Millisecond)
}
