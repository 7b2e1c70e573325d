package quota

import (
	"context"
	"time"
)

// CounterKey addresses one counter.
type CounterKey struct {
	Subject  string
	Resource Resource
	Window   string // Period and window key, e.g. "hour:2026-10-16T15"
}

// Counter is the state of one window.
type Counter struct {
	Used     int64
	Reserved int64
}

// Store persists counters. Implementations must make Reserve atomic.
type Store interface {
	// Reserve adds amount to reserved when used+reserved+amount <= limit.
	// It reports whether the reservation was taken and the counter after the
	// attempt. A denied attempt must not change the counter.
	Reserve(ctx context.Context, key CounterKey, amount, limit int64, retention time.Duration) (Counter, bool, error)

	// Commit moves a reservation into usage: reserved -= reserved, used += actual.
	Commit(ctx context.Context, key CounterKey, reserved, actual int64, retention time.Duration) error

	// Release drops a reservation: reserved -= amount.
	Release(ctx context.Context, key CounterKey, amount int64) error

	// Get returns the counters for keys; missing counters are zero.
	Get(ctx context.Context, keys ...CounterKey) ([]Counter, error)
}

func windowID(p Period, t time.Time) string {
	return string(p) + ":" + p.Key(t)
}
