package quota

import (
	"context"
	"sync"
	"time"
)

type memoryCounter struct {
	Counter
	expiresAt time.Time
}

// MemoryStore keeps counters in process memory. It suits tests and
// single-instance deployments; counters are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[CounterKey]*memoryCounter
	now      func() time.Time

	cleanupInterval time.Duration
	stop            chan struct{}
	once            sync.Once
}

type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval starts a sweeper that drops expired counters.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = d
	}
}

// WithStoreClock overrides time.Now for expiry.
func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		counters: make(map[CounterKey]*memoryCounter),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cleanupInterval > 0 {
		go s.cleanup(s.cleanupInterval)
	}
	return s
}

func (s *MemoryStore) Reserve(_ context.Context, key CounterKey, amount, limit int64, retention time.Duration) (Counter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counters[key]
	if c == nil {
		c = &memoryCounter{}
	}
	if c.Used+c.Reserved+amount > limit {
		return c.Counter, false, nil
	}

	c.Reserved += amount
	c.expiresAt = s.now().Add(retention)
	s.counters[key] = c
	return c.Counter, true, nil
}

func (s *MemoryStore) Commit(_ context.Context, key CounterKey, reserved, actual int64, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counters[key]
	if c == nil {
		c = &memoryCounter{}
		s.counters[key] = c
	}
	c.Reserved = max(0, c.Reserved-reserved)
	c.Used += actual
	c.expiresAt = s.now().Add(retention)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key CounterKey, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.counters[key]; c != nil {
		c.Reserved = max(0, c.Reserved-amount)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, keys ...CounterKey) ([]Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Counter, len(keys))
	for i, k := range keys {
		if c := s.counters[k]; c != nil {
			out[i] = c.Counter
		}
	}
	return out, nil
}

// Close stops the sweeper, if any.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evict()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) evict() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.counters {
		if c.Reserved == 0 && now.After(c.expiresAt) {
			delete(s.counters, k)
		}
	}
}
