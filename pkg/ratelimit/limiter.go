package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	Rate  float64       `env:"RATE_LIMIT_RPS" envDefault:"2"`
	Burst int           `env:"RATE_LIMIT_BURST" envDefault:"10"`
	Idle  time.Duration `env:"RATE_LIMIT_IDLE" envDefault:"10m"` // Idle is how long an unused key is kept.
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per key and forgets keys that stay idle.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// New validates cfg and starts the background sweeper.
// Call Close to stop it.
func New(cfg Config) (*Limiter, error) {
	if cfg.Rate <= 0 {
		return nil, ErrInvalidRate
	}
	if cfg.Burst <= 0 {
		return nil, ErrInvalidBurst
	}

	l := &Limiter{
		entries: make(map[string]*entry),
		limit:   rate.Limit(cfg.Rate),
		burst:   cfg.Burst,
		idle:    cfg.Idle,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if l.idle > 0 {
		go l.sweep()
	}
	return l, nil
}

// Allow consumes one token for key and reports whether the request may proceed,
// along with how long the caller should wait when it may not.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, delay
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the sweeper.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) evictIdle() {
	cutoff := l.now().Add(-l.idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}
