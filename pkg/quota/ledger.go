package quota

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/coachgate/pkg/logger"
)

// Observer receives ledger events, typically for metrics.
type Observer interface {
	Reserved(r Resource, amount int64)
	Denied(r Resource, p Period)
	Committed(r Resource, amount int64)
	Released(r Resource, amount int64)
}

type noopObserver struct{}

func (noopObserver) Reserved(Resource, int64)  {}
func (noopObserver) Denied(Resource, Period)   {}
func (noopObserver) Committed(Resource, int64) {}
func (noopObserver) Released(Resource, int64)  {}

// Ledger enforces a Policy on top of a Store.
type Ledger struct {
	store    Store
	policy   *Policy
	now      func() time.Time
	loc      *time.Location
	log      *slog.Logger
	observer Observer
}

type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLocation sets the time zone window boundaries are computed in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

func WithObserver(o Observer) Option {
	return func(l *Ledger) {
		if o != nil {
			l.observer = o
		}
	}
}

// NewLedger panics if store or policy is nil.
func NewLedger(store Store, policy *Policy, opts ...Option) *Ledger {
	if store == nil {
		panic("quota: store is required")
	}
	if policy == nil {
		panic("quota: policy is required")
	}

	l := &Ledger{
		store:    store,
		policy:   policy,
		now:      time.Now,
		loc:      time.UTC,
		log:      logger.Noop(),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With(logger.Component("quota"))
	return l
}

// Policy returns the policy the ledger enforces.
func (l *Ledger) Policy() *Policy {
	return l.policy
}

// Reservation is a held, not yet committed, amount across every window of a resource.
type Reservation struct {
	Subject  string
	Resource Resource
	Amount   int64
	At       time.Time

	windows []reservedWindow
	closed  atomic.Bool
}

type reservedWindow struct {
	period    Period
	key       CounterKey
	retention time.Duration
	committed bool
}

// Reserve holds amount of resource for subject in every window of its rule.
// It returns a *DeniedError when any window would overflow.
func (l *Ledger) Reserve(ctx context.Context, subject string, resource Resource, amount int64) (*Reservation, error) {
	if subject == "" {
		return nil, ErrEmptySubject
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	rule, err := l.policy.Rule(resource)
	if err != nil {
		return nil, err
	}

	now := l.now().In(l.loc)
	res := &Reservation{Subject: subject, Resource: resource, Amount: amount, At: now}

	for i, w := range rule.Windows {
		key := CounterKey{Subject: subject, Resource: resource, Window: windowID(w.Period, now)}
		counter, ok, err := l.store.Reserve(ctx, key, amount, w.Limit, w.Period.Retention())
		if err != nil {
			l.rollback(ctx, res)
			return nil, errors.Join(ErrStoreFailure, err)
		}
		if !ok {
			l.rollback(ctx, res)
			denied := l.binding(ctx, subject, rule, i, counter, now, amount)
			l.observer.Denied(resource, denied.Period)
			l.log.DebugContext(ctx, "quota denied",
				logger.Resource(string(resource)),
				slog.String("period", string(denied.Period)),
				slog.Int64("used", denied.Used),
				slog.Int64("limit", denied.Limit),
			)
			return nil, denied
		}
		res.windows = append(res.windows, reservedWindow{period: w.Period, key: key, retention: w.Period.Retention()})
	}

	l.observer.Reserved(resource, amount)
	return res, nil
}

// binding picks the window to cite: the one resetting last among those that
// would deny amount. Windows after the failed one were never attempted, so
// they are read instead.
func (l *Ledger) binding(ctx context.Context, subject string, rule Rule, failed int, counter Counter, now time.Time, amount int64) *DeniedError {
	w := rule.Windows[failed]
	best := &DeniedError{
		Resource: rule.Resource,
		Period:   w.Period,
		Limit:    w.Limit,
		Used:     counter.Used + counter.Reserved,
		ResetAt:  w.Period.ResetAt(now),
	}

	rest := rule.Windows[failed+1:]
	if len(rest) == 0 {
		return best
	}
	keys := make([]CounterKey, len(rest))
	for i, w := range rest {
		keys[i] = CounterKey{Subject: subject, Resource: rule.Resource, Window: windowID(w.Period, now)}
	}
	counters, err := l.store.Get(ctx, keys...)
	if err != nil {
		l.log.WarnContext(ctx, "failed to read remaining quota windows", logger.Error(err))
		return best
	}

	for i, w := range rest {
		c := counters[i]
		if c.Used+c.Reserved+amount <= w.Limit {
			continue
		}
		if reset := w.Period.ResetAt(now); reset.After(best.ResetAt) {
			best = &DeniedError{
				Resource: rule.Resource,
				Period:   w.Period,
				Limit:    w.Limit,
				Used:     c.Used + c.Reserved,
				ResetAt:  reset,
			}
		}
	}
	return best
}

// Commit records actual usage for res and drops its hold. actual may differ
// from the reserved amount; it is not checked against the limit again.
// When a window fails to commit, res stays open so Release can drop the
// windows that were not committed.
func (l *Ledger) Commit(ctx context.Context, res *Reservation, actual int64) error {
	if actual < 0 {
		return ErrInvalidAmount
	}
	if res == nil || !res.closed.CompareAndSwap(false, true) {
		return ErrReservationClosed
	}

	var errs []error
	for i := range res.windows {
		w := &res.windows[i]
		if w.committed {
			continue
		}
		if err := l.store.Commit(ctx, w.key, res.Amount, actual, w.retention); err != nil {
			errs = append(errs, err)
			continue
		}
		w.committed = true
	}
	if len(errs) > 0 {
		res.closed.Store(false)
		return errors.Join(ErrStoreFailure, errors.Join(errs...))
	}

	l.observer.Committed(res.Resource, actual)
	return nil
}

// Transactional reports whether the store writes through the transaction
// carried by the context, so a commit is undone when that transaction rolls back.
func (l *Ledger) Transactional() bool {
	t, ok := l.store.(interface{ Transactional() bool })
	return ok && t.Transactional()
}

// Reopen marks res open and uncommitted again after the transaction that
// carried its commit rolled back. It does nothing for stores outside the
// caller's transaction, where a commit stands.
func (l *Ledger) Reopen(res *Reservation) {
	if res == nil || !l.Transactional() {
		return
	}
	for i := range res.windows {
		res.windows[i].committed = false
	}
	res.closed.Store(false)
}

// Release drops the hold of res without recording usage.
func (l *Ledger) Release(ctx context.Context, res *Reservation) error {
	if res == nil || !res.closed.CompareAndSwap(false, true) {
		return ErrReservationClosed
	}
	if err := l.release(ctx, res); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	l.observer.Released(res.Resource, res.Amount)
	return nil
}

func (l *Ledger) release(ctx context.Context, res *Reservation) error {
	var errs []error
	for _, w := range res.windows {
		if w.committed {
			continue
		}
		if err := l.store.Release(ctx, w.key, res.Amount); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// rollback undoes the windows reserved so far during a failed Reserve.
func (l *Ledger) rollback(ctx context.Context, res *Reservation) {
	if len(res.windows) == 0 {
		return
	}
	if err := l.release(context.WithoutCancel(ctx), res); err != nil {
		l.log.ErrorContext(ctx, "failed to roll back partial quota reservation",
			logger.Resource(string(res.Resource)),
			logger.Error(err),
		)
	}
}
