package quota

import (
	"context"
	"errors"
	"time"
)

// WindowUsage is the state of one window of a resource.
type WindowUsage struct {
	Period    Period
	Limit     int64
	Used      int64
	Reserved  int64
	Remaining int64
	ResetAt   time.Time
}

// Usage summarizes a resource for a subject.
type Usage struct {
	Resource Resource
	Unit     Unit
	Windows  []WindowUsage

	// CanUse reports whether one more unit fits in every window.
	CanUse bool
	// Binding is the window that constrains the subject right now.
	Binding WindowUsage
}

// Remaining is the binding window's remaining amount.
func (u *Usage) Remaining() int64 {
	return u.Binding.Remaining
}

// Usage reads the counters of resource for subject without changing them.
func (l *Ledger) Usage(ctx context.Context, subject string, resource Resource) (*Usage, error) {
	if subject == "" {
		return nil, ErrEmptySubject
	}
	rule, err := l.policy.Rule(resource)
	if err != nil {
		return nil, err
	}

	now := l.now().In(l.loc)
	keys := make([]CounterKey, len(rule.Windows))
	for i, w := range rule.Windows {
		keys[i] = CounterKey{Subject: subject, Resource: resource, Window: windowID(w.Period, now)}
	}
	counters, err := l.store.Get(ctx, keys...)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}

	u := &Usage{Resource: resource, Unit: rule.Unit, CanUse: true}
	for i, w := range rule.Windows {
		c := counters[i]
		wu := WindowUsage{
			Period:    w.Period,
			Limit:     w.Limit,
			Used:      c.Used,
			Reserved:  c.Reserved,
			Remaining: max(0, w.Limit-c.Used-c.Reserved),
			ResetAt:   w.Period.ResetAt(now),
		}
		u.Windows = append(u.Windows, wu)
		if wu.Remaining < 1 {
			u.CanUse = false
		}
	}
	u.Binding = pickBinding(u.Windows, u.CanUse)
	return u, nil
}

// pickBinding cites the exhausted window that resets last, or, when nothing is
// exhausted, the window with the least headroom.
func pickBinding(windows []WindowUsage, canUse bool) WindowUsage {
	var best WindowUsage
	found := false
	for _, w := range windows {
		if !canUse && w.Remaining >= 1 {
			continue
		}
		switch {
		case !found:
			best, found = w, true
		case !canUse && w.ResetAt.After(best.ResetAt):
			best = w
		case canUse && (w.Remaining < best.Remaining || w.Remaining == best.Remaining && w.ResetAt.After(best.ResetAt)):
			best = w
		}
	}
	return best
}
