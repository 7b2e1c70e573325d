package quota

import "time"

// Period is the length of a calendar window.
type Period string

const (
	Hourly Period = "hour"
	Daily  Period = "day"
)

func (p Period) valid() bool {
	return p == Hourly || p == Daily
}

// Start returns the beginning of the window containing t, in t's location.
func (p Period) Start(t time.Time) time.Time {
	y, m, d := t.Date()
	if p == Hourly {
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, t.Location())
	}
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ResetAt returns the start of the window after the one containing t.
func (p Period) ResetAt(t time.Time) time.Time {
	start := p.Start(t)
	if p == Hourly {
		return start.Add(time.Hour)
	}
	return start.AddDate(0, 0, 1)
}

// Key identifies the window containing t.
func (p Period) Key(t time.Time) string {
	if p == Hourly {
		return t.Format("2006-01-02T15")
	}
	return t.Format("2006-01-02")
}

// Retention is how long a counter stays useful: the current window and one more.
func (p Period) Retention() time.Duration {
	if p == Hourly {
		return 2 * time.Hour
	}
	return 48 * time.Hour
}

// Resets is the client-facing label of the next boundary.
func (p Period) Resets() string {
	if p == Hourly {
		return "next_hour"
	}
	return "next_day"
}
