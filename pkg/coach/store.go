package coach

import (
	"context"
	"time"
)

type ExchangeKind string

const (
	KindChat  ExchangeKind = "chat"
	KindVoice ExchangeKind = "voice"
)

// Exchange is one user message and the coach's reply.
type Exchange struct {
	ID           string
	SessionID    string
	UserID       string
	Kind         ExchangeKind
	UserText     string
	ReplyText    string
	ResponseType string
	CreatedAt    time.Time
}

// Report is a generated onboarding report.
type Report struct {
	ID            string
	DeviceID      string
	Frequency     string
	Effects       []string
	Triggers      []string
	Goals         []string
	GoalDetails   string
	Insight       string
	EstimatedDays int
	CreatedAt     time.Time
}

// Store persists action results. Writes run inside the transaction started
// by the Transactor, if any.
type Store interface {
	SaveExchange(ctx context.Context, e Exchange) error
	SaveReport(ctx context.Context, r Report) error
}

// Entitlements answers whether a user holds an active subscription.
type Entitlements interface {
	Entitled(ctx context.Context, userID string) bool
}

// Transactor runs fn in one unit of work. The context passed to fn carries
// the transaction.
type Transactor func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
