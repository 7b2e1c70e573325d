package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/coachgate/pkg/logger"
)

// Notification is a decoded store notification.
type Notification struct {
	Type                  string
	Subtype               string
	OriginalTransactionID string
	Partial               Snapshot // only the fields the payload carried
	NotifiedAt            time.Time
}

// Outcome tells the receiver what happened to a notification.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeDropped Outcome = "dropped"
)

// Reconciler routes notifications to entitlement records.
type Reconciler struct {
	svc Service
	now func() time.Time
	log *slog.Logger
}

type ReconcilerOption func(*Reconciler)

func WithReconcilerLogger(log *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler panics if svc is nil.
func NewReconciler(svc Service, opts ...ReconcilerOption) *Reconciler {
	if svc == nil {
		panic("subscription: Service is required")
	}
	r := &Reconciler{svc: svc, now: time.Now, log: logger.Noop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle applies n to the record of the user owning its transaction.
// Notifications without an identifier or a known owner are dropped.
// A non-nil error means an internal fault and the sender should retry.
func (r *Reconciler) Handle(ctx context.Context, n *Notification) (Outcome, error) {
	if n == nil || n.OriginalTransactionID == "" {
		r.log.WarnContext(ctx, "notification without transaction id dropped", logger.NotificationType(typeOf(n)))
		return OutcomeDropped, nil
	}

	log := r.log.With(logger.TransactionID(n.OriginalTransactionID), logger.NotificationType(n.Type))

	userID, err := r.svc.Resolve(ctx, n.OriginalTransactionID)
	if errors.Is(err, ErrMappingNotFound) {
		log.WarnContext(ctx, "notification for unknown transaction dropped")
		return OutcomeDropped, nil
	}
	if err != nil {
		return "", err
	}

	partial := n.Partial
	if partial.OriginalTransactionID == "" {
		partial.OriginalTransactionID = n.OriginalTransactionID
	}
	if partial.VerifiedAt.IsZero() {
		partial.VerifiedAt = r.now()
	}
	notifiedAt := n.NotifiedAt
	if notifiedAt.IsZero() {
		notifiedAt = r.now()
	}

	rec, err := r.svc.Apply(ctx, userID, partial, SourceNotification, &Notice{
		Type:       n.Type,
		Subtype:    n.Subtype,
		NotifiedAt: notifiedAt,
	})
	if err != nil {
		return "", err
	}

	summary := Summary{ExpiresTime: rec.Snapshot.ExpiresTime, Active: rec.IsActiveAt(r.now())}
	if err := r.svc.Register(ctx, n.OriginalTransactionID, userID, rec.Snapshot.ProductID, summary); err != nil {
		log.ErrorContext(ctx, "failed to refresh transaction summary", logger.Error(err))
	}

	log.InfoContext(ctx, "notification applied", logger.UserID(userID), slog.Bool("active", summary.Active))
	return OutcomeApplied, nil
}

func typeOf(n *Notification) string {
	if n == nil {
		return ""
	}
	return n.Type
}
