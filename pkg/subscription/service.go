package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/coachgate/pkg/logger"
)

// Service is the entitlement store and transaction index.
type Service interface {
	// Apply reconciles snap into the user's record. notice is optional and
	// only meaningful for SourceNotification.
	Apply(ctx context.Context, userID string, snap Snapshot, source Source, notice *Notice) (*Record, error)
	Get(ctx context.Context, userID string) (*Record, error)

	// Entitled reports whether the user has an active subscription now.
	// Any store error yields false.
	Entitled(ctx context.Context, userID string) bool

	Register(ctx context.Context, originalTransactionID, userID, productID string, summary Summary) error
	Resolve(ctx context.Context, originalTransactionID string) (string, error)
}

type service struct {
	records  RecordStore
	mappings MappingStore
	now      func() time.Time
	log      *slog.Logger
}

// ServiceOption configures the service.
type ServiceOption func(*service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService panics if either store is nil.
func NewService(records RecordStore, mappings MappingStore, opts ...ServiceOption) Service {
	if records == nil {
		panic("subscription: RecordStore is required")
	}
	if mappings == nil {
		panic("subscription: MappingStore is required")
	}

	s := &service{
		records:  records,
		mappings: mappings,
		now:      time.Now,
		log:      logger.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Apply(ctx context.Context, userID string, snap Snapshot, source Source, notice *Notice) (*Record, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if !source.valid() {
		return nil, ErrInvalidSource
	}

	now := s.now()
	rec, err := s.records.Update(ctx, userID, func(current *Record) (*Record, error) {
		next := current
		if next == nil {
			next = &Record{UserID: userID, CreatedAt: now}
		}

		switch source {
		case SourceClientVerification:
			next.Snapshot = snap
			next.Snapshot.Explicit = 0
			if next.Snapshot.VerifiedAt.IsZero() {
				next.Snapshot.VerifiedAt = now
			}
			validated := now
			next.LastValidatedAt = &validated
		case SourceNotification:
			merged := next.Snapshot.merge(snap)
			if current == nil || merged.notOlderThan(current.Snapshot) {
				next.Snapshot = merged
			}
		}

		if notice != nil {
			if notice.Type != "" {
				next.LastNotificationType = notice.Type
			}
			at := notice.NotifiedAt
			if at.IsZero() {
				at = now
			}
			next.LastNotifiedAt = &at
		}
		next.UpdatedAt = now
		return next, nil
	})
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}

	s.log.DebugContext(ctx, "entitlement applied",
		logger.UserID(userID),
		logger.TransactionID(rec.Snapshot.OriginalTransactionID),
		slog.String("source", string(source)),
		slog.Bool("active", rec.IsActiveAt(now)),
	)
	return rec, nil
}

func (s *service) Get(ctx context.Context, userID string) (*Record, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	rec, err := s.records.Get(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return rec, nil
}

func (s *service) Entitled(ctx context.Context, userID string) bool {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			s.log.ErrorContext(ctx, "entitlement lookup failed", logger.UserID(userID), logger.Error(err))
		}
		return false
	}
	return rec.IsActiveAt(s.now())
}

func (s *service) Register(ctx context.Context, originalTransactionID, userID, productID string, summary Summary) error {
	if originalTransactionID == "" {
		return ErrEmptyTransactionID
	}
	if userID == "" {
		return ErrEmptyUserID
	}

	existing, err := s.mappings.Register(ctx, TransactionMapping{
		OriginalTransactionID: originalTransactionID,
		UserID:                userID,
		ProductID:             productID,
		ExpiresTime:           summary.ExpiresTime,
		Active:                summary.Active,
	})
	if errors.Is(err, ErrTransactionConflict) {
		owner := ""
		if existing != nil {
			owner = existing.UserID
		}
		s.log.WarnContext(ctx, "transaction already claimed",
			logger.TransactionID(originalTransactionID),
			logger.UserID(userID),
			slog.String("owner_id", owner),
		)
		return ErrTransactionConflict
	}
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (s *service) Resolve(ctx context.Context, originalTransactionID string) (string, error) {
	if originalTransactionID == "" {
		return "", ErrEmptyTransactionID
	}
	m, err := s.mappings.Resolve(ctx, originalTransactionID)
	if errors.Is(err, ErrMappingNotFound) {
		return "", ErrMappingNotFound
	}
	if err != nil {
		return "", errors.Join(ErrStoreFailure, err)
	}
	return m.UserID, nil
}
