package coach

import (
	"context"
	"errors"

	"github.com/dmitrymomot/coachgate/pkg/async"
	"github.com/dmitrymomot/coachgate/pkg/logger"
	"github.com/dmitrymomot/coachgate/pkg/quota"
)

// meter describes one metered action.
type meter[T any] struct {
	subject  string
	resource quota.Resource
	amount   int64
	call     func(ctx context.Context) (T, error)
	// measure returns the usage to commit; amount when nil.
	measure func(out T) int64
	// persist stores the result in the same unit of work as the commit.
	persist func(ctx context.Context, out T) error
}

// run gates, reserves, calls and commits. The provider call and everything
// after it run detached, so a caller that goes away does not undo a call
// that already happened.
func run[T any](ctx context.Context, s *Service, m meter[T]) (T, error) {
	var zero T

	rule, err := s.ledger.Policy().Rule(m.resource)
	if err != nil {
		return zero, err
	}
	if rule.RequiresEntitlement && !s.entitlements.Entitled(ctx, m.subject) {
		return zero, ErrNotEntitled
	}

	res, err := s.ledger.Reserve(ctx, m.subject, m.resource, m.amount)
	if err != nil {
		return zero, err
	}

	log := s.log.With(logger.Resource(string(m.resource)))

	fut := async.Detach(ctx, func(ctx context.Context) (T, error) {
		out, err := m.call(ctx)
		if err != nil {
			s.release(ctx, res)
			return zero, err
		}

		actual := m.amount
		if m.measure != nil {
			actual = m.measure(out)
		}

		// A store inside the transaction commits with the result; any
		// other store commits only once the result is saved.
		inTx := s.ledger.Transactional()
		err = s.tx(ctx, func(ctx context.Context) error {
			if m.persist != nil {
				if err := m.persist(ctx, out); err != nil {
					return errors.Join(ErrPersistFailed, err)
				}
			}
			if inTx {
				return s.ledger.Commit(ctx, res, actual)
			}
			return nil
		})
		if err == nil && !inTx {
			err = s.ledger.Commit(ctx, res, actual)
		}
		if err != nil {
			log.ErrorContext(ctx, "failed to commit metered action", logger.Error(err))
			s.ledger.Reopen(res)
			s.release(ctx, res)
			return zero, err
		}
		return out, nil
	})

	return fut.AwaitContext(ctx)
}

func (s *Service) release(ctx context.Context, res *quota.Reservation) {
	if err := s.ledger.Release(ctx, res); err != nil && !errors.Is(err, quota.ErrReservationClosed) {
		s.log.ErrorContext(ctx, "failed to release quota reservation",
			logger.Resource(string(res.Resource)),
			logger.Error(err),
		)
	}
}

// remaining reads what is left of resource for subject after an action.
func (s *Service) remaining(ctx context.Context, subject string, resource quota.Resource) int64 {
	u, err := s.ledger.Usage(ctx, subject, resource)
	if err != nil {
		s.log.WarnContext(ctx, "failed to read remaining quota", logger.Resource(string(resource)), logger.Error(err))
		return 0
	}
	return u.Remaining()
}

// degradable reports whether err should produce a fallback answer.
func degradable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrEmptyReply) ||
		errors.Is(err, ErrMalformedReply)
}
