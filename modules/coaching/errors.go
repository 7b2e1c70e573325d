package coaching

import (
	"errors"
	"time"

	"github.com/dmitrymomot/coachgate/handler"
	"github.com/dmitrymomot/coachgate/pkg/coach"
	"github.com/dmitrymomot/coachgate/pkg/quota"
	"github.com/dmitrymomot/coachgate/pkg/validator"
)

// httpError maps coaching and quota errors to client responses. The original
// error stays joined for logging.
func httpError(err error) error {
	var denied *quota.DeniedError
	if errors.As(err, &denied) {
		return errors.Join(handler.ErrQuotaExceeded.
			WithMessage("usage limit reached").
			WithMeta(map[string]any{
				"resource":  string(denied.Resource),
				"remaining": 0,
				"limit":     denied.Limit,
				"resetsAt":  denied.ResetAt.UTC().Format(time.RFC3339),
				"resets":    denied.Period.Resets(),
			}), err)
	}

	switch {
	case errors.Is(err, coach.ErrNotEntitled):
		return errors.Join(handler.ErrSubscriptionRequired.WithMessage("an active subscription is required"), err)
	case errors.Is(err, coach.ErrMessageRequired):
		return fieldError("message", "is required")
	case errors.Is(err, coach.ErrMessageTooLong):
		return fieldError("message", "is too long")
	case errors.Is(err, coach.ErrTextRequired):
		return fieldError("text", "is required")
	case errors.Is(err, coach.ErrDeviceRequired):
		return fieldError("deviceId", "is required")
	case errors.Is(err, quota.ErrUnknownResource):
		return errors.Join(handler.ErrNotFound.WithMessage("unknown resource"), err)
	case errors.Is(err, coach.ErrUserRequired), errors.Is(err, quota.ErrEmptySubject):
		return errors.Join(handler.ErrUnauthorized, err)
	case errors.Is(err, coach.ErrProviderUnavailable), errors.Is(err, coach.ErrEmptyReply), errors.Is(err, coach.ErrMalformedReply):
		return errors.Join(handler.ErrUpstreamUnavailable.WithMessage("the coach is unavailable, try again shortly"), err)
	}
	return err
}

func fieldError(field, msg string) validator.Errors {
	errs := validator.Errors{}
	errs.Add(field, msg)
	return errs
}
