package quota

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrUnknownResource   = errors.New("unknown quota resource")
	ErrInvalidAmount     = errors.New("quota amount must be positive")
	ErrInvalidPolicy     = errors.New("invalid quota policy")
	ErrReservationClosed = errors.New("reservation already committed or released")
	ErrEmptySubject      = errors.New("quota subject is required")
	ErrStoreFailure      = errors.New("quota store failure")
)

// DeniedError reports the window that blocked a reservation.
type DeniedError struct {
	Resource Resource
	Period   Period
	Limit    int64
	Used     int64
	ResetAt  time.Time
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d/%d per %s, resets at %s",
		e.Resource, e.Used, e.Limit, e.Period, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *DeniedError) Unwrap() error {
	return ErrQuotaExceeded
}
