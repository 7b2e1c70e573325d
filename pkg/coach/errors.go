package coach

import "errors"

var (
	ErrProviderUnavailable = errors.New("coach: ai provider unavailable")
	ErrEmptyReply          = errors.New("coach: ai provider returned an empty reply")
	ErrMalformedReply      = errors.New("coach: ai provider returned malformed json")
	ErrNotEntitled         = errors.New("coach: active subscription required")
	ErrMessageRequired     = errors.New("coach: message is required")
	ErrMessageTooLong      = errors.New("coach: message is too long")
	ErrTextRequired        = errors.New("coach: text is required")
	ErrDeviceRequired      = errors.New("coach: device id is required")
	ErrUserRequired        = errors.New("coach: user id is required")
	ErrInvalidAudio        = errors.New("coach: invalid wav audio")
	ErrPersistFailed       = errors.New("coach: failed to persist result")
)
