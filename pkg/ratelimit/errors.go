package ratelimit

import "errors"

var (
	ErrInvalidRate  = errors.New("rate must be positive")
	ErrInvalidBurst = errors.New("burst must be positive")
)
