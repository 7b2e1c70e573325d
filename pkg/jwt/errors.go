package jwt

import "errors"

var (
	ErrMissingSigningKey = errors.New("jwt: signing key is required")
	ErrMissingToken      = errors.New("jwt: missing bearer token")
	ErrInvalidToken      = errors.New("jwt: invalid token")
	ErrExpiredToken      = errors.New("jwt: token expired")
	ErrMissingSubject    = errors.New("jwt: token has no subject")
)
