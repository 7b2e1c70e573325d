package jwt

import (
	"net/http"
	"strings"
)

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

// RequireUser rejects requests that do not carry a valid bearer token.
func RequireUser(s *Service, onError ErrorHandler) func(http.Handler) http.Handler {
	return middleware(s, onError, true)
}

// OptionalUser verifies a bearer token when present. An invalid token is
// still rejected; a missing one passes through anonymously.
func OptionalUser(s *Service, onError ErrorHandler) func(http.Handler) http.Handler {
	return middleware(s, onError, false)
}

func middleware(s *Service, onError ErrorHandler, required bool) func(http.Handler) http.Handler {
	if s == nil {
		panic("jwt: service is required")
	}
	if onError == nil {
		onError = defaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				if required {
					onError(w, r, ErrMissingToken)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := s.Parse(token)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
