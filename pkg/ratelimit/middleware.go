package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// LimitHandler writes the response for a throttled request.
type LimitHandler func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

type middlewareConfig struct {
	keyFunc KeyFunc
	onLimit LimitHandler
}

type MiddlewareOption func(*middlewareConfig)

// WithKeyFunc replaces the default client IP key.
func WithKeyFunc(fn KeyFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.keyFunc = fn
		}
	}
}

// WithOnLimitReached replaces the default plain-text 429 response.
func WithOnLimitReached(fn LimitHandler) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.onLimit = fn
		}
	}
}

// Middleware throttles requests through l.
func Middleware(l *Limiter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if l == nil {
		panic("ratelimit.Middleware: limiter is required")
	}

	cfg := &middlewareConfig{
		keyFunc: ByClientIP(),
		onLimit: func(w http.ResponseWriter, _ *http.Request, _ time.Duration) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, wait := l.Allow(key)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Max(1, math.Ceil(wait.Seconds())))))
				cfg.onLimit(w, r, wait)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
