// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a Context and a request value already populated by
// the configured binders and validated, and returns a Response. Failures from
// binding, validation or rendering reach the ErrorHandler, which renders the
// JSON error envelope:
//
//	{"error": {"code": "quota_exceeded", "message": "..."}, "meta": {...}}
//
// Domain errors are translated into HTTPError values by the modules before
// they reach this package.
package handler
