// Package httpserver runs the HTTP surface with graceful shutdown and
// exposes liveness and readiness probes.
//
// Run blocks until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// listener fails; in-flight requests get ShutdownTimeout to finish.
// Readiness reports each named dependency check as JSON and answers 503 when
// any of them fails.
package httpserver
