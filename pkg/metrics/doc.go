// Package metrics exposes Prometheus metrics for the service: quota ledger
// events, HTTP traffic, receipt verifications and store notifications.
// Metrics is registered on its own registry, served by Handler.
package metrics
