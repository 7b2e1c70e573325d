package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/coachgate/pkg/quota"
)

const namespace = "coachgate"

// Metrics holds every collector of the service.
type Metrics struct {
	registry *prometheus.Registry

	quotaReserved  *prometheus.CounterVec
	quotaDenied    *prometheus.CounterVec
	quotaCommitted *prometheus.CounterVec
	quotaReleased  *prometheus.CounterVec

	receipts      *prometheus.CounterVec
	notifications *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		quotaReserved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "quota", Name: "reserved_units_total",
			Help: "Units reserved per resource.",
		}, []string{"resource"}),
		quotaDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "quota", Name: "denied_total",
			Help: "Denied reservations per resource and binding window.",
		}, []string{"resource", "period"}),
		quotaCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "quota", Name: "committed_units_total",
			Help: "Units committed as used per resource.",
		}, []string{"resource"}),
		quotaReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "quota", Name: "released_units_total",
			Help: "Reserved units released without use per resource.",
		}, []string{"resource"}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "billing", Name: "receipt_verifications_total",
			Help: "Receipt verifications by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "billing", Name: "notifications_total",
			Help: "Store notifications by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.quotaReserved, m.quotaDenied, m.quotaCommitted, m.quotaReleased,
		m.receipts, m.notifications,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Reserved(r quota.Resource, amount int64) {
	m.quotaReserved.WithLabelValues(string(r)).Add(float64(amount))
}

func (m *Metrics) Denied(r quota.Resource, p quota.Period) {
	m.quotaDenied.WithLabelValues(string(r), string(p)).Inc()
}

func (m *Metrics) Committed(r quota.Resource, amount int64) {
	m.quotaCommitted.WithLabelValues(string(r)).Add(float64(amount))
}

func (m *Metrics) Released(r quota.Resource, amount int64) {
	m.quotaReleased.WithLabelValues(string(r)).Add(float64(amount))
}

// ReceiptVerified counts a verification result such as "valid",
// "rejected", "conflict" or "transient".
func (m *Metrics) ReceiptVerified(result string) {
	m.receipts.WithLabelValues(result).Inc()
}

// NotificationHandled counts a notification outcome.
func (m *Metrics) NotificationHandled(outcome string) {
	m.notifications.WithLabelValues(outcome).Inc()
}

var _ quota.Observer = (*Metrics)(nil)
