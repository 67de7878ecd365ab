package apiclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records request counts and latencies per operation.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the client metrics on reg. A nil registerer yields
// a no-op recorder.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_api_requests_total",
		Help: "Requests sent to the storefront backend.",
	}, []string{"op", "method", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_api_request_duration_seconds",
		Help:    "Latency of requests to the storefront backend in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	reg.MustRegister(requests, duration)
	return &Metrics{requests: requests, duration: duration}
}

func (m *Metrics) observe(op, method, code string, elapsed time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	op = normalizeLabel(op)
	m.requests.WithLabelValues(op, method, code).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
