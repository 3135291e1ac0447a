package api

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for the API. Each Server instance
// registers into its own registry so tests never collide.
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec
	BytesProcessed   prometheus.Counter
	registry         *prometheus.Registry
}

// NewMetrics creates and registers all metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resizer_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		LatencyHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resizer_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		BytesProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "resizer_upload_bytes_total",
				Help: "Total uploaded bytes accepted for processing",
			},
		),
		registry: registry,
	}

	registry.MustRegister(m.RequestCounter)
	registry.MustRegister(m.LatencyHistogram)
	registry.MustRegister(m.BytesProcessed)

	return m
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(method, path string, status int, seconds float64) {
	m.RequestCounter.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.LatencyHistogram.WithLabelValues(method, path).Observe(seconds)
}

// AddUploadBytes accounts the original size of accepted uploads.
func (m *Metrics) AddUploadBytes(n int64) {
	m.BytesProcessed.Add(float64(n))
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
