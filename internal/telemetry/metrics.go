// Package telemetry provides Prometheus metrics for the node plugin.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects per-operation counters and latencies.
type Metrics struct {
	registry *prometheus.Registry

	opsTotal   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tellusnode",
			Name:      "operations_total",
			Help:      "Plugin operations by operation and result code.",
		}, []string{"operation", "code"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tellusnode",
			Name:      "operation_duration_seconds",
			Help:      "Plugin operation latency. Creates include the provider-side wait for the instance to become active.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 120, 300},
		}, []string{"operation"}),
	}
	m.registry.MustRegister(m.opsTotal, m.opDuration)
	return m
}

// ObserveOperation records one finished plugin operation.
func (m *Metrics) ObserveOperation(operation string, code int, elapsed time.Duration) {
	m.opsTotal.WithLabelValues(operation, strconv.Itoa(code)).Inc()
	m.opDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Handler serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
