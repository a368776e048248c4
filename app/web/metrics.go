package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/umputun/jobord/app/joborder"
)

// metrics keeps per-server prometheus collectors on a private registry
type metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	listed     prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobord",
			Name:      "operations_total",
			Help:      "Number of job order operations by result.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jobord",
			Name:      "operation_duration_seconds",
			Help:      "Duration of job order operations, including object store calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		listed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jobord",
			Name:      "records_listed",
			Help:      "Number of job orders returned by the last list request.",
		}),
	}
	m.registry.MustRegister(m.operations, m.duration, m.listed,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// observe records operation duration and its result, derived from err
func (m *metrics) observe(op string, start time.Time, err error) {
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, joborder.ErrNotFound):
		return "not_found"
	case errors.Is(err, joborder.ErrInvalidRecord):
		return "invalid"
	default:
		return "error"
	}
}
