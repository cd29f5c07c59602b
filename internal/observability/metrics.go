package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus collectors for HTTP traffic and cycle publication.
type Metrics struct {
	registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec

	publicationRuns     *prometheus.CounterVec
	publicationDuration *prometheus.HistogramVec
	evaluationsCreated  *prometheus.CounterVec
	evaluationsRemoved  *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evaluation",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests broken down by method, route and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "evaluation",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errorCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evaluation",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Total number of failed HTTP requests broken down by error code.",
		}, []string{"method", "path", "code"}),
		publicationRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evaluation",
			Subsystem: "publication",
			Name:      "runs_total",
			Help:      "Total number of publish/republish runs broken down by outcome.",
		}, []string{"action", "result"}),
		publicationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "evaluation",
			Subsystem: "publication",
			Name:      "duration_seconds",
			Help:      "Time spent reconciling a cycle's evaluations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		evaluationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evaluation",
			Subsystem: "publication",
			Name:      "evaluations_created_total",
			Help:      "Evaluations inserted by publication runs.",
		}, []string{"action"}),
		evaluationsRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evaluation",
			Subsystem: "publication",
			Name:      "evaluations_removed_total",
			Help:      "Evaluations deleted by publication runs.",
		}, []string{"action"}),
	}
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(method, path, code).Inc()
}

// RecordPublication tracks the outcome of one publish or republish run.
func (m *Metrics) RecordPublication(action, result string, created, removed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.publicationRuns.WithLabelValues(action, result).Inc()
	m.publicationDuration.WithLabelValues(action).Observe(duration.Seconds())
	if created > 0 {
		m.evaluationsCreated.WithLabelValues(action).Add(float64(created))
	}
	if removed > 0 {
		m.evaluationsRemoved.WithLabelValues(action).Add(float64(removed))
	}
}
