// Package metrics provides Prometheus metrics for identification and attendance recording
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeMatched     = "matched"
	OutcomeNoMatch     = "no_match"
	OutcomeError       = "error"
	OutcomeCreated     = "created"
	OutcomeDuplicate   = "duplicate"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
)

// Metrics contains the service's Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	identificationsTotal *prometheus.CounterVec
	attendancesTotal     *prometheus.CounterVec
	recognitionDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
}

// New creates the metrics and registers them, plus the Go and process collectors, on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.identificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_identifications_total",
			Help: "Total number of identification requests",
		},
		[]string{"mode", "outcome"}, // outcome: matched, no_match, unavailable, error
	)

	m.attendancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_attendances_total",
			Help: "Total number of attendance creation attempts per attendee",
		},
		[]string{"outcome"}, // outcome: created, duplicate, not_found, error
	)

	m.recognitionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollcall_recognition_request_duration_seconds",
			Help:    "Duration of calls to the face recognition service",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"operation", "status"},
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollcall_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.identificationsTotal.Describe(ch)
	m.attendancesTotal.Describe(ch)
	m.recognitionDuration.Describe(ch)
	m.httpRequestsTotal.Describe(ch)
	m.httpRequestDuration.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.identificationsTotal.Collect(ch)
	m.attendancesTotal.Collect(ch)
	m.recognitionDuration.Collect(ch)
	m.httpRequestsTotal.Collect(ch)
	m.httpRequestDuration.Collect(ch)
}

// RecordIdentification counts an identification request.
func (m *Metrics) RecordIdentification(mode, outcome string) {
	if m == nil {
		return
	}
	m.identificationsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordAttendance counts attendance creations by outcome.
func (m *Metrics) RecordAttendance(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.attendancesTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveRecognition records the duration of a recognition service call.
// Its signature matches recognition.Observer.
func (m *Metrics) ObserveRecognition(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.recognitionDuration.WithLabelValues(op, status).Observe(d.Seconds())
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
