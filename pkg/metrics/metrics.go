// Package metrics exposes the Prometheus instrumentation for the video
// generation service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service collectors around one registry so tests
// can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal        *prometheus.CounterVec
	StepDuration     *prometheus.HistogramVec
	ExternalRequests *prometheus.CounterVec
	JobsInFlight     prometheus.Gauge
}

// New creates and registers the service collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "videogen_jobs_total",
			Help: "Video generation jobs by terminal status.",
		}, []string{"status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "videogen_step_duration_seconds",
			Help:    "Wall-clock duration of each workflow step.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"step"}),
		ExternalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "videogen_external_requests_total",
			Help: "Calls to external services by outcome.",
		}, []string{"service", "outcome"}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "videogen_jobs_in_flight",
			Help: "Jobs currently claimed by a worker.",
		}),
	}

	m.registry.MustRegister(
		m.JobsTotal,
		m.StepDuration,
		m.ExternalRequests,
		m.JobsInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStep records one step's duration in seconds.
func (m *Metrics) ObserveStep(step string, seconds float64) {
	m.StepDuration.WithLabelValues(step).Observe(seconds)
}

// CountJob records one job reaching a terminal status.
func (m *Metrics) CountJob(status string) {
	m.JobsTotal.WithLabelValues(status).Inc()
}

// CountExternal records one external call outcome ("ok" or "error").
func (m *Metrics) CountExternal(service string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ExternalRequests.WithLabelValues(service, outcome).Inc()
}

// Transport wraps the default HTTP transport so every request a service
// client makes lands in ExternalRequests. Non-2xx/3xx responses count as
// errors alongside transport failures.
func (m *Metrics) Transport(service string) http.RoundTripper {
	return &countingTransport{service: service, metrics: m, next: http.DefaultTransport}
}

type countingTransport struct {
	service string
	metrics *Metrics
	next    http.RoundTripper
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	outcome := "ok"
	if err != nil || resp.StatusCode >= 400 {
		outcome = "error"
	}
	t.metrics.ExternalRequests.WithLabelValues(t.service, outcome).Inc()
	return resp, err
}
