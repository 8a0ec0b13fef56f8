package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for modeld.
type Metrics struct {
	config MetricsConfig

	// Job metrics
	jobsDispatched *prometheus.CounterVec
	jobsCompleted  *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec

	// Output metrics
	outputRequests prometheus.Counter
	outputDuration prometheus.Histogram

	// Instance metrics
	instancesManaged prometheus.Gauge

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		jobsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_dispatched_total",
				Help:      "Total number of jobs dispatched",
			},
			[]string{"operation"},
		),
		jobsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_completed_total",
				Help:      "Total number of jobs completed",
			},
			[]string{"operation", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of job execution in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		outputRequests: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_requests_total",
				Help:      "Total number of synchronous output requests",
			},
		),
		outputDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "output_duration_seconds",
				Help:      "Duration of synchronous output requests in seconds",
				Buckets:   buckets,
			},
		),

		instancesManaged: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "instances_managed",
				Help:      "Current number of managed model instances",
			},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of errors by error kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.jobsDispatched,
		m.jobsCompleted,
		m.jobDuration,
		m.outputRequests,
		m.outputDuration,
		m.instancesManaged,
		m.errorsByKind,
	)

	return m, nil
}

// JobDispatched increments the counter for dispatched jobs.
func (m *Metrics) JobDispatched(operation string) {
	if m.jobsDispatched == nil {
		return
	}
	m.jobsDispatched.WithLabelValues(operation).Inc()
}

// ObserveJob records a completed job with its outcome and duration.
func (m *Metrics) ObserveJob(operation string, success bool, duration time.Duration) {
	if m.jobsCompleted == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	m.jobsCompleted.WithLabelValues(operation, status).Inc()
	m.jobDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveOutput records a served synchronous output request.
func (m *Metrics) ObserveOutput(duration time.Duration) {
	if m.outputRequests == nil {
		return
	}
	m.outputRequests.Inc()
	m.outputDuration.Observe(duration.Seconds())
}

// SetInstances sets the current number of managed instances.
func (m *Metrics) SetInstances(count int) {
	if m.instancesManaged == nil {
		return
	}
	m.instancesManaged.Set(float64(count))
}

// ErrorObserved records an error by kind.
func (m *Metrics) ErrorObserved(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
