package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for minutes jobs. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	JobsTotal      *prometheus.CounterVec
	JobDuration    prometheus.Histogram
	JobsInFlight   prometheus.Gauge
	RemoteAttempts *prometheus.CounterVec
	RemoteRetries  *prometheus.CounterVec
	PollIterations prometheus.Counter
	AuditFailures  prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "minutes_jobs_total",
			Help: "Total number of minutes jobs by terminal status",
		}, []string{"status"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "minutes_job_duration_seconds",
			Help:    "End-to-end duration of minutes jobs",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}),
		JobsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "minutes_jobs_in_flight",
			Help: "Number of minutes jobs currently running",
		}),
		RemoteAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "minutes_remote_attempts_total",
			Help: "Remote call attempts by operation",
		}, []string{"operation"}),
		RemoteRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "minutes_remote_retries_total",
			Help: "Remote call retries by operation",
		}, []string{"operation"}),
		PollIterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "minutes_remote_poll_iterations_total",
			Help: "Number of processing-state polls issued",
		}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "minutes_audit_write_failures_total",
			Help: "Audit log appends that failed",
		}),
	}
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.JobsInFlight.Inc()
}

func (m *Metrics) JobFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.JobsInFlight.Dec()
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobDuration.Observe(d.Seconds())
}

func (m *Metrics) RemoteAttempt(op string) {
	if m == nil {
		return
	}
	m.RemoteAttempts.WithLabelValues(op).Inc()
}

func (m *Metrics) RemoteRetry(op string) {
	if m == nil {
		return
	}
	m.RemoteRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) Poll() {
	if m == nil {
		return
	}
	m.PollIterations.Inc()
}

func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}
