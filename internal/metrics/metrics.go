package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps Prometheus collectors for a stack-updater run.
type Metrics struct {
	registry              *prometheus.Registry
	runDurationSeconds    prometheus.Histogram
	membersTotal          *prometheus.GaugeVec
	memberFailuresTotal   *prometheus.CounterVec
	lastRunTimestamp      prometheus.Gauge
	lastSuccessfulRunTime prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stack_updater_run_duration_seconds",
			Help:    "Duration of stack synchronization runs in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		membersTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stack_updater_members_total",
			Help: "Stack members by resolution status in the last run.",
		}, []string{"stack", "status"}),
		memberFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stack_updater_member_failures_total",
			Help: "Member failures by reason.",
		}, []string{"stack", "reason"}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stack_updater_last_run_timestamp",
			Help: "Unix timestamp of the last completed run.",
		}),
		lastSuccessfulRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stack_updater_last_successful_run_timestamp",
			Help: "Unix timestamp of the last run without member failures.",
		}),
	}

	registry.MustRegister(
		m.runDurationSeconds,
		m.membersTotal,
		m.memberFailuresTotal,
		m.lastRunTimestamp,
		m.lastSuccessfulRunTime,
	)

	return m
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// ObserveRunDuration records the duration of a completed run.
func (m *Metrics) ObserveRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.runDurationSeconds.Observe(duration.Seconds())
}

// SetMembersTotal sets the member gauge for the given stack/status.
func (m *Metrics) SetMembersTotal(stack string, status string, value int) {
	if m == nil {
		return
	}
	m.membersTotal.WithLabelValues(stack, status).Set(float64(value))
}

// IncMemberFailures increments the failure counter for the given stack/reason.
func (m *Metrics) IncMemberFailures(stack string, reason string) {
	if m == nil {
		return
	}
	m.memberFailuresTotal.WithLabelValues(stack, reason).Inc()
}

// SetLastRunTimestamp sets the last completed run time.
func (m *Metrics) SetLastRunTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastRunTimestamp.Set(float64(t.Unix()))
}

// SetLastSuccessfulRunTimestamp sets the last fully successful run time.
func (m *Metrics) SetLastSuccessfulRunTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulRunTime.Set(float64(t.Unix()))
}
