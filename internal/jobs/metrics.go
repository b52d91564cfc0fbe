package jobmetrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	defaulted  *prometheus.CounterVec
	unresolved *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddDefaulted counts placeholder reads that fell back to zero for a tenant.
func (m *Metrics) AddDefaulted(tenant string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.defaulted.WithLabelValues(tenantLabel(tenant)).Add(float64(count))
}

// AddUnresolved counts template tokens left in a generated document.
func (m *Metrics) AddUnresolved(tenant string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.unresolved.WithLabelValues(tenantLabel(tenant)).Add(float64(count))
}

func tenantLabel(tenant string) string {
	tenant = strings.ToLower(strings.TrimSpace(tenant))
	if tenant == "" {
		return "unknown"
	}
	return tenant
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finreport_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finreport_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finreport_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"job"})
	defaulted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finreport_placeholders_defaulted_total",
		Help: "Placeholder reads that defaulted to zero during formula evaluation.",
	}, []string{"tenant"})
	unresolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finreport_tokens_unresolved_total",
		Help: "Template tokens left unreplaced in generated documents.",
	}, []string{"tenant"})
	registerer.MustRegister(runs, failures, duration, defaulted, unresolved)
	return &Metrics{runs: runs, failures: failures, duration: duration, defaulted: defaulted, unresolved: unresolved}
}
