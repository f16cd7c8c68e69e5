package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records worker job runs and lock-skipped cycles.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	skipped  prometheus.Counter
}

// NewJobMetrics registers the worker metrics. A nil registerer yields a
// no-op recorder.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_job_duration_seconds",
		Help:    "Duration of worker job runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_job_runs_total",
		Help: "Worker job runs by outcome.",
	}, []string{"job", "outcome"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_cycles_skipped_total",
		Help: "Worker cycles skipped because another replica held the lock.",
	})
	reg.MustRegister(duration, runs, skipped)
	return &JobMetrics{
		duration: duration,
		runs:     runs,
		skipped:  skipped,
	}
}

// ObserveRun records one run of the named job.
func (m *JobMetrics) ObserveRun(job string, took time.Duration, err error) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	m.runs.WithLabelValues(job, outcome).Inc()
}

func (m *JobMetrics) IncSkippedCycle() {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Inc()
}

// normalizeLabel keeps empty label values out of the series set.
func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
