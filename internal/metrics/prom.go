package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workbench_jobs_inflight",
			Help: "Number of lens jobs currently executing",
		},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workbench_jobs_total",
			Help: "Total number of lens jobs by terminal status",
		},
		[]string{"status"},
	)

	lensDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workbench_lens_duration_seconds",
			Help:    "Wall time of lens computations by query kind",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"kind"},
	)
)

// Register registers all service collectors on r.
func Register(r prometheus.Registerer) {
	r.MustRegister(jobsInflight, jobsTotal, lensDuration)
}

// JobStart increments the in-flight job gauge.
func JobStart() { jobsInflight.Inc() }

// JobEnd decrements in-flight and counts the terminal status.
func JobEnd(status string) {
	jobsInflight.Dec()
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveLens records the duration of one lens computation.
func ObserveLens(kind string, d time.Duration) {
	lensDuration.WithLabelValues(kind).Observe(d.Seconds())
}
