package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	// jobsTotal counts terminal job handling results per attempt:
	// ok (acked), retry (rescheduled), dead (attempts exhausted).
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_total",
			Help: "Total number of handled job attempts, by result.",
		},
		[]string{"result"},
	)

	// jobDuration records handler latency per attempt.
	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_job_duration_seconds",
			Help:    "Duration of job handler invocations in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal, jobDuration)
}
