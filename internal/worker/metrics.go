package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_worker_jobs_total",
		Help: "Processed jobs by outcome.",
	}, []string{"outcome"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamgate_worker_job_duration_seconds",
		Help:    "Wall time spent processing one job.",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
	})
)
