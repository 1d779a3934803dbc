package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cwbudde/polyroot/internal/poly"
)

// Job metrics share the polyalgorithm registry so /metrics serves both.
var (
	factory = promauto.With(poly.Registry())

	jobsRunning = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "polyroot",
		Subsystem: "server",
		Name:      "jobs_running",
		Help:      "Jobs currently solving",
	})

	// Labels: state (completed, failed, cancelled)
	jobsFinished = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "polyroot",
		Subsystem: "server",
		Name:      "jobs_finished_total",
		Help:      "Jobs that reached a terminal state",
	}, []string{"state"})

	jobDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "polyroot",
		Subsystem: "server",
		Name:      "job_duration_seconds",
		Help:      "Wall-clock time of job solves",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
)
