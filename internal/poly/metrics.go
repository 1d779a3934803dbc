package poly

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

// Registry returns the registry holding the polyalgorithm metrics.
func Registry() *prometheus.Registry {
	return registry
}

var (
	factory = promauto.With(registry)

	// candidateAttempts counts fully solved candidates.
	// Labels: method, retcode
	candidateAttempts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "polyroot",
		Subsystem: "candidate",
		Name:      "attempts_total",
		Help:      "Candidates driven to termination, by method and return code",
	}, []string{"method", "retcode"})

	// candidateSteps records how many iterations a candidate took.
	// Labels: method
	candidateSteps = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "polyroot",
		Subsystem: "candidate",
		Name:      "steps",
		Help:      "Iterations per candidate solve",
		Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"method"})

	// fallbacks counts moves from a failed candidate to the next one.
	// Labels: alg
	fallbacks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "polyroot",
		Subsystem: "polyalg",
		Name:      "fallbacks_total",
		Help:      "Fallbacks from a failed candidate to the next",
	}, []string{"alg"})

	// solves counts top-level polyalgorithm solves.
	// Labels: alg, path, outcome (success, failure)
	solves = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "polyroot",
		Subsystem: "polyalg",
		Name:      "solves_total",
		Help:      "Polyalgorithm solves by path and outcome",
	}, []string{"alg", "path", "outcome"})
)

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
