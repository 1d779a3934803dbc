package poly

import (
	"fmt"

	"github.com/cwbudde/polyroot/internal/opt"
)

// SolveFixed is the allocation-light form of the FastShortcut stateless
// solve for in-place problems. It always tries NewtonRaphson, Newton with
// backtracking, TrustRegion(Default) and TrustRegion(Bastin), and gives the
// same result as Solve with a FastShortcut config. cfg supplies the
// derivative and linear-solve settings; its preset is ignored and the
// solution is always labelled as FastShortcut.
func SolveFixed(prob *opt.Problem, cfg Config, options ...Option) (*opt.Solution, error) {
	if err := prob.Validate(); err != nil {
		return nil, err
	}
	if !prob.InPlace() {
		return nil, ErrNotInPlace
	}

	cfg.Preset = FastShortcut
	s := newSettings(options)
	alg := cfg.Name()
	specs := fixedSpecs(cfg)
	var results [4]*opt.Solution

	for i := range specs {
		solver, err := specs[i].Init(prob, s.opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize candidate %d (%s): %w", i, specs[i].Name(), err)
		}
		results[i] = solver.Solve()
		observe(alg, i, results[i], s.notify)
		if results[i].Successful() {
			return finish(alg, PathFixed, wrap(alg, i, results[i], results[i].Retcode)), nil
		}
		if i < len(specs)-1 {
			fallbacks.WithLabelValues(alg).Inc()
		}
	}

	n0 := results[0].ResidualNorm(s.norm)
	n1 := results[1].ResidualNorm(s.norm)
	n2 := results[2].ResidualNorm(s.norm)
	n3 := results[3].ResidualNorm(s.norm)

	best, bestNorm := 0, n0
	if better(n1, bestNorm) {
		best, bestNorm = 1, n1
	}
	if better(n2, bestNorm) {
		best, bestNorm = 2, n2
	}
	if better(n3, bestNorm) {
		best = 3
	}
	return finish(alg, PathFixed, wrap(alg, best, results[best], results[best].Retcode)), nil
}
