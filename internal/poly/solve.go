package poly

import (
	"fmt"

	"github.com/cwbudde/polyroot/internal/opt"
)

// Solve builds the PathStateless candidate list, solves each candidate from
// scratch in order and returns on the first success. If every candidate
// fails it returns the attempt with the smallest residual norm, keeping
// that candidate's own return code.
func Solve(prob *opt.Problem, cfg Config, options ...Option) (*opt.Solution, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return SolveFrom(prob, cfg.Name(), initializers(Build(prob, cfg, PathStateless)), options...)
}

// SolveFrom is Solve over an explicit candidate list.
func SolveFrom(prob *opt.Problem, alg string, cands []Initializer, options ...Option) (*opt.Solution, error) {
	if len(cands) == 0 {
		return nil, errNoCandidates
	}
	s := newSettings(options)
	results := make([]*opt.Solution, 0, len(cands))

	cursor := 0
	sub, err := tryInOrder(alg, s.notify, &cursor, len(cands), func(i int) (*opt.Solution, error) {
		solver, err := cands[i].Init(prob, s.opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize candidate %d (%s): %w", i, cands[i].Name(), err)
		}
		sol := solver.Solve()
		results = append(results, sol)
		return sol, nil
	})
	if err != nil {
		return nil, err
	}
	if sub != nil {
		return finish(alg, PathStateless, wrap(alg, cursor, sub, sub.Retcode)), nil
	}

	best := argmin(len(results), func(i int) float64 { return results[i].ResidualNorm(s.norm) })
	return finish(alg, PathStateless, wrap(alg, best, results[best], results[best].Retcode)), nil
}
