package poly

import (
	"errors"
	"log/slog"

	"github.com/cwbudde/polyroot/internal/opt"
)

var errNoCandidates = errors.New("candidate list is empty")

// tryInOrder fully solves candidates from *cursor onward in list order and
// stops at the first success, leaving *cursor on the winner. When every
// remaining candidate fails it returns nil with *cursor == n.
func tryInOrder(alg string, notify ObserverFunc, cursor *int, n int, solveAt func(i int) (*opt.Solution, error)) (*opt.Solution, error) {
	for ; *cursor < n; *cursor++ {
		sol, err := solveAt(*cursor)
		if err != nil {
			return nil, err
		}
		observe(alg, *cursor, sol, notify)
		if sol.Successful() {
			return sol, nil
		}
		if *cursor+1 < n {
			fallbacks.WithLabelValues(alg).Inc()
		}
	}
	return nil, nil
}

// observe logs and counts one finished candidate.
func observe(alg string, i int, sol *opt.Solution, notify ObserverFunc) {
	if notify != nil {
		notify(i, sol)
	}
	candidateAttempts.WithLabelValues(sol.Alg, sol.Retcode.String()).Inc()
	candidateSteps.WithLabelValues(sol.Alg).Observe(float64(sol.Stats.NSteps))
	slog.Debug("Candidate finished",
		"alg", alg,
		"candidate", i,
		"method", sol.Alg,
		"retcode", sol.Retcode,
		"steps", sol.Stats.NSteps,
	)
}

// wrap builds the polyalgorithm record around the sub-solution of candidate i.
func wrap(alg string, i int, sub *opt.Solution, retcode opt.ReturnCode) *opt.Solution {
	return &opt.Solution{
		U:         sub.U,
		Resid:     sub.Resid,
		Retcode:   retcode,
		Stats:     sub.Stats,
		Alg:       alg,
		Candidate: i,
		Original:  sub,
	}
}

// snapshot reads a candidate's current state without stepping it.
func snapshot(s opt.Solver) *opt.Solution {
	return &opt.Solution{
		U:         s.U(),
		Resid:     s.Resid(),
		Retcode:   s.Retcode(),
		Stats:     s.Stats(),
		Alg:       s.Name(),
		Candidate: -1,
	}
}

func finish(alg string, path Path, sol *opt.Solution) *opt.Solution {
	solves.WithLabelValues(alg, path.String(), outcome(sol.Successful())).Inc()
	if sol.Successful() {
		slog.Debug("Polyalgorithm converged", "alg", alg, "path", path, "candidate", sol.Candidate, "method", sol.Original.Alg)
	} else {
		slog.Info("All candidates failed",
			"alg", alg,
			"path", path,
			"best", sol.Candidate,
			"method", sol.Original.Alg,
			"retcode", sol.Retcode,
		)
	}
	return sol
}
