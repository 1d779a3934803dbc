package poly

import (
	"fmt"

	"github.com/cwbudde/polyroot/internal/opt"
)

// Cache keeps one initialized solver per candidate so repeated solves reuse
// their linear-solve and derivative machinery. It must not be used from
// several goroutines at once; independent caches share nothing.
type Cache struct {
	alg     string
	prob    *opt.Problem
	solvers []opt.Solver
	norm    opt.NormFunc
	notify  ObserverFunc

	// current is the zero-based candidate being driven. Only Solve moves it.
	current int
}

// NewCache builds the PathCache candidate list for cfg and initializes
// every entry once.
func NewCache(prob *opt.Problem, cfg Config, options ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewCacheFrom(prob, cfg.Name(), initializers(Build(prob, cfg, PathCache)), options...)
}

// NewCacheFrom builds a cache over an explicit candidate list. alg is the
// algorithm name reported in solutions.
func NewCacheFrom(prob *opt.Problem, alg string, cands []Initializer, options ...Option) (*Cache, error) {
	if len(cands) == 0 {
		return nil, errNoCandidates
	}
	s := newSettings(options)
	c := &Cache{
		alg:     alg,
		prob:    prob,
		solvers: make([]opt.Solver, len(cands)),
		norm:    s.norm,
		notify:  s.notify,
	}
	for i, cand := range cands {
		solver, err := cand.Init(prob, s.opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize candidate %d (%s): %w", i, cand.Name(), err)
		}
		c.solvers[i] = solver
	}
	return c, nil
}

// PerformStep drives the current candidate until it terminates. One call
// is one candidate fully solved, not one primitive iteration. It panics
// with *CursorError when the cursor is out of range.
func (c *Cache) PerformStep() {
	if c.current < 0 || c.current >= len(c.solvers) {
		panic(&CursorError{Current: c.current, Len: len(c.solvers)})
	}
	s := c.solvers[c.current]
	for !s.Terminated() {
		s.Step()
	}
}

// Solve drives candidates from the cursor onward until one succeeds. If all
// fail, the result comes from the candidate with the smallest residual norm
// among every candidate in the cache and is classified MaxIters.
func (c *Cache) Solve(options ...SolveOption) *opt.Solution {
	var ss solveSettings
	for _, o := range options {
		o(&ss)
	}
	if ss.restart {
		c.current = 0
	}

	sub, _ := tryInOrder(c.alg, c.notify, &c.current, len(c.solvers), func(i int) (*opt.Solution, error) {
		c.PerformStep()
		return c.solvers[i].Solve(), nil
	})
	if sub != nil {
		return finish(c.alg, PathCache, wrap(c.alg, c.current, sub, sub.Retcode))
	}

	best := argmin(len(c.solvers), func(i int) float64 {
		return c.solvers[i].ResidualNorm(c.norm)
	})
	return finish(c.alg, PathCache, wrap(c.alg, best, snapshot(c.solvers[best]), opt.MaxIters))
}

// Reinit restarts every candidate from u0 (nil keeps the problem's u0).
// The cursor is left where it is; pass Restart to Solve to rewind it.
// Lengths are checked before any candidate is touched.
func (c *Cache) Reinit(u0 []float64, opts ...opt.ReinitOption) error {
	if err := opt.CheckReinit(c.prob, u0, opts...); err != nil {
		return err
	}
	for i, s := range c.solvers {
		if err := s.Reinit(u0, opts...); err != nil {
			return fmt.Errorf("failed to reinit candidate %d (%s): %w", i, s.Name(), err)
		}
	}
	return nil
}

// Current returns the zero-based cursor. After a total failure it equals Len.
func (c *Cache) Current() int { return c.current }

// Len returns the number of candidates.
func (c *Cache) Len() int { return len(c.solvers) }

// Candidate returns the i-th initialized solver.
func (c *Cache) Candidate(i int) opt.Solver { return c.solvers[i] }

// Names lists the candidate names in order.
func (c *Cache) Names() []string {
	names := make([]string, len(c.solvers))
	for i, s := range c.solvers {
		names[i] = s.Name()
	}
	return names
}

// Alg is the algorithm name reported in solutions.
func (c *Cache) Alg() string { return c.alg }
