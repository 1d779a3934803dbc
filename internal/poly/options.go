package poly

import "github.com/cwbudde/polyroot/internal/opt"

type settings struct {
	norm   opt.NormFunc
	opts   opt.Options
	notify ObserverFunc
}

func newSettings(options []Option) settings {
	s := settings{norm: opt.L2Norm, opts: opt.DefaultOptions()}
	for _, o := range options {
		o(&s)
	}
	return s
}

// Option configures a polyalgorithm driver.
type Option func(*settings)

// WithNorm sets the norm used to rank failed candidates. Default: L2.
func WithNorm(norm opt.NormFunc) Option {
	return func(s *settings) {
		if norm != nil {
			s.norm = norm
		}
	}
}

// WithOptions sets the solver options forwarded verbatim to every candidate.
func WithOptions(o opt.Options) Option {
	return func(s *settings) { s.opts = o }
}

// ObserverFunc is told about every candidate driven to termination, in
// order, with its zero-based index and its own solution.
type ObserverFunc func(candidate int, sol *opt.Solution)

// WithObserver registers fn to be called after each candidate finishes.
func WithObserver(fn ObserverFunc) Option {
	return func(s *settings) { s.notify = fn }
}

// SolveOption adjusts a single Cache.Solve call.
type SolveOption func(*solveSettings)

type solveSettings struct {
	restart bool
}

// Restart rewinds the cursor to the first candidate before solving.
// Without it, Solve resumes from the current candidate.
func Restart() SolveOption {
	return func(s *solveSettings) { s.restart = true }
}
