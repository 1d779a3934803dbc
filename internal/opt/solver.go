package opt

import "fmt"

// Stats accumulates work counters for one candidate.
type Stats struct {
	NSteps   int `json:"nsteps"`
	NF       int `json:"nf"`
	NJacs    int `json:"njacs"`
	NFactors int `json:"nfactors"`
	NSolve   int `json:"nsolve"`
}

// Solution is the outcome of a solve. It is never mutated after construction.
type Solution struct {
	U       []float64  `json:"u"`
	Resid   []float64  `json:"resid"`
	Retcode ReturnCode `json:"retcode"`
	Stats   Stats      `json:"stats"`

	// Alg names the algorithm reported as having produced the solution.
	Alg string `json:"alg"`

	// Candidate is the zero-based registry index the solution was drawn
	// from, or -1 when the solution comes straight from a single solver.
	Candidate int `json:"candidate"`

	// Original holds the winning sub-solution when Alg names a polyalgorithm.
	Original *Solution `json:"original,omitempty"`
}

// Successful reports whether the solution converged.
func (s *Solution) Successful() bool {
	return s.Retcode.Successful()
}

// ResidualNorm applies norm to the final residual.
func (s *Solution) ResidualNorm(norm NormFunc) float64 {
	return norm(s.Resid)
}

// Solver is one initialized, steppable candidate over a fixed problem.
type Solver interface {
	// Name identifies the configured method, e.g. "TrustRegion(Bastin)".
	Name() string

	// Step advances one internal iteration. It is a no-op once terminated.
	Step()

	// Terminated reports whether a stopping condition has been reached.
	Terminated() bool

	// Solve steps until termination and returns the outcome.
	Solve() *Solution

	// Reinit resets the iterate and termination state in place, keeping
	// linear-solve and derivative machinery. A nil u0 restarts from the
	// problem's original starting point. A u0 or parameter slice of the
	// wrong length returns ErrDimensionMismatch and leaves the solver as is.
	Reinit(u0 []float64, opts ...ReinitOption) error

	ResidualNorm(norm NormFunc) float64
	U() []float64
	Resid() []float64
	Retcode() ReturnCode
	Stats() Stats
}

type reinitSettings struct {
	params    []float64
	setParams bool
}

// ReinitOption adjusts what Reinit replaces besides the iterate.
type ReinitOption func(*reinitSettings)

// WithParams replaces the problem parameters p on reinit.
func WithParams(p []float64) ReinitOption {
	return func(s *reinitSettings) {
		s.params = p
		s.setParams = true
	}
}

func newReinitSettings(opts []ReinitOption) reinitSettings {
	var s reinitSettings
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// CheckReinit verifies that u0 (when non-nil) and any replacement
// parameters have the lengths prob was defined with.
func CheckReinit(prob *Problem, u0 []float64, opts ...ReinitOption) error {
	if u0 != nil && len(u0) != prob.Dim() {
		return fmt.Errorf("reinit with %d unknowns on a %d-dimensional problem: %w", len(u0), prob.Dim(), ErrDimensionMismatch)
	}
	if s := newReinitSettings(opts); s.setParams && len(s.params) != len(prob.P) {
		return fmt.Errorf("reinit with %d parameters, problem has %d: %w", len(s.params), len(prob.P), ErrDimensionMismatch)
	}
	return nil
}

type stepper interface {
	Step()
	Terminated() bool
	solution() *Solution
}

// drive steps s until it terminates.
func drive(s stepper) *Solution {
	for !s.Terminated() {
		s.Step()
	}
	return s.solution()
}
