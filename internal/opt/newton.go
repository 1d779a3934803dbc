package opt

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var errLineSearch = errors.New("backtracking line search found no sufficient decrease")

const (
	armijoC1         = 1e-4
	maxBacktracks    = 30
	backtrackMinStep = 0.1
	backtrackMaxStep = 0.5
)

// newton is a Newton-Raphson candidate, optionally globalized by an
// Armijo backtracking line search on ½‖F‖².
type newton struct {
	base
	search LineSearch
	lin    *linearSolve
	jac    *mat.Dense // nil in matrix-free mode

	du, rhs, utrial, ftrial []float64
}

func newNewton(prob *Problem, spec Spec, opts Options) (*newton, error) {
	s := &newton{search: spec.LineSearch}
	if err := s.setup(prob, spec, opts); err != nil {
		return nil, err
	}
	n := len(s.u)
	s.lin = newLinearSolve(spec, n)
	if !s.deriv.matrixFree {
		s.jac = mat.NewDense(n, n, nil)
	}
	s.du = make([]float64, n)
	s.rhs = make([]float64, n)
	s.utrial = make([]float64, n)
	s.ftrial = make([]float64, n)
	return s, nil
}

func (s *newton) Step() {
	if s.preStep() {
		return
	}

	floats.ScaleTo(s.rhs, -1, s.fu)
	var err error
	if s.jac != nil {
		s.jacobian(s.jac, s.u, s.fu)
		err = s.lin.solveDense(s.du, s.jac, s.rhs, &s.stats)
	} else {
		s.linearize(s.u, s.fu)
		err = s.lin.solveOperator(s.du, func(dst, v []float64) {
			s.jvp(dst, s.u, s.fu, v)
		}, s.rhs, &s.stats)
	}
	if err != nil {
		s.fail(InternalLinearSolveFailure, err)
		return
	}

	if s.search == LineSearchBacktracking {
		if !s.backtrack() {
			s.fail(ConvergenceFailure, errLineSearch)
			return
		}
	} else {
		floats.AddTo(s.utrial, s.u, s.du)
		s.evalF(s.ftrial, s.utrial)
	}

	copy(s.u, s.utrial)
	copy(s.fu, s.ftrial)
	s.postStep()
}

// backtrack shrinks the Newton step until the Armijo condition holds on
// φ(α) = ½‖F(u + α du)‖². On success utrial and ftrial hold the accepted point.
func (s *newton) backtrack() bool {
	phi0 := 0.5 * floats.Dot(s.fu, s.fu)
	slope := -2 * phi0 // ∇φ·du for an exact Newton direction

	alpha := 1.0
	for k := 0; k < maxBacktracks; k++ {
		floats.AddScaledTo(s.utrial, s.u, alpha, s.du)
		s.evalF(s.ftrial, s.utrial)
		phi := 0.5 * floats.Dot(s.ftrial, s.ftrial)

		if math.IsNaN(phi) || math.IsInf(phi, 0) {
			alpha *= backtrackMaxStep
			continue
		}
		if phi <= phi0+armijoC1*alpha*slope {
			return true
		}

		next := -slope * alpha * alpha / (2 * (phi - phi0 - slope*alpha))
		alpha = math.Max(backtrackMinStep*alpha, math.Min(next, backtrackMaxStep*alpha))
	}
	return false
}

func (s *newton) Solve() *Solution { return drive(s) }

func (s *newton) Reinit(u0 []float64, opts ...ReinitOption) error {
	return s.reinit(u0, opts...)
}
