package opt

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	maxTrustRadius  = 1e10
	shrinkTolerance = 1e-14
)

// trustRegion is a dogleg trust-region candidate. The radius heuristic
// is selected by RadiusUpdate.
type trustRegion struct {
	base
	scheme RadiusUpdate
	lin    *linearSolve
	jac    *mat.Dense

	radius float64
	mu     float64 // Fan: radius = mu·‖F‖
	fresh  bool    // jac, g and pN describe the current u
	pNok   bool

	g, pN, p, jp, rhs, utrial, ftrial, work []float64
}

func newTrustRegion(prob *Problem, spec Spec, opts Options) (*trustRegion, error) {
	s := &trustRegion{scheme: spec.Radius}
	if err := s.setup(prob, spec, opts); err != nil {
		return nil, err
	}
	n := len(s.u)
	s.lin = newLinearSolve(spec, n)
	s.jac = mat.NewDense(n, n, nil)
	s.g = make([]float64, n)
	s.pN = make([]float64, n)
	s.p = make([]float64, n)
	s.jp = make([]float64, n)
	s.rhs = make([]float64, n)
	s.utrial = make([]float64, n)
	s.ftrial = make([]float64, n)
	s.work = make([]float64, n)
	s.resetRadius()
	return s, nil
}

func (s *trustRegion) resetRadius() {
	s.fresh = false
	s.mu = 1
	switch s.scheme {
	case RadiusNLsolve:
		s.radius = math.Max(1, L2Norm(s.u))
	case RadiusFan:
		s.radius = s.mu * L2Norm(s.fu)
	default:
		s.radius = 1
	}
}

func (s *trustRegion) Step() {
	if s.preStep() {
		return
	}

	if !s.fresh {
		// The Jacobian is always materialized here; the dogleg needs Jᵀ.
		s.jacobian(s.jac, s.u, s.fu)
		mat.NewVecDense(len(s.g), s.g).MulVec(s.jac.T(), mat.NewVecDense(len(s.fu), s.fu))
		floats.ScaleTo(s.rhs, -1, s.fu)
		s.pNok = s.lin.solveDense(s.pN, s.jac, s.rhs, &s.stats) == nil && finite(s.pN)
		s.fresh = true
	}
	if s.scheme == RadiusFan {
		s.radius = math.Min(s.mu*L2Norm(s.fu), maxTrustRadius)
	}

	if !s.dogleg() {
		// Zero gradient away from a root: a local minimum of ½‖F‖².
		s.terminate(Stalled)
		return
	}

	n := len(s.u)
	mat.NewVecDense(n, s.jp).MulVec(s.jac, mat.NewVecDense(n, s.p))
	floats.AddTo(s.work, s.fu, s.jp)
	phi0 := 0.5 * floats.Dot(s.fu, s.fu)
	pred := phi0 - 0.5*floats.Dot(s.work, s.work)

	floats.AddTo(s.utrial, s.u, s.p)
	s.evalF(s.ftrial, s.utrial)
	ared := phi0 - 0.5*floats.Dot(s.ftrial, s.ftrial)

	rho := -1.0
	if pred > 0 && finite(s.ftrial) {
		rho = ared / pred
	}

	if s.updateRadius(rho, L2Norm(s.p)) {
		copy(s.u, s.utrial)
		copy(s.fu, s.ftrial)
		s.fresh = false
	}

	s.postStep()
	if !s.done && s.radius < shrinkTolerance*math.Max(1, L2Norm(s.u)) {
		s.terminate(ShrinkThresholdExceeded)
	}
}

// dogleg fills p with the dogleg step for the current radius. It returns
// false when no descent direction exists.
func (s *trustRegion) dogleg() bool {
	r := s.radius
	if s.pNok && L2Norm(s.pN) <= r {
		copy(s.p, s.pN)
		return true
	}

	gnorm := L2Norm(s.g)
	if gnorm == 0 {
		return false
	}

	// Cauchy point along -g.
	n := len(s.g)
	mat.NewVecDense(n, s.work).MulVec(s.jac, mat.NewVecDense(n, s.g))
	jg := floats.Dot(s.work, s.work)
	t := r / gnorm
	if jg > 0 {
		t = math.Min(t, gnorm*gnorm/jg)
	}
	floats.ScaleTo(s.p, -t, s.g)

	if !s.pNok || t*gnorm >= r {
		return true
	}

	// Walk from the Cauchy point toward the Newton point up to the boundary.
	floats.SubTo(s.work, s.pN, s.p)
	a := floats.Dot(s.work, s.work)
	b := 2 * floats.Dot(s.p, s.work)
	c := floats.Dot(s.p, s.p) - r*r
	tau := (-b + math.Sqrt(b*b-4*a*c)) / (2 * a)
	floats.AddScaled(s.p, tau, s.work)
	return true
}

// updateRadius applies the configured heuristic and reports whether the
// trial step is accepted.
func (s *trustRegion) updateRadius(rho, pnorm float64) bool {
	switch s.scheme {
	case RadiusNLsolve:
		switch {
		case rho < 0.1:
			s.radius *= 0.5
		case rho >= 0.9:
			s.radius = 2 * pnorm
		case rho >= 0.5:
			s.radius = math.Max(s.radius, 2*pnorm)
		}
		return rho > 1e-4

	case RadiusBastin:
		switch {
		case rho >= 0.9:
			s.radius = math.Max(s.radius, 2.5*pnorm)
		case rho < 0.05:
			s.radius = 0.25 * pnorm
		}
		return rho >= 0.05

	case RadiusFan:
		switch {
		case rho < 0.25:
			s.mu *= 0.25
		case rho > 0.75:
			s.mu = math.Min(4*s.mu, 1e8)
		}
		return rho > 1e-4

	default:
		switch {
		case rho < 0.25:
			s.radius *= 0.25
		case rho > 0.75 && pnorm >= 0.99*s.radius:
			s.radius = math.Min(2*s.radius, maxTrustRadius)
		}
		return rho > 1e-4
	}
}

func (s *trustRegion) Solve() *Solution { return drive(s) }

func (s *trustRegion) Reinit(u0 []float64, opts ...ReinitOption) error {
	if err := s.reinit(u0, opts...); err != nil {
		return err
	}
	s.resetRadius()
	return nil
}
