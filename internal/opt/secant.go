package opt

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// broyden is a "good" Broyden candidate updating an inverse Jacobian
// approximation by Sherman-Morrison rank-one corrections. The inverse is
// seeded from one finite-difference Jacobian and reseeded on breakdown.
type broyden struct {
	base
	jac    *mat.Dense
	jinv   *mat.Dense
	seeded bool

	du, df, jdf, row, utrial, ftrial []float64
}

func newBroyden(prob *Problem, spec Spec, opts Options) (*broyden, error) {
	s := &broyden{}
	if err := s.setup(prob, spec, opts); err != nil {
		return nil, err
	}
	n := len(s.u)
	s.jac = mat.NewDense(n, n, nil)
	s.jinv = mat.NewDense(n, n, nil)
	s.du = make([]float64, n)
	s.df = make([]float64, n)
	s.jdf = make([]float64, n)
	s.row = make([]float64, n)
	s.utrial = make([]float64, n)
	s.ftrial = make([]float64, n)
	return s, nil
}

func (s *broyden) seed() {
	s.jacobian(s.jac, s.u, s.fu)
	s.stats.NFactors++
	if err := s.jinv.Inverse(s.jac); err != nil || !finiteMatrix(s.jinv) {
		n := len(s.u)
		s.jinv.Zero()
		for i := 0; i < n; i++ {
			s.jinv.Set(i, i, 1)
		}
	}
	s.seeded = true
}

func (s *broyden) Step() {
	if s.preStep() {
		return
	}
	if !s.seeded {
		s.seed()
	}

	n := len(s.u)
	mat.NewVecDense(n, s.du).MulVec(s.jinv, mat.NewVecDense(n, s.fu))
	floats.Scale(-1, s.du)

	floats.AddTo(s.utrial, s.u, s.du)
	s.evalF(s.ftrial, s.utrial)
	floats.SubTo(s.df, s.ftrial, s.fu)
	copy(s.u, s.utrial)
	copy(s.fu, s.ftrial)

	// Jinv += (du - Jinv df) (duᵀ Jinv) / (duᵀ Jinv df)
	mat.NewVecDense(n, s.jdf).MulVec(s.jinv, mat.NewVecDense(n, s.df))
	denom := floats.Dot(s.du, s.jdf)
	if math.Abs(denom) <= 1e-14*floats.Dot(s.du, s.du) || !finite(s.jdf) {
		s.seeded = false
	} else {
		mat.NewVecDense(n, s.row).MulVec(s.jinv.T(), mat.NewVecDense(n, s.du))
		floats.SubTo(s.jdf, s.du, s.jdf)
		s.jinv.RankOne(s.jinv, 1/denom, mat.NewVecDense(n, s.jdf), mat.NewVecDense(n, s.row))
	}

	s.postStep()
}

func (s *broyden) Solve() *Solution { return drive(s) }

func (s *broyden) Reinit(u0 []float64, opts ...ReinitOption) error {
	if err := s.reinit(u0, opts...); err != nil {
		return err
	}
	s.seeded = false
	return nil
}

// klement keeps only a diagonal Jacobian approximation, updated by
// Klement's weighted secant rule.
type klement struct {
	base
	jac    *mat.Dense
	diag   []float64
	seeded bool

	du, df, utrial, ftrial []float64
}

func newKlement(prob *Problem, spec Spec, opts Options) (*klement, error) {
	s := &klement{}
	if err := s.setup(prob, spec, opts); err != nil {
		return nil, err
	}
	n := len(s.u)
	s.jac = mat.NewDense(n, n, nil)
	s.diag = make([]float64, n)
	s.du = make([]float64, n)
	s.df = make([]float64, n)
	s.utrial = make([]float64, n)
	s.ftrial = make([]float64, n)
	return s, nil
}

func (s *klement) seed() {
	s.jacobian(s.jac, s.u, s.fu)
	for i := range s.diag {
		d := s.jac.At(i, i)
		if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			d = 1
		}
		s.diag[i] = d
	}
	s.seeded = true
}

func (s *klement) Step() {
	if s.preStep() {
		return
	}
	if !s.seeded {
		s.seed()
	}

	floats.DivTo(s.du, s.fu, s.diag)
	floats.Scale(-1, s.du)
	floats.AddTo(s.utrial, s.u, s.du)
	s.evalF(s.ftrial, s.utrial)
	floats.SubTo(s.df, s.ftrial, s.fu)
	copy(s.u, s.utrial)
	copy(s.fu, s.ftrial)

	var denom float64
	for i, d := range s.diag {
		w := s.du[i] * d
		denom += w * w
	}
	if denom > 0 && !math.IsInf(denom, 0) {
		for i, d := range s.diag {
			s.diag[i] = d + (s.df[i]-d*s.du[i])*s.du[i]*d*d/denom
			if s.diag[i] == 0 || !finite(s.diag[i:i+1]) {
				s.seeded = false
			}
		}
	}

	s.postStep()
}

func (s *klement) Solve() *Solution { return drive(s) }

func (s *klement) Reinit(u0 []float64, opts ...ReinitOption) error {
	if err := s.reinit(u0, opts...); err != nil {
		return err
	}
	s.seeded = false
	return nil
}

func finiteMatrix(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
