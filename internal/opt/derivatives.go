package opt

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// derivatives resolves the configured derivative source for one candidate.
type derivatives struct {
	kind       Derivative
	matrixFree bool

	up, um, fp []float64
	jv         *mat.Dense // analytic J scratch for matrix-free products
}

func newDerivatives(prob *Problem, spec Spec) (*derivatives, error) {
	kind := spec.Derivative
	switch kind {
	case DiffAuto:
		kind = DiffForward
		if prob.J != nil {
			kind = DiffAnalytic
		}
	case DiffAnalytic:
		if prob.J == nil {
			return nil, ErrNoJacobian
		}
	}

	matrixFree := false
	switch spec.Jacobian {
	case JacobianMatrixFree:
		matrixFree = true
	case JacobianAuto:
		matrixFree = spec.Linsolve == LinsolveGMRES
	}

	n := prob.Dim()
	return &derivatives{
		kind:       kind,
		matrixFree: matrixFree,
		up:         make([]float64, n),
		um:         make([]float64, n),
		fp:         make([]float64, n),
	}, nil
}

// jacobian writes dF/du at u into dst. fu must hold F(u).
func (b *base) jacobian(dst *mat.Dense, u, fu []float64) {
	b.stats.NJacs++
	d := b.deriv
	if d.kind == DiffAnalytic {
		b.prob.J(dst, u, b.params)
		return
	}

	settings := &fd.JacobianSettings{Formula: fd.Forward, OriginValue: fu}
	if d.kind == DiffCentral {
		settings = &fd.JacobianSettings{Formula: fd.Central}
	}
	fd.Jacobian(dst, func(y, x []float64) { b.evalF(y, x) }, u, settings)
}

// linearize prepares jvp for products at u. An analytic Jacobian is
// formed once here and shared by every product until the next call.
func (b *base) linearize(u, fu []float64) {
	d := b.deriv
	if d.kind != DiffAnalytic {
		return
	}
	if d.jv == nil {
		n := len(u)
		d.jv = mat.NewDense(n, n, nil)
	}
	b.jacobian(d.jv, u, fu)
}

// jvp writes J(u)·v into dst without forming J when the derivative is
// finite-difference based. fu must hold F(u), and linearize must have
// been called at u.
func (b *base) jvp(dst, u, fu, v []float64) {
	d := b.deriv
	if d.kind == DiffAnalytic {
		n := len(u)
		mat.NewVecDense(n, dst).MulVec(d.jv, mat.NewVecDense(n, v))
		return
	}

	vnorm := floats.Norm(v, 2)
	if vnorm == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	h := math.Sqrt(epsilon) * math.Max(1, floats.Norm(u, 2)) / vnorm

	floats.AddScaledTo(d.up, u, h, v)
	b.evalF(d.fp, d.up)
	if d.kind == DiffCentral {
		floats.AddScaledTo(d.um, u, -h, v)
		b.evalF(dst, d.um)
		floats.SubTo(dst, d.fp, dst)
		floats.Scale(1/(2*h), dst)
		return
	}
	floats.SubTo(dst, d.fp, fu)
	floats.Scale(1/h, dst)
}

const epsilon = 2.220446049250313e-16
