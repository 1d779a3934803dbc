package opt

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	errSingular      = errors.New("singular linear system")
	errNoConvergence = errors.New("iterative linear solve did not converge")
)

// linearSolve owns the factorization workspace reused across Newton steps.
type linearSolve struct {
	kind    LinearSolver
	precond Preconditioner

	lu     mat.LU
	qr     mat.QR
	chol   mat.Cholesky
	ata    mat.SymDense
	atb    *mat.VecDense
	scaled *mat.Dense
	scale  []float64
	y      []float64
}

func newLinearSolve(spec Spec, n int) *linearSolve {
	kind := spec.Linsolve
	if kind == LinsolveAuto {
		kind = LinsolveLU
	}
	return &linearSolve{
		kind:    kind,
		precond: spec.Precond,
		atb:     mat.NewVecDense(n, nil),
		scaled:  mat.NewDense(n, n, nil),
		scale:   make([]float64, n),
		y:       make([]float64, n),
	}
}

// solveDense solves J x = rhs. With Jacobi preconditioning the system is
// column-scaled by 1/|J_jj| and the scaling is undone on x.
func (l *linearSolve) solveDense(x []float64, J *mat.Dense, rhs []float64, st *Stats) error {
	n := len(rhs)
	A := J
	if l.precond == PrecondJacobi {
		l.jacobiScale(J)
		l.scaled.Apply(func(_, j int, v float64) float64 { return v * l.scale[j] }, J)
		A = l.scaled
	}

	yv := mat.NewVecDense(n, l.y)
	bv := mat.NewVecDense(n, rhs)
	var err error

	switch l.kind {
	case LinsolveLU:
		l.lu.Factorize(A)
		st.NFactors++
		if math.IsInf(l.lu.Cond(), 1) {
			return errSingular
		}
		err = l.lu.SolveVecTo(yv, false, bv)
	case LinsolveQR:
		l.qr.Factorize(A)
		st.NFactors++
		err = l.qr.SolveVecTo(yv, false, bv)
	case LinsolveNormalCholesky:
		l.ata.SymOuterK(1, A.T())
		st.NFactors++
		if ok := l.chol.Factorize(&l.ata); !ok {
			return errSingular
		}
		l.atb.MulVec(A.T(), bv)
		err = l.chol.SolveVecTo(yv, l.atb)
	case LinsolveGMRES:
		err = gmres(l.y, func(dst, v []float64) {
			mat.NewVecDense(n, dst).MulVec(A, mat.NewVecDense(n, v))
		}, rhs, n, 2*n+10, 1e-12)
	default:
		return fmt.Errorf("unsupported linear solver %v", l.kind)
	}
	st.NSolve++
	if err != nil {
		return fmt.Errorf("%v solve: %w", l.kind, err)
	}

	copy(x, l.y)
	if l.precond == PrecondJacobi {
		floats.Mul(x, l.scale)
	}
	return nil
}

// solveOperator solves A x = rhs where A is only available as a product.
// Jacobi scaling needs the diagonal of J and is skipped here.
func (l *linearSolve) solveOperator(x []float64, apply func(dst, v []float64), rhs []float64, st *Stats) error {
	n := len(rhs)
	st.NSolve++
	return gmres(x, apply, rhs, n, 2*n+10, 1e-12)
}

func (l *linearSolve) jacobiScale(J *mat.Dense) {
	for j := range l.scale {
		d := math.Abs(J.At(j, j))
		if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			l.scale[j] = 1
			continue
		}
		l.scale[j] = 1 / d
	}
}

// gmres solves A x = b with restarted GMRES(restart) using Givens rotations.
// x is overwritten; the initial guess is zero.
func gmres(x []float64, apply func(dst, v []float64), b []float64, restart, maxIter int, tol float64) error {
	n := len(b)
	for i := range x {
		x[i] = 0
	}
	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		return nil
	}

	V := make([][]float64, restart+1)
	H := make([][]float64, restart+1)
	for i := range V {
		V[i] = make([]float64, n)
		H[i] = make([]float64, restart)
	}
	cs := make([]float64, restart)
	sn := make([]float64, restart)
	g := make([]float64, restart+1)
	r := make([]float64, n)
	w := make([]float64, n)
	y := make([]float64, restart)

	for iters := 0; iters < maxIter; {
		apply(w, x)
		floats.SubTo(r, b, w)
		beta := floats.Norm(r, 2)
		if beta <= tol*bnorm {
			return nil
		}
		floats.ScaleTo(V[0], 1/beta, r)
		for i := range g {
			g[i] = 0
		}
		g[0] = beta

		m := 0
		for m < restart && iters < maxIter {
			iters++
			apply(w, V[m])
			for i := 0; i <= m; i++ {
				h := floats.Dot(w, V[i])
				H[i][m] = h
				floats.AddScaled(w, -h, V[i])
			}
			hnext := floats.Norm(w, 2)
			for i := 0; i < m; i++ {
				t := cs[i]*H[i][m] + sn[i]*H[i+1][m]
				H[i+1][m] = -sn[i]*H[i][m] + cs[i]*H[i+1][m]
				H[i][m] = t
			}
			denom := math.Hypot(H[m][m], hnext)
			if denom == 0 {
				return errSingular
			}
			cs[m], sn[m] = H[m][m]/denom, hnext/denom
			H[m][m] = denom
			g[m+1] = -sn[m] * g[m]
			g[m] = cs[m] * g[m]
			m++
			if math.Abs(g[m]) <= tol*bnorm || hnext == 0 {
				break
			}
			floats.ScaleTo(V[m], 1/hnext, w)
		}

		for i := m - 1; i >= 0; i-- {
			s := g[i]
			for j := i + 1; j < m; j++ {
				s -= H[i][j] * y[j]
			}
			y[i] = s / H[i][i]
		}
		for i := 0; i < m; i++ {
			floats.AddScaled(x, y[i], V[i])
		}
	}

	apply(w, x)
	floats.SubTo(r, b, w)
	if floats.Norm(r, 2) > 1e-6*bnorm || !finite(x) {
		return errNoConvergence
	}
	return nil
}
