package opt

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// linearF is A u - b with A = [[4,1],[1,3]], b = [1,2]; root (1/11, 7/11).
func linearF(dst, u, _ []float64) {
	dst[0] = 4*u[0] + u[1] - 1
	dst[1] = u[0] + 3*u[1] - 2
}

func linearJ(dst *mat.Dense, _, _ []float64) {
	dst.Set(0, 0, 4)
	dst.Set(0, 1, 1)
	dst.Set(1, 0, 1)
	dst.Set(1, 1, 3)
}

var linearRoot = []float64{1.0 / 11, 7.0 / 11}

// rosenbrockF is the Rosenbrock system; root (1, 1).
func rosenbrockF(dst, u, _ []float64) {
	dst[0] = 1 - u[0]
	dst[1] = 10 * (u[1] - u[0]*u[0])
}

func TestNewtonLinearSolvers(t *testing.T) {
	kinds := []LinearSolver{LinsolveAuto, LinsolveLU, LinsolveQR, LinsolveNormalCholesky, LinsolveGMRES}
	precs := []Preconditioner{PrecondNone, PrecondJacobi}

	for _, kind := range kinds {
		for _, prec := range precs {
			t.Run(fmt.Sprintf("%v/%v", kind, prec), func(t *testing.T) {
				prob := NewProblem(linearF, []float64{0, 0}, nil)
				spec := Spec{Method: MethodNewtonRaphson, Linsolve: kind, Precond: prec}

				s, err := spec.Init(prob, Options{})
				require.NoError(t, err)
				sol := s.Solve()

				require.Equal(t, Success, sol.Retcode)
				assert.InDeltaSlice(t, linearRoot, sol.U, 1e-9)
				assert.Positive(t, sol.Stats.NSolve)
			})
		}
	}
}

func TestNewtonMatrixFree(t *testing.T) {
	for _, d := range []Derivative{DiffForward, DiffCentral} {
		t.Run(d.String(), func(t *testing.T) {
			prob := NewProblem(linearF, []float64{0, 0}, nil)
			spec := Spec{Method: MethodNewtonRaphson, Derivative: d, Jacobian: JacobianMatrixFree}

			s, err := spec.Init(prob, Options{})
			require.NoError(t, err)
			sol := s.Solve()

			require.Equal(t, Success, sol.Retcode)
			assert.InDeltaSlice(t, linearRoot, sol.U, 1e-9)
			assert.Zero(t, sol.Stats.NJacs, "matrix-free mode should never form J")
			assert.Zero(t, sol.Stats.NFactors)
		})
	}
}

func TestNewtonMatrixFreeAnalyticJacobianOncePerStep(t *testing.T) {
	prob := NewProblem(rosenbrockF, []float64{-1.2, 1}, nil).WithJacobian(func(dst *mat.Dense, u, _ []float64) {
		dst.Set(0, 0, -1)
		dst.Set(0, 1, 0)
		dst.Set(1, 0, -20*u[0])
		dst.Set(1, 1, 10)
	})
	spec := Spec{Method: MethodNewtonRaphson, Derivative: DiffAnalytic, Linsolve: LinsolveGMRES, Jacobian: JacobianMatrixFree}

	s, err := spec.Init(prob, Options{})
	require.NoError(t, err)
	sol := s.Solve()

	require.Equal(t, Success, sol.Retcode)
	assert.InDeltaSlice(t, []float64{1, 1}, sol.U, 1e-8)
	assert.Equal(t, sol.Stats.NSteps, sol.Stats.NJacs, "one Jacobian per Newton step, shared by the Krylov products")
}

func TestNewtonAnalyticJacobian(t *testing.T) {
	prob := NewProblem(linearF, []float64{0, 0}, nil).WithJacobian(linearJ)
	s, err := Spec{Method: MethodNewtonRaphson}.Init(prob, Options{})
	require.NoError(t, err)

	sol := s.Solve()

	require.Equal(t, Success, sol.Retcode)
	assert.InDeltaSlice(t, linearRoot, sol.U, 1e-12)
	assert.Equal(t, 1, sol.Stats.NSteps, "exact Jacobian solves a linear system in one step")
	assert.Equal(t, 2, sol.Stats.NF, "one evaluation at u0 and one after the step")
}

func TestNewtonBacktrackingRosenbrock(t *testing.T) {
	prob := NewProblem(rosenbrockF, []float64{-1.2, 1}, nil)
	spec := Spec{Method: MethodNewtonRaphson, LineSearch: LineSearchBacktracking}
	s, err := spec.Init(prob, Options{})
	require.NoError(t, err)

	sol := s.Solve()

	assert.Equal(t, "NewtonRaphson(Backtracking)", s.Name())
	require.Equal(t, Success, sol.Retcode)
	assert.InDeltaSlice(t, []float64{1, 1}, sol.U, 1e-8)
}

func TestNewtonSingularJacobian(t *testing.T) {
	f := func(dst, u, _ []float64) {
		dst[0] = u[0] + u[1] - 1
		dst[1] = u[0] + u[1] + 1
	}
	j := func(dst *mat.Dense, _, _ []float64) {
		dst.Set(0, 0, 1)
		dst.Set(0, 1, 1)
		dst.Set(1, 0, 1)
		dst.Set(1, 1, 1)
	}
	prob := NewProblem(f, []float64{1, 0}, nil).WithJacobian(j)
	s, err := Spec{Method: MethodNewtonRaphson}.Init(prob, Options{})
	require.NoError(t, err)

	sol := s.Solve()

	assert.Equal(t, InternalLinearSolveFailure, sol.Retcode)
	assert.Equal(t, []float64{1, 0}, sol.U, "a failed linear solve must not move the iterate")
}

func TestTrustRegionRadiusSchemes(t *testing.T) {
	for _, r := range []RadiusUpdate{RadiusDefault, RadiusNLsolve, RadiusBastin, RadiusFan} {
		t.Run(r.String(), func(t *testing.T) {
			prob := NewProblem(rosenbrockF, []float64{-1.2, 1}, nil)
			spec := Spec{Method: MethodTrustRegion, Radius: r}
			s, err := spec.Init(prob, Options{})
			require.NoError(t, err)

			sol := s.Solve()

			assert.Equal(t, "TrustRegion("+r.String()+")", s.Name())
			require.Equal(t, Success, sol.Retcode)
			assert.InDeltaSlice(t, []float64{1, 1}, sol.U, 1e-8)
		})
	}
}

func TestTrustRegionNoRealRootStops(t *testing.T) {
	// x² + 1 has no real root; ½F² has a stationary point at 0.
	f := func(dst, u, _ []float64) { dst[0] = u[0]*u[0] + 1 }
	prob := NewProblem(f, []float64{0.5}, nil)
	s, err := Spec{Method: MethodTrustRegion}.Init(prob, Options{MaxIters: 200})
	require.NoError(t, err)

	sol := s.Solve()

	assert.False(t, sol.Successful())
	assert.True(t, s.Terminated())
	assert.InDelta(t, 1, sol.ResidualNorm(L2Norm), 1e-3)
}

func TestBroydenConverges(t *testing.T) {
	g := func(u, _ []float64) []float64 {
		return []float64{u[0]*u[0] + u[1]*u[1] - 2, u[0] - u[1]}
	}
	prob := NewOutOfPlaceProblem(g, []float64{1.2, 0.8}, nil)
	s, err := Spec{Method: MethodBroyden}.Init(prob, Options{})
	require.NoError(t, err)

	sol := s.Solve()

	require.Equal(t, Success, sol.Retcode)
	assert.InDeltaSlice(t, []float64{1, 1}, sol.U, 1e-8)
	assert.Equal(t, 1, sol.Stats.NJacs, "Broyden seeds from a single Jacobian")
}

func TestKlementConverges(t *testing.T) {
	g := func(u, _ []float64) []float64 { return []float64{u[0]*u[0] - 2} }
	prob := NewOutOfPlaceProblem(g, []float64{1.5}, nil)
	s, err := Spec{Method: MethodKlement}.Init(prob, Options{})
	require.NoError(t, err)

	sol := s.Solve()

	require.Equal(t, Success, sol.Retcode)
	assert.InDelta(t, math.Sqrt2, sol.U[0], 1e-9)
}

func TestImmediateSuccessAtRoot(t *testing.T) {
	prob := NewProblem(linearF, linearRoot, nil).WithJacobian(linearJ)
	s, err := Spec{Method: MethodTrustRegion}.Init(prob, Options{AbsTol: 1e-12})
	require.NoError(t, err)
	assert.False(t, s.Terminated(), "termination is only decided by Step")

	sol := s.Solve()

	assert.Equal(t, Success, sol.Retcode)
	assert.Zero(t, sol.Stats.NSteps)
}

func TestMaxIters(t *testing.T) {
	f := func(dst, u, _ []float64) { dst[0] = u[0]*u[0] + 1 }
	prob := NewProblem(f, []float64{0.5}, nil)
	opts := Options{MaxIters: 5, Stall: DisabledStallConfig()}
	s, err := Spec{Method: MethodNewtonRaphson}.Init(prob, opts)
	require.NoError(t, err)

	sol := s.Solve()

	assert.Equal(t, MaxIters, sol.Retcode)
	assert.Equal(t, 5, sol.Stats.NSteps)
}

func TestUnstableResidual(t *testing.T) {
	f := func(dst, u, _ []float64) { dst[0] = math.NaN() }
	prob := NewProblem(f, []float64{1}, nil)
	s, err := Spec{Method: MethodNewtonRaphson}.Init(prob, Options{})
	require.NoError(t, err)

	sol := s.Solve()

	assert.Equal(t, Unstable, sol.Retcode)
}

func TestOutOfPlaceResidualChangesLength(t *testing.T) {
	calls := 0
	g := func(u, _ []float64) []float64 {
		calls++
		if calls > 2 {
			return []float64{1}
		}
		return []float64{u[0] - 1, u[1] - 2}
	}
	prob := NewOutOfPlaceProblem(g, []float64{0, 0}, nil)

	for _, spec := range []Spec{
		{Method: MethodNewtonRaphson},
		{Method: MethodTrustRegion},
		{Method: MethodBroyden},
	} {
		t.Run(spec.Name(), func(t *testing.T) {
			calls = 0
			s, err := spec.Init(prob, Options{})
			require.NoError(t, err)

			sol := s.Solve()

			assert.Equal(t, Unstable, sol.Retcode)
		})
	}
}

func TestEvalLengthMismatch(t *testing.T) {
	prob := NewOutOfPlaceProblem(func(u, _ []float64) []float64 { return []float64{1, 2, 3} }, []float64{0, 0}, nil)
	dst := []float64{5, 5}

	err := prob.Eval(dst, prob.U0, nil)

	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.True(t, math.IsNaN(dst[0]) && math.IsNaN(dst[1]), "no stale entries survive")
}

func TestReinitResetsState(t *testing.T) {
	prob := NewProblem(linearF, []float64{0, 0}, nil)
	s, err := Spec{Method: MethodTrustRegion, Radius: RadiusBastin}.Init(prob, Options{})
	require.NoError(t, err)
	require.Equal(t, Success, s.Solve().Retcode)

	require.NoError(t, s.Reinit([]float64{5, -5}))

	assert.False(t, s.Terminated())
	assert.Equal(t, Default, s.Retcode())
	assert.Equal(t, []float64{5, -5}, s.U())
	assert.Equal(t, Stats{NF: 1}, s.Stats())
	assert.Equal(t, Success, s.Solve().Retcode)

	require.NoError(t, s.Reinit(nil))
	assert.Equal(t, []float64{0, 0}, s.U(), "nil start restores the problem's u0")
}

func TestReinitWithParams(t *testing.T) {
	f := func(dst, u, p []float64) { dst[0] = u[0] - p[0] }
	prob := NewProblem(f, []float64{0}, []float64{2})
	s, err := Spec{Method: MethodNewtonRaphson}.Init(prob, Options{})
	require.NoError(t, err)
	require.InDelta(t, 2, s.Solve().U[0], 1e-9)

	require.NoError(t, s.Reinit(nil, WithParams([]float64{5})))

	assert.InDelta(t, 5, s.Solve().U[0], 1e-9)
}

func TestReinitDimensionMismatch(t *testing.T) {
	prob := NewProblem(linearF, []float64{0, 0}, nil)
	for _, spec := range []Spec{
		{Method: MethodNewtonRaphson},
		{Method: MethodTrustRegion},
		{Method: MethodBroyden},
		{Method: MethodKlement},
		{Method: MethodGlobalSearch},
	} {
		t.Run(spec.Name(), func(t *testing.T) {
			s, err := spec.Init(prob, Options{})
			require.NoError(t, err)
			before := s.Stats()

			err = s.Reinit([]float64{1})
			assert.True(t, errors.Is(err, ErrDimensionMismatch))

			err = s.Reinit(nil, WithParams([]float64{1}))
			assert.True(t, errors.Is(err, ErrDimensionMismatch), "problem has no parameters")

			assert.Equal(t, before, s.Stats(), "rejected reinit must not evaluate F")
			assert.Equal(t, []float64{0, 0}, s.U())
		})
	}
}

func TestInitErrors(t *testing.T) {
	tests := []struct {
		name string
		prob *Problem
		spec Spec
		want error
	}{
		{"nil function", &Problem{U0: []float64{1}}, Spec{}, ErrNilFunction},
		{"empty start", NewProblem(linearF, nil, nil), Spec{}, ErrEmptyStart},
		{
			"out-of-place shape",
			NewOutOfPlaceProblem(func(u, _ []float64) []float64 { return []float64{1} }, []float64{0, 0}, nil),
			Spec{},
			ErrDimensionMismatch,
		},
		{"analytic without J", NewProblem(linearF, []float64{0, 0}, nil), Spec{Derivative: DiffAnalytic}, ErrNoJacobian},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.spec.Init(tt.prob, Options{})
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestTraceCallback(t *testing.T) {
	var events []TraceEvent
	opts := Options{Trace: func(ev TraceEvent) { events = append(events, ev) }}
	prob := NewProblem(rosenbrockF, []float64{-1.2, 1}, nil)
	s, err := Spec{Method: MethodNewtonRaphson}.Init(prob, opts)
	require.NoError(t, err)

	sol := s.Solve()

	require.Len(t, events, sol.Stats.NSteps)
	assert.Equal(t, "NewtonRaphson", events[0].Method)
	assert.Equal(t, 1, events[0].Iteration)
}

func TestReturnCodeText(t *testing.T) {
	for code := Default; code <= ShrinkThresholdExceeded; code++ {
		text, err := code.MarshalText()
		require.NoError(t, err)

		var back ReturnCode
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, code, back)
	}
	assert.True(t, Success.Successful())
	assert.False(t, MaxIters.Successful())
}
