package poly

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/polyroot/internal/opt"
)

func TestSolveFromFirstSuccess(t *testing.T) {
	solvers, inits := fakes(
		[]opt.ReturnCode{opt.MaxIters, opt.Stalled, opt.ConvergenceFailure, opt.Success},
		[]float64{1, 2, 3, 0},
	)
	before := testutil.ToFloat64(solves.WithLabelValues("FakeStateless", "stateless", "success"))

	sol, err := SolveFrom(fakeProblem, "FakeStateless", inits)
	require.NoError(t, err)

	assert.Equal(t, opt.Success, sol.Retcode)
	assert.Equal(t, 3, sol.Candidate)
	assert.Equal(t, "FakeStateless", sol.Alg)
	assert.Equal(t, "fakeD", sol.Original.Alg)
	assert.Equal(t, solvers[3].Stats(), sol.Stats)
	assert.Equal(t, 1.0, testutil.ToFloat64(solves.WithLabelValues("FakeStateless", "stateless", "success"))-before)
}

func TestSolveFromKeepsWinnerRetcode(t *testing.T) {
	_, inits := fakes(
		[]opt.ReturnCode{opt.MaxIters, opt.Stalled, opt.Unstable},
		[]float64{0.4, 0.1, 0.1},
	)

	sol, err := SolveFrom(fakeProblem, "FakeStateless", inits)
	require.NoError(t, err)

	assert.Equal(t, opt.Stalled, sol.Retcode, "stateless total failure keeps the candidate's own code")
	assert.Equal(t, 1, sol.Candidate)
	assert.Equal(t, []float64{1}, sol.U)
	assert.Equal(t, opt.Stalled, sol.Original.Retcode)
}

func TestSolveFromStopsAtFirstSuccess(t *testing.T) {
	solvers, inits := fakes(
		[]opt.ReturnCode{opt.Success, opt.Success},
		[]float64{0, 0},
	)

	_, err := SolveFrom(fakeProblem, "FakeStateless", inits)
	require.NoError(t, err)

	assert.Equal(t, 1, solvers[0].solves)
	assert.Zero(t, solvers[1].solves)
}

func TestSolveFromInitError(t *testing.T) {
	_, inits := fakes([]opt.ReturnCode{opt.Stalled}, []float64{1})
	inits = append(inits, fakeSpec{solver: &fakeSolver{name: "broken"}, err: errFakeInit})

	_, err := SolveFrom(fakeProblem, "FakeStateless", inits)
	assert.True(t, errors.Is(err, errFakeInit))

	_, err = SolveFrom(fakeProblem, "FakeStateless", nil)
	assert.Error(t, err)
}

func TestStatefulAndStatelessAgree(t *testing.T) {
	codes := []opt.ReturnCode{opt.Stalled, opt.MaxIters, opt.Unstable, opt.Success}
	norms := []float64{1, 2, 3, 0}

	cache, _ := newFakeCache(t, codes, norms)
	stateful := cache.Solve()

	_, inits := fakes(codes, norms)
	stateless, err := SolveFrom(fakeProblem, "FakePolyalg", inits)
	require.NoError(t, err)

	assert.Equal(t, stateful, stateless)
}

func TestSolveFixedRejectsOutOfPlace(t *testing.T) {
	_, err := SolveFixed(outOfPlaceProblem, FastShortcutConfig())
	assert.True(t, errors.Is(err, ErrNotInPlace))

	_, err = SolveFixed(&opt.Problem{U0: []float64{1}}, FastShortcutConfig())
	assert.True(t, errors.Is(err, opt.ErrNilFunction))
}

func TestSolveFixedIgnoresPreset(t *testing.T) {
	prob := opt.NewProblem(func(dst, u, _ []float64) { dst[0] = u[0] - 3 }, []float64{0}, nil)

	sol, err := SolveFixed(prob, RobustConfig())
	require.NoError(t, err)

	assert.Equal(t, FastShortcutConfig().Name(), sol.Alg)
	assert.Equal(t, "NewtonRaphson", sol.Original.Alg)
	assert.Equal(t, 0, sol.Candidate)
}

func TestObserverSeesEveryAttempt(t *testing.T) {
	_, inits := fakes(
		[]opt.ReturnCode{opt.MaxIters, opt.Stalled, opt.Success},
		[]float64{1, 2, 0},
	)
	var seen []int
	var methods []string
	observer := WithObserver(func(i int, sol *opt.Solution) {
		seen = append(seen, i)
		methods = append(methods, sol.Alg)
	})

	_, err := SolveFrom(fakeProblem, "FakeStateless", inits, observer)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, []string{"fakeA", "fakeB", "fakeC"}, methods)
}
