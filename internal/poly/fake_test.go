package poly

import (
	"errors"

	"github.com/cwbudde/polyroot/internal/opt"
)

// fakeSolver is a scripted candidate: it terminates after a fixed number of
// steps with a fixed return code and residual.
type fakeSolver struct {
	name  string
	steps int
	code  opt.ReturnCode
	resid []float64
	u     []float64

	taken   int
	solves  int
	reinits int
}

func (f *fakeSolver) Name() string     { return f.name }
func (f *fakeSolver) Terminated() bool { return f.taken >= f.steps }

func (f *fakeSolver) Step() {
	if !f.Terminated() {
		f.taken++
	}
}

func (f *fakeSolver) Solve() *opt.Solution {
	f.solves++
	for !f.Terminated() {
		f.Step()
	}
	return &opt.Solution{
		U:         f.U(),
		Resid:     f.Resid(),
		Retcode:   f.Retcode(),
		Stats:     f.Stats(),
		Alg:       f.name,
		Candidate: -1,
	}
}

func (f *fakeSolver) Reinit(u0 []float64, _ ...opt.ReinitOption) error {
	f.reinits++
	f.taken = 0
	if u0 != nil {
		f.u = append([]float64(nil), u0...)
	}
	return nil
}

func (f *fakeSolver) ResidualNorm(norm opt.NormFunc) float64 { return norm(f.resid) }
func (f *fakeSolver) U() []float64                           { return append([]float64(nil), f.u...) }
func (f *fakeSolver) Resid() []float64                       { return append([]float64(nil), f.resid...) }
func (f *fakeSolver) Stats() opt.Stats                       { return opt.Stats{NSteps: f.taken, NF: f.taken + 1} }

func (f *fakeSolver) Retcode() opt.ReturnCode {
	if !f.Terminated() {
		return opt.Default
	}
	return f.code
}

type fakeSpec struct {
	solver *fakeSolver
	err    error
}

func (s fakeSpec) Name() string { return s.solver.name }

func (s fakeSpec) Init(*opt.Problem, opt.Options) (opt.Solver, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.solver, nil
}

var errFakeInit = errors.New("fake init failure")

// fakes builds one scripted candidate per return code. Candidate i sits at
// u = [i] with residual norms taken from norms.
func fakes(codes []opt.ReturnCode, norms []float64) ([]*fakeSolver, []Initializer) {
	solvers := make([]*fakeSolver, len(codes))
	inits := make([]Initializer, len(codes))
	for i, code := range codes {
		solvers[i] = &fakeSolver{
			name:  "fake" + string(rune('A'+i)),
			steps: 3 + i,
			code:  code,
			resid: []float64{norms[i]},
			u:     []float64{float64(i)},
		}
		inits[i] = fakeSpec{solver: solvers[i]}
	}
	return solvers, inits
}

var fakeProblem = opt.NewProblem(func(dst, u, _ []float64) { copy(dst, u) }, []float64{0}, nil)
