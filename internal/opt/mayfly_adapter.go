package opt

import (
	"errors"
	"math/rand"

	"github.com/cwbudde/mayfly"
	"gonum.org/v1/gonum/floats"
)

// minMayflyPop is the smallest population mayfly v0.1.0 accepts.
const minMayflyPop = 20

var errGlobalSearch = errors.New("global search did not reach the tolerance")

// globalSearch wraps the external Mayfly library as a derivative-free
// candidate minimizing ½‖F‖² inside a box around the starting point.
// A single Step runs the whole search.
type globalSearch struct {
	base
	settings GlobalSettings
	start    []float64
	trial    []float64
}

func newGlobalSearch(prob *Problem, spec Spec, opts Options) (*globalSearch, error) {
	s := &globalSearch{settings: spec.Global}
	if err := s.setup(prob, spec, opts); err != nil {
		return nil, err
	}
	def := DefaultGlobalSettings()
	if s.settings.Radius <= 0 {
		s.settings.Radius = def.Radius
	}
	if s.settings.MaxIters <= 0 {
		s.settings.MaxIters = def.MaxIters
	}
	if s.settings.PopSize < minMayflyPop {
		s.settings.PopSize = minMayflyPop
	}
	s.start = append([]float64(nil), s.u...)
	s.trial = make([]float64, len(s.u))
	return s, nil
}

func (s *globalSearch) Step() {
	if s.preStep() {
		return
	}

	objective := func(x []float64) float64 {
		s.evalF(s.trial, x)
		return 0.5 * floats.Dot(s.trial, s.trial)
	}

	// Create config for external Mayfly library
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = objective
	config.ProblemSize = len(s.u)
	config.MaxIterations = s.settings.MaxIters
	config.NPop = s.settings.PopSize

	// The library uses scalar bounds, so the box spans every coordinate.
	config.LowerBound = floats.Min(s.start) - s.settings.Radius
	config.UpperBound = floats.Max(s.start) + s.settings.Radius
	config.Rand = rand.New(rand.NewSource(s.settings.Seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		s.fail(ConvergenceFailure, err)
		return
	}

	copy(s.u, result.GlobalBest.Position)
	s.evalF(s.fu, s.u)
	s.postStep()
	if !s.done {
		s.fail(ConvergenceFailure, errGlobalSearch)
	}
}

func (s *globalSearch) Solve() *Solution { return drive(s) }

func (s *globalSearch) Reinit(u0 []float64, opts ...ReinitOption) error {
	if err := s.reinit(u0, opts...); err != nil {
		return err
	}
	copy(s.start, s.u)
	return nil
}
