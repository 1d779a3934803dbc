package opt

import "log/slog"

// base holds the iterate, residual and termination state every candidate owns.
type base struct {
	name   string
	prob   *Problem
	params []float64
	opts   Options

	u  []float64
	fu []float64

	retcode ReturnCode
	done    bool
	stats   Stats
	stall   *StallTracker
	deriv   *derivatives
	evalErr error // first residual evaluation failure since the last reset
}

func (b *base) setup(prob *Problem, spec Spec, opts Options) error {
	if err := prob.checkShape(prob.U0, prob.P); err != nil {
		return err
	}
	deriv, err := newDerivatives(prob, spec)
	if err != nil {
		return err
	}

	b.name = spec.Name()
	b.prob = prob
	b.params = prob.P
	b.opts = opts.withDefaults()
	b.deriv = deriv
	b.stall = NewStallTracker(b.opts.Stall)
	b.u = append([]float64(nil), prob.U0...)
	b.fu = make([]float64, len(b.u))
	b.evalF(b.fu, b.u)
	return nil
}

func (b *base) evalF(dst, u []float64) {
	if err := b.prob.Eval(dst, u, b.params); err != nil && b.evalErr == nil {
		b.evalErr = err
	}
	b.stats.NF++
}

func (b *base) converged() bool {
	return InfNorm(b.fu) <= b.opts.AbsTol
}

// preStep reports whether Step must return without iterating. A starting
// point that already satisfies the tolerance terminates with Success here.
func (b *base) preStep() bool {
	if b.done {
		return true
	}
	if b.evalErr != nil {
		b.fail(Unstable, b.evalErr)
		return true
	}
	if !finite(b.fu) {
		b.terminate(Unstable)
		return true
	}
	if b.converged() {
		b.terminate(Success)
		return true
	}
	return false
}

// postStep counts the step, emits a trace event and applies the stopping tests.
func (b *base) postStep() {
	b.stats.NSteps++
	norm := L2Norm(b.fu)
	if b.opts.Trace != nil {
		b.opts.Trace(TraceEvent{Method: b.name, Iteration: b.stats.NSteps, ResidualNorm: norm})
	}

	switch {
	case !finite(b.u) || !finite(b.fu):
		b.terminate(Unstable)
	case b.converged():
		b.terminate(Success)
	case b.stats.NSteps >= b.opts.MaxIters:
		b.terminate(MaxIters)
	case b.stall.Update(norm):
		b.terminate(Stalled)
	}
}

// terminate records code. A failed residual evaluation always ends as Unstable.
func (b *base) terminate(code ReturnCode) {
	if b.evalErr != nil {
		code = Unstable
	}
	b.retcode = code
	b.done = true
	slog.Debug("Candidate terminated",
		"method", b.name,
		"retcode", code,
		"steps", b.stats.NSteps,
		"residual", L2Norm(b.fu),
	)
}

func (b *base) fail(code ReturnCode, err error) {
	slog.Debug("Candidate failed", "method", b.name, "error", err)
	b.terminate(code)
}

func (b *base) reinit(u0 []float64, opts ...ReinitOption) error {
	if err := CheckReinit(b.prob, u0, opts...); err != nil {
		return err
	}
	s := newReinitSettings(opts)
	if u0 == nil {
		u0 = b.prob.U0
	}
	if s.setParams {
		b.params = s.params
	}

	copy(b.u, u0)
	b.stats = Stats{}
	b.retcode = Default
	b.done = false
	b.evalErr = nil
	b.stall.Reset()
	b.evalF(b.fu, b.u)
	return nil
}

func (b *base) solution() *Solution {
	return &Solution{
		U:         append([]float64(nil), b.u...),
		Resid:     append([]float64(nil), b.fu...),
		Retcode:   b.retcode,
		Stats:     b.stats,
		Alg:       b.name,
		Candidate: -1,
	}
}

func (b *base) Name() string                       { return b.name }
func (b *base) Terminated() bool                   { return b.done }
func (b *base) ResidualNorm(norm NormFunc) float64 { return norm(b.fu) }
func (b *base) Retcode() ReturnCode                { return b.retcode }
func (b *base) Stats() Stats                       { return b.stats }

// U returns a copy of the current iterate.
func (b *base) U() []float64 { return append([]float64(nil), b.u...) }

// Resid returns a copy of the current residual.
func (b *base) Resid() []float64 { return append([]float64(nil), b.fu...) }
