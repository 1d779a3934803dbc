package opt

// TraceEvent is emitted once per accepted or rejected iteration.
type TraceEvent struct {
	Method       string
	Iteration    int
	ResidualNorm float64
}

// TraceFunc receives per-iteration progress. It must not retain the event.
type TraceFunc func(TraceEvent)

// Options are forwarded unchanged to every candidate.
type Options struct {
	// AbsTol is the success threshold on the infinity norm of the residual.
	AbsTol float64

	// MaxIters bounds the number of steps a single candidate may take.
	MaxIters int

	// Stall configures early termination when the residual stops improving.
	Stall StallConfig

	// Trace, when set, is called after every step.
	Trace TraceFunc
}

// DefaultOptions returns the tolerances used when the caller sets none.
func DefaultOptions() Options {
	return Options{
		AbsTol:   1e-10,
		MaxIters: 1000,
		Stall:    DefaultStallConfig(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.AbsTol <= 0 {
		o.AbsTol = def.AbsTol
	}
	if o.MaxIters <= 0 {
		o.MaxIters = def.MaxIters
	}
	return o
}
