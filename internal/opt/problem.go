package opt

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNilFunction       = errors.New("problem has no residual function")
	ErrEmptyStart        = errors.New("problem has an empty starting point")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrNoJacobian        = errors.New("analytic derivative requested but problem has no Jacobian")
)

// InPlaceFunc writes F(u, p) into dst. dst may be reused between calls.
type InPlaceFunc func(dst, u, p []float64)

// OutOfPlaceFunc returns a freshly allocated F(u, p).
type OutOfPlaceFunc func(u, p []float64) []float64

// JacobianFunc writes dF/du at (u, p) into the n×n matrix dst.
type JacobianFunc func(dst *mat.Dense, u, p []float64)

// Problem is a square nonlinear system F(u, p) = 0.
// Exactly one of F (in-place convention) or G (out-of-place convention)
// must be set.
type Problem struct {
	F  InPlaceFunc
	G  OutOfPlaceFunc
	J  JacobianFunc
	U0 []float64
	P  []float64
}

// NewProblem creates a problem using the in-place calling convention.
func NewProblem(f InPlaceFunc, u0, p []float64) *Problem {
	return &Problem{F: f, U0: u0, P: p}
}

// NewOutOfPlaceProblem creates a problem using the out-of-place calling convention.
func NewOutOfPlaceProblem(g OutOfPlaceFunc, u0, p []float64) *Problem {
	return &Problem{G: g, U0: u0, P: p}
}

// WithJacobian returns a copy of the problem carrying an analytic Jacobian.
func (prob *Problem) WithJacobian(j JacobianFunc) *Problem {
	cp := *prob
	cp.J = j
	return &cp
}

// InPlace reports whether intermediate residual buffers may be mutated in place.
func (prob *Problem) InPlace() bool {
	return prob.F != nil
}

// Dim returns the number of unknowns.
func (prob *Problem) Dim() int {
	return len(prob.U0)
}

// Validate checks the problem definition without evaluating it.
func (prob *Problem) Validate() error {
	if prob == nil || (prob.F == nil && prob.G == nil) {
		return ErrNilFunction
	}
	if len(prob.U0) == 0 {
		return ErrEmptyStart
	}
	return nil
}

// Eval writes F(u, p) into dst, whichever convention the problem uses.
// An out-of-place residual of the wrong length fills dst with NaN and
// returns ErrDimensionMismatch.
func (prob *Problem) Eval(dst, u, p []float64) error {
	if prob.F != nil {
		prob.F(dst, u, p)
		return nil
	}
	out := prob.G(u, p)
	if len(out) != len(dst) {
		for i := range dst {
			dst[i] = math.NaN()
		}
		return fmt.Errorf("residual has %d entries for %d unknowns: %w", len(out), len(dst), ErrDimensionMismatch)
	}
	copy(dst, out)
	return nil
}

// checkShape evaluates F once at u and verifies the residual has len(u) entries.
func (prob *Problem) checkShape(u, p []float64) error {
	if prob.G == nil {
		return nil
	}
	if out := prob.G(u, p); len(out) != len(u) {
		return fmt.Errorf("residual has %d entries for %d unknowns: %w", len(out), len(u), ErrDimensionMismatch)
	}
	return nil
}
