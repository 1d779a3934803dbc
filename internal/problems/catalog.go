package problems

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/polyroot/internal/opt"
	"gonum.org/v1/gonum/mat"
)

var ErrUnknownProblem = errors.New("unknown problem")

// System is a named benchmark system F(u, p) = 0
type System struct {
	Name        string
	Description string
	F           opt.InPlaceFunc
	J           opt.JacobianFunc // optional analytic Jacobian
	U0          []float64        // standard starting point
	P           []float64        // default parameters
	Root        []float64        // known root, nil if none exists
}

// Dim returns the number of unknowns
func (s System) Dim() int { return len(s.U0) }

// Solvable reports whether the system has a known real root
func (s System) Solvable() bool { return s.Root != nil }

// InPlace builds an in-place problem. Nil u0 or p fall back to the defaults.
func (s System) InPlace(u0, p []float64) *opt.Problem {
	prob := opt.NewProblem(s.F, s.start(u0), s.params(p))
	if s.J != nil {
		prob = prob.WithJacobian(s.J)
	}
	return prob
}

// OutOfPlace builds the same system using the out-of-place convention
func (s System) OutOfPlace(u0, p []float64) *opt.Problem {
	f := s.F
	g := func(u, p []float64) []float64 {
		out := make([]float64, len(u))
		f(out, u, p)
		return out
	}
	prob := opt.NewOutOfPlaceProblem(g, s.start(u0), s.params(p))
	if s.J != nil {
		prob = prob.WithJacobian(s.J)
	}
	return prob
}

func (s System) start(u0 []float64) []float64 {
	if u0 == nil {
		u0 = s.U0
	}
	return append([]float64(nil), u0...)
}

func (s System) params(p []float64) []float64 {
	if p == nil {
		p = s.P
	}
	return append([]float64(nil), p...)
}

var catalog = map[string]System{}

func register(s System) {
	if _, dup := catalog[s.Name]; dup {
		panic("problems: duplicate system " + s.Name)
	}
	catalog[s.Name] = s
}

// Get looks up a system by name
func Get(name string) (System, error) {
	s, ok := catalog[name]
	if !ok {
		return System{}, fmt.Errorf("%q: %w", name, ErrUnknownProblem)
	}
	return s, nil
}

// Names returns every registered system name in sorted order
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	register(System{
		Name:        "rosenbrock",
		Description: "Rosenbrock system: 1-x = 0, 10(y-x²) = 0",
		F: func(dst, u, _ []float64) {
			dst[0] = 1 - u[0]
			dst[1] = 10 * (u[1] - u[0]*u[0])
		},
		J: func(dst *mat.Dense, u, _ []float64) {
			dst.Set(0, 0, -1)
			dst.Set(0, 1, 0)
			dst.Set(1, 0, -20*u[0])
			dst.Set(1, 1, 10)
		},
		U0:   []float64{-1.2, 1},
		Root: []float64{1, 1},
	})

	register(System{
		Name:        "powell-singular",
		Description: "Powell's singular function; the Jacobian is singular at the root",
		F: func(dst, u, _ []float64) {
			dst[0] = u[0] + 10*u[1]
			dst[1] = math.Sqrt(5) * (u[2] - u[3])
			d := u[1] - 2*u[2]
			dst[2] = d * d
			e := u[0] - u[3]
			dst[3] = math.Sqrt(10) * e * e
		},
		U0:   []float64{3, -1, 0, 1},
		Root: []float64{0, 0, 0, 0},
	})

	register(System{
		Name:        "freudenstein-roth",
		Description: "Freudenstein-Roth; plain Newton tends to stall near a local minimum",
		F: func(dst, u, _ []float64) {
			x, y := u[0], u[1]
			dst[0] = -13 + x + ((5-y)*y-2)*y
			dst[1] = -29 + x + ((y+1)*y-14)*y
		},
		J: func(dst *mat.Dense, u, _ []float64) {
			y := u[1]
			dst.Set(0, 0, 1)
			dst.Set(0, 1, -3*y*y+10*y-2)
			dst.Set(1, 0, 1)
			dst.Set(1, 1, 3*y*y+2*y-14)
		},
		U0:   []float64{0.5, -2},
		Root: []float64{5, 4},
	})

	register(System{
		Name:        "brown-almost-linear",
		Description: "Brown's almost-linear system in 5 unknowns",
		F: func(dst, u, _ []float64) {
			n := len(u)
			sum, prod := 0.0, 1.0
			for _, v := range u {
				sum += v
				prod *= v
			}
			for i := 0; i < n-1; i++ {
				dst[i] = u[i] + sum - float64(n+1)
			}
			dst[n-1] = prod - 1
		},
		U0:   []float64{0.5, 0.5, 0.5, 0.5, 0.5},
		Root: []float64{1, 1, 1, 1, 1},
	})

	register(System{
		Name:        "trigonometric",
		Description: "Trigonometric system in 4 unknowns",
		F: func(dst, u, _ []float64) {
			n := float64(len(u))
			var sumCos float64
			for _, v := range u {
				sumCos += math.Cos(v)
			}
			for i, v := range u {
				dst[i] = n - sumCos + float64(i+1)*(1-math.Cos(v)) - math.Sin(v)
			}
		},
		U0:   []float64{0.25, 0.25, 0.25, 0.25},
		Root: []float64{0, 0, 0, 0},
	})

	register(System{
		Name:        "linear",
		Description: "Diagonally dominant linear system A u = p",
		F: func(dst, u, p []float64) {
			dst[0] = 4*u[0] - u[1] - p[0]
			dst[1] = -u[0] + 4*u[1] - u[2] - p[1]
			dst[2] = -u[1] + 4*u[2] - p[2]
		},
		J: func(dst *mat.Dense, _, _ []float64) {
			dst.Zero()
			dst.Set(0, 0, 4)
			dst.Set(0, 1, -1)
			dst.Set(1, 0, -1)
			dst.Set(1, 1, 4)
			dst.Set(1, 2, -1)
			dst.Set(2, 1, -1)
			dst.Set(2, 2, 4)
		},
		U0:   []float64{0, 0, 0},
		P:    []float64{3, 2, 3},
		Root: []float64{1, 1, 1},
	})

	register(System{
		Name:        "no-real-root",
		Description: "u² + p = 0 with p > 0; every candidate must fail",
		F: func(dst, u, p []float64) {
			dst[0] = u[0]*u[0] + p[0]
		},
		U0: []float64{0.5},
		P:  []float64{1},
	})
}
