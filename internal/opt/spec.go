package opt

import (
	"fmt"
	"strings"
)

// Method is the iterative strategy a candidate runs.
type Method int

const (
	MethodNewtonRaphson Method = iota
	MethodTrustRegion
	MethodBroyden
	MethodKlement
	MethodGlobalSearch
)

func (m Method) String() string {
	switch m {
	case MethodNewtonRaphson:
		return "NewtonRaphson"
	case MethodTrustRegion:
		return "TrustRegion"
	case MethodBroyden:
		return "Broyden"
	case MethodKlement:
		return "Klement"
	case MethodGlobalSearch:
		return "GlobalSearch"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// LineSearch globalizes Newton-type steps.
type LineSearch int

const (
	LineSearchNone LineSearch = iota
	LineSearchBacktracking
)

// RadiusUpdate selects the trust-region radius heuristic.
type RadiusUpdate int

const (
	RadiusDefault RadiusUpdate = iota
	RadiusNLsolve
	RadiusBastin
	RadiusFan
)

func (r RadiusUpdate) String() string {
	switch r {
	case RadiusDefault:
		return "Default"
	case RadiusNLsolve:
		return "NLsolve"
	case RadiusBastin:
		return "Bastin"
	case RadiusFan:
		return "Fan"
	}
	return fmt.Sprintf("RadiusUpdate(%d)", int(r))
}

// Derivative selects how Jacobians and Jacobian-vector products are obtained.
type Derivative int

const (
	DiffAuto Derivative = iota
	DiffForward
	DiffCentral
	DiffAnalytic
)

var derivativeNames = []string{"auto", "forward", "central", "analytic"}

func (d Derivative) String() string {
	if int(d) < len(derivativeNames) && d >= 0 {
		return derivativeNames[d]
	}
	return fmt.Sprintf("Derivative(%d)", int(d))
}

// ParseDerivative maps a config name to a Derivative.
func ParseDerivative(s string) (Derivative, error) {
	i, err := parseEnum("derivative", s, derivativeNames)
	return Derivative(i), err
}

// LinearSolver selects the linear solve inside Newton-type steps.
type LinearSolver int

const (
	LinsolveAuto LinearSolver = iota
	LinsolveLU
	LinsolveQR
	LinsolveNormalCholesky
	LinsolveGMRES
)

var linsolveNames = []string{"auto", "lu", "qr", "normal-cholesky", "gmres"}

func (l LinearSolver) String() string {
	if int(l) < len(linsolveNames) && l >= 0 {
		return linsolveNames[l]
	}
	return fmt.Sprintf("LinearSolver(%d)", int(l))
}

// ParseLinearSolver maps a config name to a LinearSolver.
func ParseLinearSolver(s string) (LinearSolver, error) {
	i, err := parseEnum("linear solver", s, linsolveNames)
	return LinearSolver(i), err
}

// Preconditioner scales the linear system before solving.
type Preconditioner int

const (
	PrecondNone Preconditioner = iota
	PrecondJacobi
)

var precondNames = []string{"none", "jacobi"}

func (p Preconditioner) String() string {
	if int(p) < len(precondNames) && p >= 0 {
		return precondNames[p]
	}
	return fmt.Sprintf("Preconditioner(%d)", int(p))
}

// ParsePreconditioner maps a config name to a Preconditioner.
func ParsePreconditioner(s string) (Preconditioner, error) {
	i, err := parseEnum("preconditioner", s, precondNames)
	return Preconditioner(i), err
}

// JacobianMode is the concrete-Jacobian tri-state.
type JacobianMode int

const (
	// JacobianAuto materializes J unless the linear solver is GMRES.
	JacobianAuto JacobianMode = iota
	JacobianConcrete
	JacobianMatrixFree
)

var jacobianNames = []string{"auto", "concrete", "matrix-free"}

func (j JacobianMode) String() string {
	if int(j) < len(jacobianNames) && j >= 0 {
		return jacobianNames[j]
	}
	return fmt.Sprintf("JacobianMode(%d)", int(j))
}

// ParseJacobianMode maps a config name to a JacobianMode.
func ParseJacobianMode(s string) (JacobianMode, error) {
	i, err := parseEnum("jacobian mode", s, jacobianNames)
	return JacobianMode(i), err
}

func parseEnum(kind, s string, names []string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	for i, name := range names {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q (want one of %s)", kind, s, strings.Join(names, ", "))
}

// GlobalSettings configures the derivative-free GlobalSearch candidate.
type GlobalSettings struct {
	Radius   float64 `json:"radius" yaml:"radius"`
	MaxIters int     `json:"maxIters" yaml:"max_iters"`
	PopSize  int     `json:"popSize" yaml:"pop_size"`
	Seed     int64   `json:"seed" yaml:"seed"`
}

// DefaultGlobalSettings returns the search box and budget used by GlobalSearch.
func DefaultGlobalSettings() GlobalSettings {
	return GlobalSettings{
		Radius:   10,
		MaxIters: 200,
		PopSize:  30,
		Seed:     42,
	}
}

// Spec is one candidate configuration in a registry list.
type Spec struct {
	Method     Method
	LineSearch LineSearch
	Radius     RadiusUpdate
	Derivative Derivative
	Linsolve   LinearSolver
	Precond    Preconditioner
	Jacobian   JacobianMode
	Global     GlobalSettings
}

// Name identifies the method and its variant.
func (s Spec) Name() string {
	switch s.Method {
	case MethodNewtonRaphson:
		if s.LineSearch == LineSearchBacktracking {
			return "NewtonRaphson(Backtracking)"
		}
		return "NewtonRaphson"
	case MethodTrustRegion:
		return "TrustRegion(" + s.Radius.String() + ")"
	}
	return s.Method.String()
}

// Init builds a steppable solver for prob. Options are forwarded verbatim.
func (s Spec) Init(prob *Problem, opts Options) (Solver, error) {
	if err := prob.Validate(); err != nil {
		return nil, err
	}
	switch s.Method {
	case MethodNewtonRaphson:
		return newNewton(prob, s, opts)
	case MethodTrustRegion:
		return newTrustRegion(prob, s, opts)
	case MethodBroyden:
		return newBroyden(prob, s, opts)
	case MethodKlement:
		return newKlement(prob, s, opts)
	case MethodGlobalSearch:
		return newGlobalSearch(prob, s, opts)
	}
	return nil, fmt.Errorf("unsupported method %v", s.Method)
}
