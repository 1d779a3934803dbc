package poly

import "github.com/cwbudde/polyroot/internal/opt"

var (
	newtonRaphson = opt.Spec{Method: opt.MethodNewtonRaphson}
	newtonLS      = opt.Spec{Method: opt.MethodNewtonRaphson, LineSearch: opt.LineSearchBacktracking}
	trustDefault  = opt.Spec{Method: opt.MethodTrustRegion, Radius: opt.RadiusDefault}
	trustBastin   = opt.Spec{Method: opt.MethodTrustRegion, Radius: opt.RadiusBastin}
	trustNLsolve  = opt.Spec{Method: opt.MethodTrustRegion, Radius: opt.RadiusNLsolve}
	trustFan      = opt.Spec{Method: opt.MethodTrustRegion, Radius: opt.RadiusFan}
	broyden       = opt.Spec{Method: opt.MethodBroyden}
	klement       = opt.Spec{Method: opt.MethodKlement}
	globalSearch  = opt.Spec{Method: opt.MethodGlobalSearch}
)

// Build returns the ordered candidate list for prob under cfg on the given
// driver path. It has no side effects; equal inputs give equal lists.
//
// The secant candidates are only offered to the stateless FastShortcut path
// and only when the problem uses the out-of-place convention. Otherwise they
// are left out and the list is shorter. PathFixed always yields the four
// FastShortcut entries SolveFixed tries.
func Build(prob *opt.Problem, cfg Config, path Path) []opt.Spec {
	var specs []opt.Spec
	switch {
	case path == PathFixed:
		specs = fastShortcut(nil)
	case cfg.Preset == Robust:
		specs = robust()
	case cfg.Preset == Exhaustive:
		specs = append(robust(), globalSearch)
	case cfg.Preset == FastShortcut:
		var lead []opt.Spec
		if path == PathStateless && prob != nil && !prob.InPlace() {
			lead = []opt.Spec{broyden, klement}
		}
		specs = fastShortcut(lead)
	default:
		return nil
	}

	for i := range specs {
		specs[i] = cfg.apply(specs[i])
	}
	return specs
}

func robust() []opt.Spec {
	return []opt.Spec{trustDefault, trustBastin, newtonLS, trustNLsolve, trustFan}
}

func fastShortcut(lead []opt.Spec) []opt.Spec {
	return append(lead, newtonRaphson, newtonLS, trustDefault, trustBastin)
}

// fixedSpecs is the constant-size counterpart of Build for PathFixed.
func fixedSpecs(cfg Config) [4]opt.Spec {
	return [4]opt.Spec{
		cfg.apply(newtonRaphson),
		cfg.apply(newtonLS),
		cfg.apply(trustDefault),
		cfg.apply(trustBastin),
	}
}

// Initializer creates one steppable candidate. opt.Spec implements it.
type Initializer interface {
	Name() string
	Init(prob *opt.Problem, opts opt.Options) (opt.Solver, error)
}

func initializers(specs []opt.Spec) []Initializer {
	out := make([]Initializer, len(specs))
	for i, s := range specs {
		out[i] = s
	}
	return out
}
