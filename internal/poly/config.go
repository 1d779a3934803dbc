package poly

import (
	"fmt"
	"strings"

	"github.com/cwbudde/polyroot/internal/opt"
)

// Preset selects which candidates a polyalgorithm tries and in what order.
type Preset int

const (
	// Robust tries trust-region variants and a globalized Newton method.
	Robust Preset = iota
	// FastShortcut starts with cheap Newton steps and only then falls back
	// to trust regions.
	FastShortcut
	// Exhaustive is Robust followed by a derivative-free global search.
	Exhaustive
)

var presetNames = map[Preset]string{
	Robust:       "robust",
	FastShortcut: "fast",
	Exhaustive:   "exhaustive",
}

func (p Preset) String() string {
	if s, ok := presetNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Preset(%d)", int(p))
}

// ParsePreset maps a CLI or config name to a Preset.
func ParsePreset(s string) (Preset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "robust":
		return Robust, nil
	case "fast", "fast-shortcut", "fastshortcut":
		return FastShortcut, nil
	case "exhaustive":
		return Exhaustive, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownPreset)
}

// Path selects which driver a registry list is built for.
type Path int

const (
	// PathCache is the persistent Cache.
	PathCache Path = iota
	// PathStateless is the build-and-discard Solve.
	PathStateless
	// PathFixed is SolveFixed.
	PathFixed
)

var pathNames = map[Path]string{
	PathCache:     "cache",
	PathStateless: "stateless",
	PathFixed:     "fixed",
}

func (p Path) String() string {
	if s, ok := pathNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Path(%d)", int(p))
}

// ParsePath maps a CLI or config name to a Path.
func ParsePath(s string) (Path, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PathCache, nil
	}
	for p, name := range pathNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown path %q (want cache, stateless or fixed)", s)
}

// Config is the algorithm configuration shared by every candidate of a
// polyalgorithm. It is a plain value and is never modified by a solve.
type Config struct {
	Preset     Preset
	Derivative opt.Derivative
	Linsolve   opt.LinearSolver
	Precond    opt.Preconditioner
	Jacobian   opt.JacobianMode
	Global     opt.GlobalSettings
}

// RobustConfig returns the Robust preset with automatic settings.
func RobustConfig() Config {
	return Config{Preset: Robust, Global: opt.DefaultGlobalSettings()}
}

// FastShortcutConfig returns the FastShortcut preset with automatic settings.
func FastShortcutConfig() Config {
	return Config{Preset: FastShortcut, Global: opt.DefaultGlobalSettings()}
}

// ExhaustiveConfig returns the Exhaustive preset with automatic settings.
func ExhaustiveConfig() Config {
	return Config{Preset: Exhaustive, Global: opt.DefaultGlobalSettings()}
}

// Validate rejects presets Build does not know.
func (c Config) Validate() error {
	if _, ok := presetNames[c.Preset]; !ok {
		return fmt.Errorf("%v: %w", c.Preset, ErrUnknownPreset)
	}
	return nil
}

// Name is the algorithm identity reported by polyalgorithm solutions.
func (c Config) Name() string {
	switch c.Preset {
	case Robust:
		return "RobustMultiNewton"
	case FastShortcut:
		return "FastShortcutPolyalg"
	case Exhaustive:
		return "ExhaustivePolyalg"
	}
	return c.Preset.String()
}

// apply copies the config-derived settings into a candidate spec.
func (c Config) apply(s opt.Spec) opt.Spec {
	s.Derivative = c.Derivative
	s.Linsolve = c.Linsolve
	s.Precond = c.Precond
	s.Jacobian = c.Jacobian
	s.Global = c.Global
	return s
}
