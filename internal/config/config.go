package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/polyroot/internal/opt"
	"github.com/cwbudde/polyroot/internal/poly"
)

// Config is the file-level configuration for the CLI and server.
type Config struct {
	// Solver holds the polyalgorithm and candidate tolerances.
	Solver SolverConfig `json:"solver" yaml:"solver"`

	// Store locates persisted solve reports.
	Store StoreConfig `json:"store" yaml:"store"`

	// Server configures the HTTP job server.
	Server ServerConfig `json:"server" yaml:"server"`
}

type SolverConfig struct {
	Preset     string             `json:"preset" yaml:"preset"`
	Path       string             `json:"path" yaml:"path"`
	Derivative string             `json:"derivative" yaml:"derivative"`
	Linsolve   string             `json:"linsolve" yaml:"linsolve"`
	Precond    string             `json:"precond" yaml:"precond"`
	Jacobian   string             `json:"jacobian" yaml:"jacobian"`
	Norm       string             `json:"norm" yaml:"norm"`
	AbsTol     float64            `json:"abstol" yaml:"abstol"`
	MaxIters   int                `json:"max_iters" yaml:"max_iters"`
	Stall      StallConfig        `json:"stall" yaml:"stall"`
	Global     opt.GlobalSettings `json:"global" yaml:"global"`
}

type StallConfig struct {
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	Patience  int     `json:"patience" yaml:"patience"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

type StoreConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

type ServerConfig struct {
	Addr    string `json:"addr" yaml:"addr"`
	Workers int    `json:"workers" yaml:"workers"`
}

// Default returns a configuration with every field set.
func Default() Config {
	stall := opt.DefaultStallConfig()
	opts := opt.DefaultOptions()
	return Config{
		Solver: SolverConfig{
			Preset:     "robust",
			Path:       "stateless",
			Derivative: "auto",
			Linsolve:   "auto",
			Precond:    "none",
			Jacobian:   "auto",
			Norm:       "l2",
			AbsTol:     opts.AbsTol,
			MaxIters:   opts.MaxIters,
			Stall: StallConfig{
				Enabled:   stall.Enabled,
				Patience:  stall.Patience,
				Threshold: stall.Threshold,
			},
			Global: opt.DefaultGlobalSettings(),
		},
		Store: StoreConfig{
			Dir: "./data",
		},
		Server: ServerConfig{
			Addr:    ":8080",
			Workers: 4,
		},
	}
}

// Load overlays the file at path, then POLYROOT_* environment variables,
// on the defaults. An empty path or a missing file keeps the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// YAML is a superset of JSON, but fall back for clearer errors
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("POLYROOT_PRESET"); v != "" {
		cfg.Solver.Preset = v
	}
	if v := os.Getenv("POLYROOT_PATH"); v != "" {
		cfg.Solver.Path = v
	}
	if v := os.Getenv("POLYROOT_ABSTOL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Solver.AbsTol = f
		}
	}
	if v := os.Getenv("POLYROOT_MAX_ITERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Solver.MaxIters = i
		}
	}
	if v := os.Getenv("POLYROOT_STORE_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	if v := os.Getenv("POLYROOT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("POLYROOT_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Server.Workers = i
		}
	}
}

// Validate checks every section and returns the first *ValidationError.
func (c Config) Validate() error {
	if _, err := c.Solver.ToPoly(); err != nil {
		return err
	}
	if _, err := poly.ParsePath(c.Solver.Path); err != nil {
		return &ValidationError{Field: "solver.path", Reason: err.Error()}
	}
	if _, err := ParseNorm(c.Solver.Norm); err != nil {
		return &ValidationError{Field: "solver.norm", Reason: err.Error()}
	}
	if c.Solver.AbsTol <= 0 {
		return &ValidationError{Field: "solver.abstol", Reason: "must be positive"}
	}
	if c.Solver.MaxIters < 1 {
		return &ValidationError{Field: "solver.max_iters", Reason: "must be >= 1"}
	}
	if c.Solver.Stall.Enabled && c.Solver.Stall.Patience < 1 {
		return &ValidationError{Field: "solver.stall.patience", Reason: "must be >= 1"}
	}
	if c.Solver.Stall.Threshold < 0 {
		return &ValidationError{Field: "solver.stall.threshold", Reason: "cannot be negative"}
	}
	if c.Store.Dir == "" {
		return &ValidationError{Field: "store.dir", Reason: "cannot be empty"}
	}
	if c.Server.Workers < 1 {
		return &ValidationError{Field: "server.workers", Reason: "must be >= 1"}
	}
	return nil
}

// ToPoly parses the named settings into a polyalgorithm configuration.
func (s SolverConfig) ToPoly() (poly.Config, error) {
	var cfg poly.Config
	var err error

	if cfg.Preset, err = poly.ParsePreset(s.Preset); err != nil {
		return cfg, &ValidationError{Field: "solver.preset", Reason: err.Error()}
	}
	if cfg.Derivative, err = opt.ParseDerivative(s.Derivative); err != nil {
		return cfg, &ValidationError{Field: "solver.derivative", Reason: err.Error()}
	}
	if cfg.Linsolve, err = opt.ParseLinearSolver(s.Linsolve); err != nil {
		return cfg, &ValidationError{Field: "solver.linsolve", Reason: err.Error()}
	}
	if cfg.Precond, err = opt.ParsePreconditioner(s.Precond); err != nil {
		return cfg, &ValidationError{Field: "solver.precond", Reason: err.Error()}
	}
	if cfg.Jacobian, err = opt.ParseJacobianMode(s.Jacobian); err != nil {
		return cfg, &ValidationError{Field: "solver.jacobian", Reason: err.Error()}
	}
	cfg.Global = s.Global
	return cfg, nil
}

// Options converts the tolerances into candidate solver options.
func (s SolverConfig) Options() opt.Options {
	return opt.Options{
		AbsTol:   s.AbsTol,
		MaxIters: s.MaxIters,
		Stall: opt.StallConfig{
			Enabled:   s.Stall.Enabled,
			Patience:  s.Stall.Patience,
			Threshold: s.Stall.Threshold,
		},
	}
}

// PolyOptions returns the driver options for the configured norm and tolerances.
func (s SolverConfig) PolyOptions() []poly.Option {
	norm, err := ParseNorm(s.Norm)
	if err != nil {
		norm = opt.L2Norm
	}
	return []poly.Option{poly.WithNorm(norm), poly.WithOptions(s.Options())}
}

// ParseNorm maps "l2" or "inf" to a norm function.
func ParseNorm(name string) (opt.NormFunc, error) {
	switch name {
	case "", "l2", "L2":
		return opt.L2Norm, nil
	case "inf", "Inf", "max":
		return opt.InfNorm, nil
	}
	return nil, fmt.Errorf("unknown norm %q (want l2 or inf)", name)
}

// ValidationError names the offending config field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
