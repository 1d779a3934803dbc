package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/polyroot/internal/opt"
	"github.com/cwbudde/polyroot/internal/poly"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	pc, err := cfg.Solver.ToPoly()
	require.NoError(t, err)
	assert.Equal(t, poly.Robust, pc.Preset)
	assert.Equal(t, opt.DefaultGlobalSettings(), pc.Global)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := writeFile(t, "polyroot.yaml", `
solver:
  preset: fast
  linsolve: qr
  precond: jacobi
  norm: inf
  abstol: 1e-8
  max_iters: 50
  stall:
    enabled: false
store:
  dir: /tmp/reports
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fast", cfg.Solver.Preset)
	assert.Equal(t, 1e-8, cfg.Solver.AbsTol)
	assert.Equal(t, 50, cfg.Solver.MaxIters)
	assert.False(t, cfg.Solver.Stall.Enabled)
	assert.Equal(t, 25, cfg.Solver.Stall.Patience, "unset nested fields keep defaults")
	assert.Equal(t, "stateless", cfg.Solver.Path)
	assert.Equal(t, "/tmp/reports", cfg.Store.Dir)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	pc, err := cfg.Solver.ToPoly()
	require.NoError(t, err)
	assert.Equal(t, poly.FastShortcut, pc.Preset)
	assert.Equal(t, opt.LinsolveQR, pc.Linsolve)
	assert.Equal(t, opt.PrecondJacobi, pc.Precond)

	o := cfg.Solver.Options()
	assert.Equal(t, 50, o.MaxIters)
	assert.False(t, o.Stall.Enabled)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "polyroot.json", `{"server": {"addr": ":9999", "workers": 2}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Server.Workers)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("POLYROOT_PRESET", "exhaustive")
	t.Setenv("POLYROOT_MAX_ITERS", "77")
	t.Setenv("POLYROOT_WORKERS", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "exhaustive", cfg.Solver.Preset)
	assert.Equal(t, 77, cfg.Solver.MaxIters)
	assert.Equal(t, 4, cfg.Server.Workers, "unparsable values are ignored")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Config)
		field string
	}{
		{"preset", func(c *Config) { c.Solver.Preset = "quick" }, "solver.preset"},
		{"path", func(c *Config) { c.Solver.Path = "parallel" }, "solver.path"},
		{"linsolve", func(c *Config) { c.Solver.Linsolve = "svd" }, "solver.linsolve"},
		{"jacobian", func(c *Config) { c.Solver.Jacobian = "sparse" }, "solver.jacobian"},
		{"norm", func(c *Config) { c.Solver.Norm = "l1" }, "solver.norm"},
		{"abstol", func(c *Config) { c.Solver.AbsTol = 0 }, "solver.abstol"},
		{"max iters", func(c *Config) { c.Solver.MaxIters = 0 }, "solver.max_iters"},
		{"patience", func(c *Config) { c.Solver.Stall.Patience = 0 }, "solver.stall.patience"},
		{"store dir", func(c *Config) { c.Store.Dir = "" }, "store.dir"},
		{"workers", func(c *Config) { c.Server.Workers = 0 }, "server.workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mod(&cfg)

			var verr *ValidationError
			require.True(t, errors.As(cfg.Validate(), &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := writeFile(t, "bad.yaml", "solver: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)

	path = writeFile(t, "invalid.yaml", "solver:\n  max_iters: -1\n")
	_, err = Load(path)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestParseNorm(t *testing.T) {
	v := []float64{3, -4}

	n, err := ParseNorm("l2")
	require.NoError(t, err)
	assert.Equal(t, 5.0, n(v))

	n, err = ParseNorm("inf")
	require.NoError(t, err)
	assert.Equal(t, 4.0, n(v))
}
