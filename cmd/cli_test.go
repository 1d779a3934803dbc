package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/polyroot/internal/opt"
	"github.com/cwbudde/polyroot/internal/store"
)

// resetFlags restores the package-level flag values; cobra keeps them
// between Execute calls.
func resetFlags() {
	logFormat = "text"
	problemName, preset, path = "", "", ""
	u0, params = nil, nil
	absTol, maxIters = 0, 0
	outOfPlace, save, jsonOut = false, false, false
	candProblem, candPreset, candPath, candOutOfPlace = "rosenbrock", "", "", false
	benchProblems, benchPresets, benchPath = nil, []string{"robust", "fast", "exhaustive"}, ""
}

// execute runs the root command with args against an isolated store
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	dir := t.TempDir()
	t.Setenv("POLYROOT_STORE_DIR", filepath.Join(dir, "data"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(dir, "absent.yaml"), "--log-level", "error"}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	out, err := execute(t, "run", "--problem", "linear", "--path", "fixed")
	require.NoError(t, err)

	assert.Contains(t, out, "Retcode:   Success")
	assert.Contains(t, out, "NewtonRaphson")
}

func TestRunCommandJSONAndSave(t *testing.T) {
	out, err := execute(t, "run", "--problem", "linear", "--preset", "robust", "--path", "stateless", "--json", "--save")
	require.NoError(t, err)

	var report store.Report
	require.NoError(t, json.NewDecoder(strings.NewReader(out)).Decode(&report))
	assert.Equal(t, opt.Success, report.Retcode)
	assert.Equal(t, "RobustMultiNewton", report.Alg)

	reports, err := store.NewFSStore(cfg.Store.Dir)
	require.NoError(t, err)
	saved, err := reports.LoadReport(report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Method, saved.Method)

	reader, err := store.NewTraceReader(reports.BaseDir(), report.ID)
	require.NoError(t, err)
	defer reader.Close()
	entries, err := reader.ReadAll()
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestRunCommandUnknownProblem(t *testing.T) {
	_, err := execute(t, "run", "--problem", "nope")
	assert.Error(t, err)
}

func TestCandidatesCommand(t *testing.T) {
	out, err := execute(t, "candidates", "--preset", "fast", "--path", "stateless", "--out-of-place")
	require.NoError(t, err)

	assert.Contains(t, out, "FastShortcutPolyalg on stateless path")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, lines[1], "0. Broyden")
	assert.Contains(t, lines[2], "1. Klement")
}

func TestProblemsCommand(t *testing.T) {
	out, err := execute(t, "problems")
	require.NoError(t, err)

	assert.Contains(t, out, "rosenbrock")
	assert.Contains(t, out, "no-real-root")
}

func TestBenchCommand(t *testing.T) {
	out, err := execute(t, "bench", "--problems", "linear,rosenbrock", "--presets", "robust,fast")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 5, "header plus one row per pair")
	assert.Contains(t, out, "Success")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "polyroot version")
}

func TestInvalidLogFormat(t *testing.T) {
	_, err := execute(t, "--log-format", "xml", "version")
	assert.Error(t, err)
}
