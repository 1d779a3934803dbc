package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/polyroot/internal/config"
	"github.com/cwbudde/polyroot/internal/opt"
	"github.com/cwbudde/polyroot/internal/poly"
	"github.com/cwbudde/polyroot/internal/problems"
	"github.com/cwbudde/polyroot/internal/store"
)

func testSolver() config.SolverConfig {
	return config.Default().Solver
}

func TestResolveFillsDefaults(t *testing.T) {
	cfg, err := Resolve(JobConfig{Problem: "linear", Preset: "fast-shortcut"}, testSolver())
	require.NoError(t, err)

	assert.Equal(t, "fast", cfg.Preset)
	assert.Equal(t, "stateless", cfg.Path)
	assert.Equal(t, 1e-10, cfg.AbsTol)
	assert.Equal(t, 1000, cfg.MaxIters)
}

func TestResolveFixedPathUsesFastPreset(t *testing.T) {
	cfg, err := Resolve(JobConfig{Problem: "linear", Preset: "robust", Path: "fixed"}, testSolver())
	require.NoError(t, err)
	assert.Equal(t, "fast", cfg.Preset)

	report, err := Execute("r-fixed-robust", JobConfig{Problem: "linear", Preset: "robust", Path: "fixed"}, testSolver(), Hooks{})
	require.NoError(t, err)
	assert.Equal(t, "FastShortcutPolyalg", report.Alg)
	assert.Equal(t, "fast", report.Config.Preset)
	assert.Equal(t, "NewtonRaphson", report.Method)
}

func TestResolveRejects(t *testing.T) {
	tests := []struct {
		name   string
		config JobConfig
		target error
	}{
		{"unknown problem", JobConfig{Problem: "nope"}, problems.ErrUnknownProblem},
		{"unknown preset", JobConfig{Problem: "linear", Preset: "turbo"}, poly.ErrUnknownPreset},
		{"u0 length", JobConfig{Problem: "linear", U0: []float64{1}}, opt.ErrDimensionMismatch},
		{"params length", JobConfig{Problem: "linear", Params: []float64{1}}, opt.ErrDimensionMismatch},
		{"fixed out of place", JobConfig{Problem: "linear", Path: "fixed", OutOfPlace: true}, poly.ErrNotInPlace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.config, testSolver())
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}

	_, err := Resolve(JobConfig{Problem: "linear", Path: "sideways"}, testSolver())
	assert.Error(t, err)
}

func TestExecuteEveryPath(t *testing.T) {
	for _, path := range []string{"cache", "stateless", "fixed"} {
		t.Run(path, func(t *testing.T) {
			var events, attempts int
			hooks := Hooks{
				Trace:   func(opt.TraceEvent) { events++ },
				Attempt: func(store.Attempt) { attempts++ },
			}

			report, err := Execute("r-"+path, JobConfig{Problem: "linear", Path: path}, testSolver(), hooks)
			require.NoError(t, err)

			assert.Equal(t, opt.Success, report.Retcode)
			assert.Equal(t, 0, report.Candidate)
			assert.Equal(t, path, report.Config.Path)
			assert.InDeltaSlice(t, []float64{1, 1, 1}, report.U, 1e-8)
			assert.Len(t, report.Attempts, 1)
			assert.Equal(t, 1, attempts)
			assert.Positive(t, events)
			assert.NoError(t, report.Validate())
		})
	}
}

func TestExecuteRecordsEveryFailedAttempt(t *testing.T) {
	cfg := JobConfig{Problem: "no-real-root", Preset: "fast", MaxIters: 50}

	report, err := Execute("no-root", cfg, testSolver(), Hooks{})
	require.NoError(t, err)

	assert.False(t, report.Retcode.Successful())
	assert.Len(t, report.Attempts, 4)
	assert.Equal(t, "FastShortcutPolyalg", report.Alg)
	for i, a := range report.Attempts {
		assert.Equal(t, i, a.Index)
	}
}

func TestRunJob_Success(t *testing.T) {
	st, err := store.NewFSStore(t.TempDir())
	require.NoError(t, err)

	jm := NewJobManager()
	cfg, err := Resolve(JobConfig{Problem: "rosenbrock"}, testSolver())
	require.NoError(t, err)
	job := jm.CreateJob(cfg)

	env := workerEnv{Solver: testSolver(), Store: st, TraceDir: st.BaseDir()}
	require.NoError(t, runJob(context.Background(), jm, env, job.ID))

	updated, _ := jm.GetJob(job.ID)
	assert.Equal(t, StateCompleted, updated.State)
	require.NotNil(t, updated.Report)
	assert.Equal(t, opt.Success, updated.Report.Retcode)
	assert.Positive(t, updated.Iterations)
	assert.Equal(t, len(updated.Report.Attempts), updated.Attempts)
	assert.NotNil(t, updated.EndTime)

	saved, err := st.LoadReport(job.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Report.Method, saved.Method)

	reader, err := store.NewTraceReader(st.BaseDir(), job.ID)
	require.NoError(t, err)
	defer reader.Close()
	entries, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Len(t, entries, updated.Iterations)
}

func TestRunJob_UnknownProblem(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Problem: "missing"})

	err := runJob(context.Background(), jm, workerEnv{Solver: testSolver()}, job.ID)
	assert.True(t, errors.Is(err, problems.ErrUnknownProblem))

	updated, _ := jm.GetJob(job.ID)
	assert.Equal(t, StateFailed, updated.State)
	assert.NotEmpty(t, updated.Error)
	assert.Nil(t, updated.Report)
}

func TestRunJob_Cancelled(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Problem: "linear"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runJob(ctx, jm, workerEnv{Solver: testSolver()}, job.ID)
	assert.ErrorIs(t, err, context.Canceled)

	updated, _ := jm.GetJob(job.ID)
	assert.Equal(t, StateCancelled, updated.State)
}

func TestRunJob_NotFound(t *testing.T) {
	err := runJob(context.Background(), NewJobManager(), workerEnv{Solver: testSolver()}, "nonexistent")
	assert.Error(t, err)
}
