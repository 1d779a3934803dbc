package server

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/polyroot/internal/config"
	"github.com/cwbudde/polyroot/internal/opt"
	"github.com/cwbudde/polyroot/internal/poly"
	"github.com/cwbudde/polyroot/internal/problems"
	"github.com/cwbudde/polyroot/internal/store"
)

// Hooks observe a running solve. Either field may be nil.
type Hooks struct {
	// Trace is called after every candidate iteration
	Trace opt.TraceFunc

	// Attempt is called once per candidate driven to termination
	Attempt func(store.Attempt)
}

// Resolve validates a job request and fills the fields it leaves unset
// from the solver defaults. The returned config is canonical: preset and
// path carry their parsed names.
func Resolve(cfg JobConfig, solver config.SolverConfig) (JobConfig, error) {
	sys, err := problems.Get(cfg.Problem)
	if err != nil {
		return cfg, err
	}

	if cfg.Preset == "" {
		cfg.Preset = solver.Preset
	}
	preset, err := poly.ParsePreset(cfg.Preset)
	if err != nil {
		return cfg, err
	}
	cfg.Preset = preset.String()

	if cfg.Path == "" {
		cfg.Path = solver.Path
	}
	path, err := poly.ParsePath(cfg.Path)
	if err != nil {
		return cfg, err
	}
	cfg.Path = path.String()
	if path == poly.PathFixed {
		// The fixed-arity driver always runs the FastShortcut candidates
		cfg.Preset = poly.FastShortcut.String()
	}

	if cfg.AbsTol <= 0 {
		cfg.AbsTol = solver.AbsTol
	}
	if cfg.MaxIters <= 0 {
		cfg.MaxIters = solver.MaxIters
	}

	if len(cfg.U0) > 0 && len(cfg.U0) != sys.Dim() {
		return cfg, fmt.Errorf("u0 has %d entries, %s needs %d: %w",
			len(cfg.U0), sys.Name, sys.Dim(), opt.ErrDimensionMismatch)
	}
	if len(cfg.Params) > 0 && len(cfg.Params) != len(sys.P) {
		return cfg, fmt.Errorf("params has %d entries, %s takes %d: %w",
			len(cfg.Params), sys.Name, len(sys.P), opt.ErrDimensionMismatch)
	}
	if path == poly.PathFixed && cfg.OutOfPlace {
		return cfg, poly.ErrNotInPlace
	}
	return cfg, nil
}

// Execute runs one polyalgorithm solve and returns its report.
// solver supplies the norm, stall detection and candidate flavour; cfg
// overrides preset, path and tolerances.
func Execute(id string, cfg JobConfig, solver config.SolverConfig, hooks Hooks) (*store.Report, error) {
	cfg, err := Resolve(cfg, solver)
	if err != nil {
		return nil, err
	}
	sys, err := problems.Get(cfg.Problem)
	if err != nil {
		return nil, err
	}

	solver.Preset = cfg.Preset
	solver.AbsTol = cfg.AbsTol
	solver.MaxIters = cfg.MaxIters
	pcfg, err := solver.ToPoly()
	if err != nil {
		return nil, err
	}
	path, err := poly.ParsePath(cfg.Path)
	if err != nil {
		return nil, err
	}
	norm, err := config.ParseNorm(solver.Norm)
	if err != nil {
		return nil, err
	}

	opts := solver.Options()
	opts.Trace = hooks.Trace

	var attempts []store.Attempt
	options := []poly.Option{
		poly.WithNorm(norm),
		poly.WithOptions(opts),
		poly.WithObserver(func(i int, sol *opt.Solution) {
			a := store.NewAttempt(i, sol, norm)
			attempts = append(attempts, a)
			if hooks.Attempt != nil {
				hooks.Attempt(a)
			}
		}),
	}

	prob := sys.InPlace(cfg.U0, cfg.Params)
	if cfg.OutOfPlace {
		prob = sys.OutOfPlace(cfg.U0, cfg.Params)
	}

	start := time.Now()
	var sol *opt.Solution
	switch path {
	case poly.PathCache:
		var cache *poly.Cache
		cache, err = poly.NewCache(prob, pcfg, options...)
		if err == nil {
			sol = cache.Solve()
		}
	case poly.PathFixed:
		sol, err = poly.SolveFixed(prob, pcfg, options...)
	default:
		sol, err = poly.Solve(prob, pcfg, options...)
	}
	if err != nil {
		return nil, err
	}

	return store.NewReport(id, cfg, sol, attempts, time.Since(start)), nil
}

// workerEnv carries what a job needs besides the job itself
type workerEnv struct {
	Solver config.SolverConfig

	// Store persists finished reports; nil disables persistence
	Store store.Store

	// TraceDir enables per-iteration JSONL traces when non-empty
	TraceDir string
}

// runJob executes a solve job in the background and records its outcome.
func runJob(ctx context.Context, jm *JobManager, env workerEnv, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Check for cancellation before starting
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}
	jobsRunning.Inc()
	defer jobsRunning.Dec()

	slog.Info("Starting job", "job_id", jobID, "problem", job.Config.Problem,
		"preset", job.Config.Preset, "path", job.Config.Path)

	hooks := Hooks{
		Trace: func(ev opt.TraceEvent) {
			jm.UpdateJob(jobID, func(j *Job) {
				j.Method = ev.Method
				j.Iterations++
				if !math.IsNaN(ev.ResidualNorm) && !math.IsInf(ev.ResidualNorm, 0) {
					j.Residual = ev.ResidualNorm
				}
			})
		},
		Attempt: func(a store.Attempt) {
			jm.UpdateJob(jobID, func(j *Job) { j.Attempts++ })
			slog.Debug("Candidate finished", "job_id", jobID, "index", a.Index,
				"method", a.Method, "retcode", a.Retcode)
		},
	}

	var trace *store.TraceWriter
	if env.TraceDir != "" {
		trace, err = store.NewTraceWriter(env.TraceDir, jobID, false)
		if err != nil {
			slog.Warn("Trace disabled", "job_id", jobID, "error", err)
		} else {
			record := trace.Recorder()
			progress := hooks.Trace
			hooks.Trace = func(ev opt.TraceEvent) {
				record(ev)
				progress(ev)
			}
		}
	}

	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	start := time.Now()
	report, err := Execute(jobID, job.Config, env.Solver, hooks)
	close(progressDone)
	jobDuration.Observe(time.Since(start).Seconds())

	if trace != nil {
		if cerr := trace.Close(); cerr != nil {
			slog.Warn("Failed to close trace", "job_id", jobID, "error", cerr)
		}
	}

	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	// Check for cancellation after the solve
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	// A report that cannot be serialized is not attached to the job
	if err := report.Validate(); err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("unusable result: %w", err))
		return err
	}

	if env.Store != nil {
		if err := env.Store.SaveReport(report); err != nil {
			slog.Error("Failed to save report", "job_id", jobID, "error", err)
		}
	}

	jobsFinished.WithLabelValues(string(StateCompleted)).Inc()
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Report = report
		j.Method = report.Method
		j.Residual = report.ResidualNorm
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", report.Duration,
		"method", report.Method,
		"retcode", report.Retcode,
		"residual", report.ResidualNorm,
	)

	if final, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(progressEvent(final))
	}
	return nil
}

// monitorProgress periodically broadcasts progress events during a solve
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}
			jm.broadcaster.Broadcast(progressEvent(job))
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	jobsFinished.WithLabelValues(string(StateFailed)).Inc()
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)

	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(progressEvent(job))
	}
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	jobsFinished.WithLabelValues(string(StateCancelled)).Inc()
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)

	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(progressEvent(job))
	}
}
