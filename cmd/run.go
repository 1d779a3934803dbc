package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/polyroot/internal/server"
	"github.com/cwbudde/polyroot/internal/store"
)

var (
	problemName string
	preset      string
	path        string
	u0          []float64
	params      []float64
	absTol      float64
	maxIters    int
	outOfPlace  bool
	save        bool
	jsonOut     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Solve one catalog problem",
	Long: `Runs the polyalgorithm on a catalog problem and prints the selected
candidate, its return code and residual, followed by every attempt.
With --save the report and its iteration trace are written to the store.`,
	RunE: runSolve,
}

func init() {
	runCmd.Flags().StringVar(&problemName, "problem", "", "Catalog problem name (required, see 'polyroot problems')")
	runCmd.Flags().StringVar(&preset, "preset", "", "Preset: robust, fast, exhaustive (default from config)")
	runCmd.Flags().StringVar(&path, "path", "", "Driver: cache, stateless, fixed (default from config)")
	runCmd.Flags().Float64SliceVar(&u0, "u0", nil, "Initial guess (default: the problem's)")
	runCmd.Flags().Float64SliceVar(&params, "params", nil, "Parameters (default: the problem's)")
	runCmd.Flags().Float64Var(&absTol, "abstol", 0, "Residual tolerance (default from config)")
	runCmd.Flags().IntVar(&maxIters, "max-iters", 0, "Iteration limit per candidate (default from config)")
	runCmd.Flags().BoolVar(&outOfPlace, "out-of-place", false, "Use the allocating residual convention")
	runCmd.Flags().BoolVar(&save, "save", false, "Persist the report and trace to the store directory")
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")

	runCmd.MarkFlagRequired("problem")
	rootCmd.AddCommand(runCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	job := server.JobConfig{
		Problem:    problemName,
		Preset:     preset,
		Path:       path,
		U0:         u0,
		Params:     params,
		AbsTol:     absTol,
		MaxIters:   maxIters,
		OutOfPlace: outOfPlace,
	}

	id := uuid.New().String()
	var hooks server.Hooks
	var reports *store.FSStore
	var trace *store.TraceWriter

	if save {
		var err error
		reports, err = store.NewFSStore(cfg.Store.Dir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		trace, err = store.NewTraceWriter(reports.BaseDir(), id, false)
		if err != nil {
			return err
		}
		hooks.Trace = trace.Recorder()
	}

	slog.Info("Starting solve", "problem", problemName, "preset", job.Preset, "path", job.Path)

	report, err := server.Execute(id, job, cfg.Solver, hooks)
	if trace != nil {
		if cerr := trace.Close(); cerr != nil {
			slog.Warn("Failed to close trace", "error", cerr)
		}
	}
	if err != nil {
		if trace != nil {
			store.DeleteTrace(reports.BaseDir(), id)
		}
		return err
	}

	slog.Info("Solve complete",
		"alg", report.Alg,
		"method", report.Method,
		"retcode", report.Retcode,
		"residual", report.ResidualNorm,
		"elapsed", report.Duration,
	)

	if reports != nil {
		if err := reports.SaveReport(report); err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		slog.Info("Report saved", "id", id, "dir", reports.BaseDir())
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(out, report)
	return nil
}

// printReport writes a human-readable summary followed by the attempt table
func printReport(out io.Writer, r *store.Report) {
	fmt.Fprintf(out, "Problem:   %s (%s, %s)\n", r.Config.Problem, r.Alg, r.Config.Path)
	fmt.Fprintf(out, "Method:    %s (candidate %d)\n", r.Method, r.Candidate)
	fmt.Fprintf(out, "Retcode:   %s\n", r.Retcode)
	fmt.Fprintf(out, "Residual:  %.3e\n", r.ResidualNorm)
	fmt.Fprintf(out, "Solution:  %v\n", r.U)
	fmt.Fprintf(out, "Elapsed:   %s\n", r.Duration)
	if r.ID != "" {
		fmt.Fprintf(out, "Report ID: %s\n", r.ID)
	}

	if len(r.Attempts) == 0 {
		return
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tMETHOD\tRETCODE\tRESIDUAL\tSTEPS\tF EVALS\tJACOBIANS")
	for _, a := range r.Attempts {
		residual := fmt.Sprintf("%.3e", a.ResidualNorm)
		if a.Diverged {
			residual = "diverged"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\n",
			a.Index, a.Method, a.Retcode, residual, a.Stats.NSteps, a.Stats.NF, a.Stats.NJacs)
	}
	w.Flush()
}
