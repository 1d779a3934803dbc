package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/polyroot/internal/problems"
	"github.com/cwbudde/polyroot/internal/server"
	"github.com/cwbudde/polyroot/internal/store"
)

var (
	benchProblems []string
	benchPresets  []string
	benchPath     string
	benchWorkers  int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Solve catalog problems under every preset",
	Long: `Runs each selected catalog problem under each selected preset in
parallel and prints one row per pair: the winning method, its return code,
the residual and the total iterations across all attempts.`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().StringSliceVar(&benchProblems, "problems", nil, "Problems to run (default: whole catalog)")
	benchCmd.Flags().StringSliceVar(&benchPresets, "presets", []string{"robust", "fast", "exhaustive"}, "Presets to compare")
	benchCmd.Flags().StringVar(&benchPath, "path", "", "Driver: cache, stateless, fixed (default from config)")
	benchCmd.Flags().IntVar(&benchWorkers, "workers", 4, "Concurrent solves")

	rootCmd.AddCommand(benchCmd)
}

// benchResult is one row of the comparison table
type benchResult struct {
	problem string
	preset  string
	report  *store.Report
	err     error
}

func runBench(cmd *cobra.Command, args []string) error {
	names := benchProblems
	if len(names) == 0 {
		names = problems.Names()
	}
	for _, name := range names {
		if _, err := problems.Get(name); err != nil {
			return err
		}
	}

	results := make([]benchResult, 0, len(names)*len(benchPresets))
	for _, name := range names {
		for _, p := range benchPresets {
			results = append(results, benchResult{problem: name, preset: p})
		}
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(cmd.Context())
	if benchWorkers > 0 {
		g.SetLimit(benchWorkers)
	}
	for i := range results {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := &results[i]
			job := server.JobConfig{Problem: r.problem, Preset: r.preset, Path: benchPath}
			// Per-pair failures are reported in the table, not returned
			r.report, r.err = server.Execute(fmt.Sprintf("%s-%s", r.problem, r.preset), job, cfg.Solver, server.Hooks{})
			if r.err != nil {
				slog.Warn("Bench solve failed", "problem", r.problem, "preset", r.preset, "error", r.err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printBench(cmd.OutOrStdout(), results)
	slog.Info("Bench complete", "solves", len(results), "elapsed", time.Since(start))
	return nil
}

func printBench(out io.Writer, results []benchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROBLEM\tPRESET\tMETHOD\tRETCODE\tRESIDUAL\tATTEMPTS\tSTEPS\tTIME")
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(w, "%s\t%s\t-\terror\t-\t-\t-\t%s\n", r.problem, r.preset, firstLine(r.err.Error()))
			continue
		}
		steps := 0
		for _, a := range r.report.Attempts {
			steps += a.Stats.NSteps
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2e\t%d\t%d\t%s\n",
			r.problem, r.preset, r.report.Method, r.report.Retcode, r.report.ResidualNorm,
			len(r.report.Attempts), steps, r.report.Duration.Round(time.Microsecond))
	}
	w.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
