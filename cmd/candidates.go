package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/polyroot/internal/poly"
	"github.com/cwbudde/polyroot/internal/problems"
)

var (
	candProblem    string
	candPreset     string
	candPath       string
	candOutOfPlace bool
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Print the candidate order for a preset and driver",
	Long: `Prints the ordered candidate list the polyalgorithm would try, without
solving anything. The list depends on the preset, the driver path and, for
the fast preset, on whether the problem is out-of-place.`,
	RunE: runCandidates,
}

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "List the catalog problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDIM\tJACOBIAN\tROOT\tDESCRIPTION")
		for _, name := range problems.Names() {
			sys, err := problems.Get(name)
			if err != nil {
				return err
			}
			jac := "fd"
			if sys.J != nil {
				jac = "analytic"
			}
			root := "none"
			if sys.Solvable() {
				root = fmt.Sprint(sys.Root)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", sys.Name, sys.Dim(), jac, root, sys.Description)
		}
		return w.Flush()
	},
}

func init() {
	candidatesCmd.Flags().StringVar(&candProblem, "problem", "rosenbrock", "Catalog problem used to build the list")
	candidatesCmd.Flags().StringVar(&candPreset, "preset", "", "Preset: robust, fast, exhaustive (default from config)")
	candidatesCmd.Flags().StringVar(&candPath, "path", "", "Driver: cache, stateless, fixed (default from config)")
	candidatesCmd.Flags().BoolVar(&candOutOfPlace, "out-of-place", false, "Use the allocating residual convention")

	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(problemsCmd)
}

func runCandidates(cmd *cobra.Command, args []string) error {
	solver := cfg.Solver
	if candPreset != "" {
		solver.Preset = candPreset
	}
	if candPath != "" {
		solver.Path = candPath
	}

	pcfg, err := solver.ToPoly()
	if err != nil {
		return err
	}
	driver, err := poly.ParsePath(solver.Path)
	if err != nil {
		return err
	}
	if driver == poly.PathFixed {
		pcfg.Preset = poly.FastShortcut
	}
	sys, err := problems.Get(candProblem)
	if err != nil {
		return err
	}

	prob := sys.InPlace(nil, nil)
	if candOutOfPlace {
		prob = sys.OutOfPlace(nil, nil)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s on %s path:\n", pcfg.Name(), driver)
	for i, spec := range poly.Build(prob, pcfg, driver) {
		fmt.Fprintf(out, "  %d. %s\n", i, spec.Name())
	}
	return nil
}
