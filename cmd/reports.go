package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/polyroot/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
	showTrace     bool
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage saved solve reports",
	Long: `Manage reports written by 'polyroot run --save' and by the job server,
including listing, inspecting and cleaning old reports.`,
}

var listReportsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved reports",
	RunE:  runListReports,
}

var showReportCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one report",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowReport,
}

var deleteReportCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete reports and their traces",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDeleteReports,
}

var cleanReportsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old reports",
	Long: `Delete old reports based on retention policy.
You can keep the newest N reports or delete reports older than N days.`,
	RunE: runCleanReports,
}

func init() {
	rootCmd.AddCommand(reportsCmd)

	reportsCmd.AddCommand(listReportsCmd)
	reportsCmd.AddCommand(showReportCmd)
	reportsCmd.AddCommand(deleteReportCmd)
	reportsCmd.AddCommand(cleanReportsCmd)

	showReportCmd.Flags().BoolVar(&showTrace, "trace", false, "Print the iteration trace as JSON lines")

	cleanReportsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N reports (0 = keep all)")
	cleanReportsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete reports older than N days (0 = no age limit)")
	cleanReportsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func openReports() (*store.FSStore, error) {
	reports, err := store.NewFSStore(cfg.Store.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return reports, nil
}

func runListReports(cmd *cobra.Command, args []string) error {
	reports, err := openReports()
	if err != nil {
		return err
	}

	infos, err := reports.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tPROBLEM\tPRESET\tMETHOD\tRETCODE\tRESIDUAL\tSIZE")
	fmt.Fprintln(w, "--\t---------\t-------\t------\t------\t-------\t--------\t----")

	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(filepath.Join(reports.BaseDir(), "reports", info.ID)); err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.2e\t%s\n",
			shortID(info.ID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Problem,
			info.Preset,
			info.Method,
			info.Retcode,
			info.ResidualNorm,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal reports: %d\n", len(infos))
	return nil
}

func runShowReport(cmd *cobra.Command, args []string) error {
	reports, err := openReports()
	if err != nil {
		return err
	}

	report, err := reports.LoadReport(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printReport(out, report)

	if !showTrace {
		return nil
	}
	reader, err := store.NewTraceReader(reports.BaseDir(), report.ID)
	if err != nil {
		return err
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	enc := json.NewEncoder(out)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func runDeleteReports(cmd *cobra.Command, args []string) error {
	reports, err := openReports()
	if err != nil {
		return err
	}

	for _, id := range args {
		if err := reports.DeleteReport(id); err != nil {
			return err
		}
		slog.Info("Deleted report", "id", id)
	}
	return nil
}

func runCleanReports(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	reports, err := openReports()
	if err != nil {
		return err
	}

	infos, err := reports.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports to clean.")
		return nil
	}

	toDelete := selectReportsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No reports match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d report(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n",
			shortID(info.ID),
			info.Problem,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := reports.DeleteReport(info.ID); err != nil {
			slog.Error("Failed to delete report", "id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted report", "id", info.ID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d report(s), %d failed.\n", deleted, failed)
	return nil
}

// selectReportsForDeletion applies the retention policy: reports older than
// olderThanDays, plus everything beyond the newest keepLast. Each report is
// selected at most once.
func selectReportsForDeletion(infos []store.ReportInfo, keepLast, olderThanDays int, now time.Time) []store.ReportInfo {
	var toDelete []store.ReportInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.ReportInfo, len(infos))
		copy(sorted, infos)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.ID] {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
