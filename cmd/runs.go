package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/ogsolve/internal/solver"
	"github.com/cwbudde/ogsolve/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
	compareTol    float64
	compareRel    bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage saved runs",
	Long: `Manage saved steady-state and transition runs: list them, inspect one,
compare two and clean old ones.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved runs",
	Long:  `Display all runs with metadata including ID, kind, timestamp, iterations, residual and file sizes.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRuns(cmd.OutOrStdout(), dataDir)
	},
}

var showRunCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one saved run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showRun(cmd.OutOrStdout(), dataDir, args[0])
	},
}

var compareRunsCmd = &cobra.Command{
	Use:   "compare <run-id> <baseline-id>",
	Short: "Compare the outputs of two runs",
	Long: `Compares every output array of a run against a baseline run and lists the
arrays whose shape differs or whose elements differ by more than --tol.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return compareRuns(cmd.OutOrStdout(), dataDir, args[0], args[1], compareTol, compareRel)
	},
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old runs",
	Long: `Delete old runs based on retention policy.
You can keep the last N runs or delete runs older than N days.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cleanRuns(cmd.OutOrStdout(), cmd.InOrStdin(), dataDir, keepLast, olderThanDays, forceClean)
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(showRunCmd)
	runsCmd.AddCommand(compareRunsCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	compareRunsCmd.Flags().Float64Var(&compareTol, "tol", 1e-6, "Elementwise tolerance")
	compareRunsCmd.Flags().BoolVar(&compareRel, "relative", false, "Scale the tolerance by the baseline magnitude")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func listRuns(w io.Writer, baseDir string) error {
	st, err := store.NewFSStore(baseDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	infos, err := st.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tTIMESTAMP\tITERS\tRESIDUAL\tCONVERGED\tSIZE")
	fmt.Fprintln(tw, "--\t----\t---------\t-----\t--------\t---------\t----")

	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(filepath.Join(baseDir, "runs", info.ID)); err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.3g\t%v\t%s\n",
			shortID(info.ID),
			info.Kind,
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Iterations,
			info.Residual,
			info.Converged,
			sizeStr,
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nTotal runs: %d\n", len(infos))
	return nil
}

func showRun(w io.Writer, baseDir, runID string) error {
	st, err := store.NewFSStore(baseDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	run, err := st.LoadRun(runID)
	if err != nil {
		return err
	}

	cfg := run.Config
	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "Kind: %s\n", cfg.Kind)
	fmt.Fprintf(w, "Timestamp: %s\n", run.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Dimensions: S=%d T=%d J=%d\n", cfg.S, cfg.T, cfg.J)
	if cfg.Preset != "" {
		fmt.Fprintf(w, "Preset: %s\n", cfg.Preset)
	}
	if cfg.ParamsPath != "" {
		fmt.Fprintf(w, "Parameters: %s\n", cfg.ParamsPath)
	}
	if cfg.Parent != "" {
		fmt.Fprintf(w, "Parent: %s\n", cfg.Parent)
	}
	fmt.Fprintf(w, "Iterations: %d, residual %.3g, converged %v\n", run.Iterations, run.Residual, run.Converged)
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}

	if len(run.Outputs) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "\nOUTPUT\tSHAPE\tFIRST")
		for _, name := range run.Outputs.Names() {
			arr := run.Outputs[name]
			first := "-"
			if len(arr.Data) > 0 {
				first = fmt.Sprintf("%.6g", arr.Data[0])
			}
			fmt.Fprintf(tw, "%s\t%v\t%s\n", name, arr.Shape, first)
		}
		tw.Flush()
	}
	printSummary(w, run.Summary)

	entries, err := store.ReadTrace(baseDir, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSOLVER\tITERS\tFIRST\tLAST\tRATE\tELAPSED")
	for _, s := range store.Summarize(entries) {
		fmt.Fprintf(tw, "%s\t%d\t%.3g\t%.3g\t%.3f\t%s\n", s.Solver, s.Iterations, s.First, s.Last, s.Rate, s.Elapsed.Round(time.Millisecond))
	}
	tw.Flush()
	return nil
}

func compareRuns(w io.Writer, baseDir, runID, baselineID string, tol float64, relative bool) error {
	st, err := store.NewFSStore(baseDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	got, err := st.LoadRun(runID)
	if err != nil {
		return err
	}
	want, err := st.LoadRun(baselineID)
	if err != nil {
		return err
	}
	if got.Config.Kind != want.Config.Kind {
		return fmt.Errorf("cannot compare a %s run with a %s run", got.Config.Kind, want.Config.Kind)
	}

	diffs := solver.Compare(got.Outputs, want.Outputs, tol, relative)
	if len(diffs) == 0 {
		fmt.Fprintf(w, "Runs match: %d outputs within %g\n", len(want.Outputs), tol)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTPUT\tREASON\tMAX ABS DIFF")
	for _, d := range diffs {
		fmt.Fprintf(tw, "%s\t%s\t%.3g\n", d.Name, d.Reason, d.MaxAbs)
	}
	tw.Flush()
	return fmt.Errorf("%d of %d outputs differ", len(diffs), len(want.Outputs))
}

func cleanRuns(w io.Writer, in io.Reader, baseDir string, keepLast, olderThanDays int, force bool) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	st, err := store.NewFSStore(baseDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	infos, err := st.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(w, "No runs to clean.")
		return nil
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays)
	if len(toDelete) == 0 {
		fmt.Fprintln(w, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(w, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(w, "  - %s (%s, %s)\n",
			shortID(info.ID),
			info.Kind,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !force {
		fmt.Fprint(w, "\nProceed with deletion? [y/N]: ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := st.DeleteRun(info.ID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted run", "run_id", info.ID)
			deleted++
		}
	}

	fmt.Fprintf(w, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion applies the retention policy: runs older than
// olderThanDays go, and of the rest only the newest keepLast survive.
func selectRunsForDeletion(infos []store.RunInfo, keepLast int, olderThanDays int) []store.RunInfo {
	var toDelete []store.RunInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.RunInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
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
