package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/ogsolve/internal/runner"
	"github.com/cwbudde/ogsolve/internal/ss"
	"github.com/cwbudde/ogsolve/internal/store"
	"github.com/cwbudde/ogsolve/internal/tpi"
)

// solveFlags are shared by the ss and tpi commands.
type solveFlags struct {
	preset     string
	paramsPath string
	S, T       int
	method     string
	tol        float64
	maxIters   int
	damping    float64
	workers    int
	search     bool
	noChecks   bool
}

func (f *solveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.preset, "preset", "default", "Calibration preset: default, small")
	cmd.Flags().StringVar(&f.paramsPath, "params", "", "YAML parameter overrides")
	cmd.Flags().IntVar(&f.S, "S", 0, "Number of model ages (0 = preset)")
	cmd.Flags().IntVar(&f.T, "T", 0, "Transition length in periods (0 = preset)")
	cmd.Flags().StringVar(&f.method, "method", "newton", "Steady-state method: newton, fixed_point")
	cmd.Flags().Float64Var(&f.tol, "tol", 0, "Convergence tolerance (0 = solver default)")
	cmd.Flags().IntVar(&f.maxIters, "max-iters", 0, "Iteration cap (0 = solver default)")
	cmd.Flags().Float64Var(&f.damping, "damping", 0, "Damping factor in (0, 1] (0 = solver default)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Worker pool size (0 = number of CPUs)")
	cmd.Flags().BoolVar(&f.search, "initial-search", false, "Run a global search for the steady-state guess first")
	cmd.Flags().BoolVar(&f.noChecks, "no-checks", false, "Do not fail on violated solution checks")
}

func (f *solveFlags) config(kind string) store.RunConfig {
	return store.RunConfig{
		Kind:          kind,
		Preset:        f.preset,
		ParamsPath:    f.paramsPath,
		S:             f.S,
		T:             f.T,
		Method:        f.method,
		Tolerance:     f.tol,
		MaxIterations: f.maxIters,
		Damping:       f.damping,
		Workers:       f.workers,
		InitialSearch: f.search,
		SkipChecks:    f.noChecks,
	}
}

var (
	ssFlags   solveFlags
	tpiFlags  solveFlags
	tpiParent string
)

var ssCmd = &cobra.Command{
	Use:   "ss",
	Short: "Solve the steady state",
	Long: `Solves the steady-state equilibrium, saves the run to the data directory
and prints the aggregates and the wealth inequality summary.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, ssFlags.config(store.KindSS))
	},
}

var tpiCmd = &cobra.Command{
	Use:   "tpi",
	Short: "Solve the transition path",
	Long: `Solves the transition path to the steady state. With --parent the steady
state is taken from a saved run; otherwise it is solved first and saved as its
own run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := tpiFlags.config(store.KindTPI)
		cfg.Parent = tpiParent
		return execute(cmd, cfg)
	},
}

func init() {
	ssFlags.register(ssCmd)
	tpiFlags.register(tpiCmd)
	tpiCmd.Flags().StringVar(&tpiParent, "parent", "", "Saved steady-state run to start from")

	rootCmd.AddCommand(ssCmd)
	rootCmd.AddCommand(tpiCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openRunner() (*runner.Runner, error) {
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return runner.New(st), nil
}

func execute(cmd *cobra.Command, cfg store.RunConfig) error {
	rn, err := openRunner()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	out, err := rn.Execute(ctx, "", cfg, nil)
	if out != nil {
		printOutcome(cmd.OutOrStdout(), out)
	}
	return err
}

func printOutcome(w io.Writer, out *runner.Outcome) {
	if out.Parent != nil {
		fmt.Fprintf(w, "Steady state: run %s\n", out.Parent.ID)
	}
	if out.Run == nil {
		return
	}
	run := out.Run
	fmt.Fprintf(w, "Run %s (%s): ", run.ID, run.Config.Kind)
	if run.Converged {
		fmt.Fprintf(w, "converged in %d iterations, residual %.3g, %s\n", run.Iterations, run.Residual, run.Elapsed.Round(time.Millisecond))
	} else {
		fmt.Fprintf(w, "failed after %d iterations: %s\n", run.Iterations, run.Error)
		return
	}

	switch {
	case out.TPI != nil:
		printTransition(w, out.TPI)
	case out.SS != nil:
		printSteadyState(w, out.SS)
		printSummary(w, run.Summary)
	}
}

func printSteadyState(w io.Writer, res *ss.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nVARIABLE\tVALUE")
	for _, row := range []struct {
		name  string
		value float64
	}{
		{"K", res.K}, {"L", res.L}, {"Y", res.Y}, {"C", res.C}, {"I", res.I},
		{"B", res.B}, {"BQ", res.BQ}, {"TR", res.TR}, {"G", res.G}, {"D", res.D},
		{"r", res.R}, {"w", res.W}, {"r_gov", res.RGov}, {"r_hh", res.RHH},
		{"revenue", res.Revenue}, {"resource error", res.ResourceError},
	} {
		fmt.Fprintf(tw, "%s\t%.6g\n", row.name, row.value)
	}
	tw.Flush()
}

func printTransition(w io.Writer, res *tpi.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nPERIOD\tK\tY\tC\tr\tw\tD")
	n := len(res.K)
	for _, t := range []int{0, 1, 2, 5, 10, 20, 50, n / 2, n - 1} {
		if t >= n {
			continue
		}
		fmt.Fprintf(tw, "%d\t%.5g\t%.5g\t%.5g\t%.5g\t%.5g\t%.5g\n", t, res.K[t], res.Y[t], res.C[t], res.R[t], res.W[t], res.D[t])
	}
	tw.Flush()
	fmt.Fprintf(w, "Max Euler error %.3g, max labor error %.3g\n", res.EulerError, res.LaborError)
}

func printSummary(w io.Writer, summary map[string]float64) {
	if len(summary) == 0 {
		return
	}
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nWEALTH STATISTIC\tVALUE")
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%.4f\n", name, summary[name])
	}
	tw.Flush()
}
