// Package runner executes solver runs described by a store.RunConfig: it
// loads parameters, solves the steady state and optionally the transition
// path, records the iteration trace and saves every run to the store.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/ogsolve/internal/inequality"
	"github.com/cwbudde/ogsolve/internal/params"
	"github.com/cwbudde/ogsolve/internal/pool"
	"github.com/cwbudde/ogsolve/internal/solver"
	"github.com/cwbudde/ogsolve/internal/ss"
	"github.com/cwbudde/ogsolve/internal/store"
	"github.com/cwbudde/ogsolve/internal/tpi"
)

// ProgressFunc receives every outer iteration of a run.
type ProgressFunc func(runID string, p solver.Progress)

// Outcome is what one Execute call produced. For a transition path started
// without a parent, Parent is the steady-state run solved on the way.
type Outcome struct {
	Run    *store.Run
	Parent *store.Run
	SS     *ss.Result
	TPI    *tpi.Result
}

// Runner executes runs against a filesystem store.
type Runner struct {
	store *store.FSStore
}

// New creates a runner saving to st.
func New(st *store.FSStore) *Runner {
	return &Runner{store: st}
}

// Store returns the underlying store.
func (r *Runner) Store() *store.FSStore {
	return r.store
}

// Normalize fills zero fields of cfg with the solver defaults for its kind.
func Normalize(cfg store.RunConfig) store.RunConfig {
	if cfg.Kind == "" {
		cfg.Kind = store.KindSS
	}
	def := ss.DefaultOptions()
	if cfg.Kind == store.KindTPI {
		def = tpi.DefaultOptions()
	}
	if cfg.Method == "" {
		cfg.Method = string(def.Method)
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.Damping <= 0 {
		cfg.Damping = def.Damping
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg
}

// LoadParams builds the computed parameter bundle of cfg and records its
// final dimensions in cfg. Non-zero S and T in cfg override the preset.
func LoadParams(cfg *store.RunConfig) (*params.Specifications, error) {
	base, err := params.Preset(cfg.Preset)
	if err != nil {
		return nil, err
	}
	p, err := params.LoadFrom(base, cfg.ParamsPath)
	if err != nil {
		return nil, err
	}
	revision := map[string]any{}
	if cfg.S > 0 && cfg.S != p.S {
		revision["S"] = cfg.S
	}
	if cfg.T > 0 && cfg.T != p.T {
		revision["T"] = cfg.T
	}
	if len(revision) > 0 {
		if err := p.Update(revision); err != nil {
			return nil, fmt.Errorf("apply dimensions: %w", err)
		}
	}
	cfg.S, cfg.T, cfg.J = p.S, p.T, p.J()
	return p, nil
}

func options(cfg store.RunConfig) solver.Options {
	opts := ss.DefaultOptions()
	if cfg.Kind == store.KindTPI {
		opts = tpi.DefaultOptions()
	}
	opts.Method = solver.Method(cfg.Method)
	opts.Tolerance = cfg.Tolerance
	opts.MaxIterations = cfg.MaxIterations
	opts.Damping = cfg.Damping
	opts.InitialSearch = cfg.InitialSearch
	opts.EnforceSolutionChecks = !cfg.SkipChecks
	return opts
}

// Execute runs cfg under the given run ID (a new UUID when empty). Every
// solved or failed run is saved; the returned error is the solver error of
// the last stage, if any.
func (r *Runner) Execute(ctx context.Context, id string, cfg store.RunConfig, progress ProgressFunc) (*Outcome, error) {
	if id == "" {
		id = uuid.New().String()
	}
	cfg = Normalize(cfg)
	if cfg.Kind != store.KindSS && cfg.Kind != store.KindTPI {
		return nil, solver.Configf("kind", "unknown run kind %q", cfg.Kind)
	}

	var parent *store.Run
	if cfg.Kind == store.KindTPI && cfg.Parent != "" {
		var err error
		parent, err = r.store.LoadRun(cfg.Parent)
		if err != nil {
			return nil, fmt.Errorf("load parent run: %w", err)
		}
		// the transition must see the parameters the steady state was solved with
		cfg.Preset, cfg.ParamsPath = parent.Config.Preset, parent.Config.ParamsPath
		cfg.S, cfg.J = parent.Config.S, parent.Config.J
	}

	p, err := LoadParams(&cfg)
	if err != nil {
		return nil, err
	}
	pl := pool.New(cfg.Workers)
	out := &Outcome{}

	if cfg.Kind == store.KindSS {
		out.Run, out.SS, err = r.solveSS(ctx, id, cfg, p, pl, progress)
		return out, err
	}

	if parent == nil {
		ssCfg := cfg
		ssCfg.Kind = store.KindSS
		ssCfg.Tolerance = ss.DefaultOptions().Tolerance
		ssCfg.Parent = ""
		parentID := uuid.New().String()
		out.Parent, out.SS, err = r.solveSS(ctx, parentID, ssCfg, p, pl, progress)
		if err != nil {
			return out, err
		}
		cfg.Parent = parentID
	} else {
		if err := parent.IsCompatible(cfg); err != nil {
			return nil, err
		}
		out.Parent = parent
		if out.SS, err = ss.FromVars(parent.Outputs); err != nil {
			return nil, fmt.Errorf("restore steady state %s: %w", parent.ID, err)
		}
	}

	out.Run, out.TPI, err = r.solveTPI(ctx, id, cfg, p, out.SS, pl, progress)
	return out, err
}

func (r *Runner) solveSS(ctx context.Context, id string, cfg store.RunConfig, p *params.Specifications, pl pool.Pool, progress ProgressFunc) (*store.Run, *ss.Result, error) {
	trace, opts, err := r.traced(id, cfg, progress)
	if err != nil {
		return nil, nil, err
	}
	defer trace.Close()

	start := time.Now()
	res, solveErr := ss.Solve(ctx, p, pl, opts)

	var run *store.Run
	if solveErr == nil {
		run = store.NewRun(id, cfg, res.Vars(), res.Iterations, res.Residual, nil)
		run.Summary = Summary(p, res)
	} else {
		iters, residual := failure(solveErr)
		run = store.NewRun(id, cfg, nil, iters, residual, solveErr)
	}
	run.Elapsed = time.Since(start)
	if err := r.save(run); err != nil {
		return run, res, err
	}
	return run, res, solveErr
}

func (r *Runner) solveTPI(ctx context.Context, id string, cfg store.RunConfig, p *params.Specifications, base *ss.Result, pl pool.Pool, progress ProgressFunc) (*store.Run, *tpi.Result, error) {
	trace, opts, err := r.traced(id, cfg, progress)
	if err != nil {
		return nil, nil, err
	}
	defer trace.Close()

	start := time.Now()
	res, solveErr := tpi.Solve(ctx, p, base, pl, opts, nil)

	var run *store.Run
	if solveErr == nil {
		run = store.NewRun(id, cfg, res.Vars(), res.Iterations, res.Residual, nil)
	} else {
		iters, residual := failure(solveErr)
		run = store.NewRun(id, cfg, nil, iters, residual, solveErr)
	}
	run.Elapsed = time.Since(start)
	if err := r.save(run); err != nil {
		return run, res, err
	}
	return run, res, solveErr
}

// traced opens the trace of run id and returns solver options that write
// every iteration to it before forwarding to progress.
func (r *Runner) traced(id string, cfg store.RunConfig, progress ProgressFunc) (*store.TraceWriter, solver.Options, error) {
	opts := options(cfg)
	trace, err := store.NewTraceWriter(r.store.BaseDir(), id, false)
	if err != nil {
		return nil, opts, err
	}
	opts.OnIteration = func(pr solver.Progress) {
		if err := trace.Write(store.FromProgress(pr)); err != nil {
			slog.Warn("Failed to write trace entry", "runID", id, "error", err)
		}
		if progress != nil {
			progress(id, pr)
		}
	}
	return trace, opts, nil
}

func (r *Runner) save(run *store.Run) error {
	if err := r.store.SaveRun(run); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	slog.Info("Run saved",
		"runID", run.ID,
		"kind", run.Config.Kind,
		"converged", run.Converged,
		"iterations", run.Iterations,
		"residual", run.Residual,
		"elapsed", run.Elapsed.String(),
	)
	return nil
}

// failure extracts the iteration count and residual of a failed solve.
func failure(err error) (int, float64) {
	var ce *solver.ConvergenceError
	if errors.As(err, &ce) {
		return ce.Iterations, ce.Residual
	}
	return 0, 0
}

// Summary computes the wealth distribution statistics of a steady state.
// Statistics that are not finite, such as percentile ratios over zero
// wealth, are left out.
func Summary(p *params.Specifications, res *ss.Result) map[string]float64 {
	d, err := inequality.New(res.BSavings, p.OmegaSS, p.Lambdas)
	if err != nil {
		slog.Warn("Skipping inequality summary", "error", err)
		return nil
	}
	s := inequality.Summarize(d)
	out := map[string]float64{}
	for name, v := range map[string]float64{
		"gini":         s.Gini,
		"gini_age":     s.GiniAge,
		"gini_ability": s.GiniAbility,
		"var_of_logs":  s.VarOfLogs,
		"p90_p10":      s.P90P10,
		"top10_share":  s.Top10Share,
		"top1_share":   s.Top1Share,
	} {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[name] = v
		}
	}
	return out
}
