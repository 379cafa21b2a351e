package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cwbudde/ogsolve/internal/solver"
	"github.com/cwbudde/ogsolve/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRunner(t *testing.T) *Runner {
	t.Helper()
	st, err := store.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return New(st)
}

// balancedParams writes a parameter file under which the transition path
// starts at the steady state.
func balancedParams(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "balanced.yaml")
	data := "budget_balance: true\nzero_taxes: true\nzeta_D: [0]\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func ssConfig() store.RunConfig {
	return store.RunConfig{
		Kind:          store.KindSS,
		Preset:        "small",
		MaxIterations: 500,
		Workers:       2,
	}
}

func TestNormalize(t *testing.T) {
	cfg := Normalize(store.RunConfig{})
	assert.Equal(t, store.KindSS, cfg.Kind)
	assert.Equal(t, "newton", cfg.Method)
	assert.Equal(t, 1e-9, cfg.Tolerance)
	assert.Positive(t, cfg.Workers)

	cfg = Normalize(store.RunConfig{Kind: store.KindTPI, Damping: 0.2})
	assert.Equal(t, 1e-5, cfg.Tolerance)
	assert.Equal(t, 0.2, cfg.Damping)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := Normalize(store.RunConfig{Kind: store.KindSS, Method: "newton", InitialSearch: true, SkipChecks: true})
	opts := options(cfg)
	assert.Equal(t, solver.MethodNewton, opts.Method)
	assert.True(t, opts.InitialSearch)
	assert.False(t, opts.EnforceSolutionChecks)
	require.NoError(t, opts.Validate())

	opts = options(Normalize(store.RunConfig{Kind: store.KindTPI}))
	assert.True(t, opts.EnforceSolutionChecks)
	assert.Equal(t, 1e-5, opts.Tolerance)
}

func TestLoadParamsOverridesDimensions(t *testing.T) {
	cfg := store.RunConfig{Preset: "small", T: 45}
	p, err := LoadParams(&cfg)
	require.NoError(t, err)
	assert.True(t, p.Computed())
	assert.Equal(t, 45, p.T)
	assert.Len(t, p.AlphaG, p.T+p.S)
	assert.Equal(t, 20, cfg.S)
	assert.Equal(t, 2, cfg.J)

	_, err = LoadParams(&store.RunConfig{Preset: "huge"})
	assert.True(t, errors.Is(err, solver.ErrConfiguration))
}

func TestExecuteSteadyState(t *testing.T) {
	r := newRunner(t)

	var mu sync.Mutex
	var seen []solver.Progress
	out, err := r.Execute(context.Background(), "", ssConfig(), func(id string, p solver.Progress) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, p)
	})
	require.NoError(t, err)
	require.NotNil(t, out.Run)
	require.NotNil(t, out.SS)
	assert.Nil(t, out.TPI)

	run := out.Run
	assert.NotEmpty(t, run.ID)
	assert.True(t, run.Converged)
	assert.Equal(t, out.SS.Iterations, run.Iterations)
	assert.Contains(t, run.Summary, "gini")
	assert.InDelta(t, out.SS.K, run.Outputs.Float("Kss"), 0)

	loaded, err := r.Store().LoadRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Iterations, loaded.Iterations)

	reader, err := store.NewTraceReader(r.Store().BaseDir(), run.ID)
	require.NoError(t, err)
	defer reader.Close()
	entries, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Len(t, entries, run.Iterations)
	assert.Len(t, seen, run.Iterations)
	assert.Equal(t, "ss", entries[0].Solver)
}

func TestExecuteTransitionFromParent(t *testing.T) {
	r := newRunner(t)
	cfg := ssConfig()
	cfg.ParamsPath = balancedParams(t)

	parent, err := r.Execute(context.Background(), "", cfg, nil)
	require.NoError(t, err)

	out, err := r.Execute(context.Background(), "tpi-run", store.RunConfig{
		Kind:          store.KindTPI,
		Parent:        parent.Run.ID,
		MaxIterations: 5,
		Workers:       2,
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, out.TPI)

	assert.Equal(t, "tpi-run", out.Run.ID)
	assert.Equal(t, parent.Run.ID, out.Run.Config.Parent)
	assert.Equal(t, cfg.ParamsPath, out.Run.Config.ParamsPath)
	assert.Equal(t, parent.Run.ID, out.Parent.ID)
	assert.InDelta(t, parent.SS.K, out.TPI.K[0], 1e-6)

	infos, err := r.Store().ListRuns()
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestExecuteTransitionSolvesSteadyStateFirst(t *testing.T) {
	r := newRunner(t)
	cfg := ssConfig()
	cfg.Kind = store.KindTPI
	cfg.ParamsPath = balancedParams(t)

	out, err := r.Execute(context.Background(), "", cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, out.Parent)
	assert.Equal(t, store.KindSS, out.Parent.Config.Kind)
	assert.Equal(t, out.Parent.ID, out.Run.Config.Parent)
	assert.Equal(t, 1e-5, out.Run.Config.Tolerance)
	assert.Equal(t, 1e-9, out.Parent.Config.Tolerance)
}

func TestExecuteSavesFailedRun(t *testing.T) {
	r := newRunner(t)
	cfg := ssConfig()
	cfg.MaxIterations = 2

	out, err := r.Execute(context.Background(), "capped", cfg, nil)
	var ce *solver.ConvergenceError
	require.ErrorAs(t, err, &ce)

	assert.False(t, out.Run.Converged)
	assert.Equal(t, 2, out.Run.Iterations)
	assert.NotEmpty(t, out.Run.Error)

	loaded, err := r.Store().LoadRun("capped")
	require.NoError(t, err)
	assert.False(t, loaded.Converged)
	assert.Empty(t, loaded.Outputs)
}

func TestExecuteRejectsBadParents(t *testing.T) {
	r := newRunner(t)

	_, err := r.Execute(context.Background(), "", store.RunConfig{Kind: store.KindTPI, Parent: "missing"}, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	failed, _ := r.Execute(context.Background(), "", func() store.RunConfig {
		c := ssConfig()
		c.MaxIterations = 1
		return c
	}(), nil)
	_, err = r.Execute(context.Background(), "", store.RunConfig{Kind: store.KindTPI, Parent: failed.Run.ID}, nil)
	var ce *store.CompatibilityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Converged", ce.Field)

	_, err = r.Execute(context.Background(), "", store.RunConfig{Kind: "mc"}, nil)
	assert.ErrorIs(t, err, solver.ErrConfiguration)
}

func TestExecuteCancelled(t *testing.T) {
	r := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := r.Execute(ctx, "cancelled", ssConfig(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out.Run)
	assert.False(t, out.Run.Converged)
}
