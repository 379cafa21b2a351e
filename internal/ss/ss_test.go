package ss

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cwbudde/ogsolve/internal/firm"
	"github.com/cwbudde/ogsolve/internal/params"
	"github.com/cwbudde/ogsolve/internal/pool"
	"github.com/cwbudde/ogsolve/internal/solver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func smallParams(t *testing.T, edit func(p *params.Specifications)) *params.Specifications {
	t.Helper()
	p := params.Small()
	if edit != nil {
		edit(p)
	}
	require.NoError(t, p.Compute())
	return p
}

func testOptions() solver.Options {
	opts := DefaultOptions()
	opts.MaxIterations = 500
	return opts
}

func TestSolveSmall(t *testing.T) {
	p := smallParams(t, nil)
	res, err := Solve(context.Background(), p, nil, testOptions())
	require.NoError(t, err)

	assert.Less(t, res.Residual, 1e-9)
	assert.Greater(t, res.Iterations, 0)
	assert.Greater(t, res.K, 0.0)
	assert.Greater(t, res.L, 0.0)
	assert.Greater(t, res.BQ, 0.0)

	// prices are the firm's at the solution
	tech := firm.Technology{Z: 1, Gamma: p.Gamma, Epsilon: p.Epsilon, Delta: p.Delta,
		TauB: p.TauB[p.T+p.S-1], DeltaTau: p.DeltaTau[p.T+p.S-1]}
	r, w, Y, err := tech.Prices(res.K, res.L)
	require.NoError(t, err)
	assert.InDelta(t, r, res.R, 1e-14)
	assert.InDelta(t, w, res.W, 1e-14)
	assert.InDelta(t, Y, res.Y, 1e-14)

	// debt is pinned to its ratio and spending keeps it there
	assert.InDelta(t, p.DebtRatioSS*res.Y, res.D, 1e-14)
	assert.Less(t, math.Abs(res.BudgetError), 1e-9)
	assert.Less(t, math.Abs(res.ResourceError), 1e-6)

	require.Len(t, res.BSavings, p.S)
	require.Len(t, res.BSavings[0], p.J())
	for s := range res.N {
		for j := range res.N[s] {
			assert.Greater(t, res.N[s][j], 0.0)
			assert.Less(t, res.N[s][j], p.Ltilde)
			assert.Greater(t, res.Cons[s][j], 0.0)
			assert.Less(t, math.Abs(res.EulerErrors[s][j]), 1e-8)
			assert.Less(t, math.Abs(res.LaborErrors[s][j]), 1e-8)
		}
	}
}

func TestDefaultMethodIsNewton(t *testing.T) {
	assert.Equal(t, solver.MethodNewton, DefaultOptions().Method)
	assert.Equal(t, "newton", methodName(""))
}

func TestNewtonAgreesWithFixedPoint(t *testing.T) {
	p := smallParams(t, nil)
	opts := testOptions()
	opts.Method = solver.MethodFixedPoint
	fp, err := Solve(context.Background(), p, nil, opts)
	require.NoError(t, err)

	nt, err := Solve(context.Background(), p, nil, testOptions())
	require.NoError(t, err)

	assert.InDelta(t, fp.K, nt.K, 1e-7)
	assert.InDelta(t, fp.L, nt.L, 1e-7)
	assert.InDelta(t, fp.BQ, nt.BQ, 1e-7)
	assert.InDelta(t, fp.TR, nt.TR, 1e-7)
	assert.Less(t, nt.Iterations, fp.Iterations)
}

func TestSolveIndependentOfPoolSize(t *testing.T) {
	p := smallParams(t, nil)
	var want solver.Output
	for _, size := range []int{1, 2, 8} {
		res, err := Solve(context.Background(), p, pool.New(size), testOptions())
		require.NoError(t, err, "pool size %d", size)
		got := res.Vars()
		if want == nil {
			want = got
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("pool size %d changed the result (-want +got):\n%s", size, diff)
		}
	}
}

func TestBudgetBalance(t *testing.T) {
	p := smallParams(t, func(p *params.Specifications) {
		p.BudgetBalance = true
	})
	res, err := Solve(context.Background(), p, pool.New(2), testOptions())
	require.NoError(t, err)

	assert.Zero(t, res.D)
	assert.Zero(t, res.G)
	assert.InDelta(t, res.Revenue-res.UBI, res.TR, 1e-8)
	assert.InDelta(t, res.R, res.RHH, 1e-15)
}

func TestSmallOpenEconomy(t *testing.T) {
	p := smallParams(t, func(p *params.Specifications) {
		p.ZetaK = []float64{1}
	})
	res, err := Solve(context.Background(), p, nil, testOptions())
	require.NoError(t, err)

	// foreign capital pins the return to the world rate
	assert.InDelta(t, p.WorldIntRate[p.T+p.S-1], res.R, 1e-8)
	assert.InDelta(t, res.KDomestic+res.KForeign, res.K, 1e-8)
}

func TestIterationCap(t *testing.T) {
	p := smallParams(t, nil)
	for _, method := range []solver.Method{solver.MethodFixedPoint, solver.MethodNewton} {
		t.Run(string(method), func(t *testing.T) {
			opts := testOptions()
			opts.Method = method
			opts.MaxIterations = 2

			_, err := Solve(context.Background(), p, nil, opts)
			require.ErrorIs(t, err, solver.ErrConvergence)

			var ce *solver.ConvergenceError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "ss", ce.Solver)
			assert.Equal(t, 2, ce.Iterations)
			assert.Greater(t, ce.Residual, opts.Tolerance)
		})
	}
}

func TestIterationCapLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	defer slog.SetDefault(prev)

	p := smallParams(t, nil)
	opts := testOptions()
	opts.Method = solver.MethodFixedPoint
	opts.MaxIterations = 2
	_, err := Solve(context.Background(), p, nil, opts)
	require.ErrorIs(t, err, solver.ErrConvergence)

	var found bool
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var rec map[string]any
		require.NoError(t, dec.Decode(&rec))
		if rec["msg"] != "SS fixed point did not converge" {
			continue
		}
		found = true
		assert.Equal(t, "WARN", rec["level"])
		assert.EqualValues(t, 2, rec["iterations"])
		assert.Greater(t, rec["residual"], opts.Tolerance)
	}
	assert.True(t, found, "no convergence warning in %s", buf.String())
}

func TestConfigurationErrors(t *testing.T) {
	p := params.Small()
	_, err := Solve(context.Background(), p, nil, testOptions())
	assert.ErrorIs(t, err, solver.ErrConfiguration, "uncomputed parameters")

	p = smallParams(t, nil)
	p.ETRParams = p.ETRParams[:3]
	_, err = Solve(context.Background(), p, nil, testOptions())
	var ce *solver.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "etr_params", ce.Field)

	p = smallParams(t, nil)
	opts := testOptions()
	opts.Damping = 0
	_, err = Solve(context.Background(), p, nil, opts)
	assert.ErrorIs(t, err, solver.ErrConfiguration)
}

func TestCancelledContext(t *testing.T) {
	p := smallParams(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Solve(ctx, p, pool.New(4), testOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProgressReported(t *testing.T) {
	p := smallParams(t, nil)
	opts := testOptions()
	var seen []solver.Progress
	opts.OnIteration = func(pr solver.Progress) { seen = append(seen, pr) }

	res, err := Solve(context.Background(), p, nil, opts)
	require.NoError(t, err)
	require.Len(t, seen, res.Iterations)
	assert.Equal(t, "ss", seen[0].Solver)
	assert.Equal(t, 1, seen[0].Iteration)
	assert.Less(t, seen[len(seen)-1].Residual, opts.Tolerance)
}

func TestFromVars(t *testing.T) {
	p := smallParams(t, nil)
	res, err := Solve(context.Background(), p, nil, testOptions())
	require.NoError(t, err)

	back, err := FromVars(res.Vars())
	require.NoError(t, err)
	if diff := cmp.Diff(res, back, cmpopts.EquateApprox(0, 1e-15)); diff != "" {
		t.Errorf("FromVars mismatch (-want +got):\n%s", diff)
	}

	vars := res.Vars()
	delete(vars, "Kss")
	_, err = FromVars(vars)
	assert.ErrorContains(t, err, "Kss")
}
