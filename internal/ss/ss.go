// Package ss solves for the steady state of the overlapping-generations
// model: the capital stock, labor, bequests and transfers that households
// reproduce when they face the prices those aggregates imply.
package ss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/ogsolve/internal/opt"
	"github.com/cwbudde/ogsolve/internal/params"
	"github.com/cwbudde/ogsolve/internal/pool"
	"github.com/cwbudde/ogsolve/internal/solver"
)

// DefaultOptions returns the steady-state defaults: Newton on the outer
// unknowns, with the damped fixed point available through Method.
func DefaultOptions() solver.Options {
	return solver.DefaultOptions()
}

// Solve computes the steady state of a computed parameter bundle. Work units
// (one per ability type) run on pl; a nil pool runs them sequentially.
func Solve(ctx context.Context, p *params.Specifications, pl pool.Pool, opts solver.Options) (*Result, error) {
	if p == nil || !p.Computed() {
		return nil, solver.Configf("params", "parameters must be computed before solving")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	m := newModel(p, pl, opts)
	x0 := m.initialGuess()

	if opts.InitialSearch {
		best, err := m.search(ctx, x0)
		if err != nil {
			return nil, fmt.Errorf("initial search: %w", err)
		}
		x0 = best
	}

	slog.Info("Solving steady state",
		"method", methodName(opts.Method),
		"S", p.S,
		"J", p.J(),
		"K0", x0[iK],
		"L0", x0[iL],
	)

	var (
		ev    *evaluation
		iters int
		err   error
	)
	switch opts.Method {
	case solver.MethodFixedPoint:
		ev, iters, err = m.fixedPoint(ctx, x0)
	default:
		ev, iters, err = m.newton(ctx, x0)
	}
	if err != nil {
		return nil, err
	}

	res := m.result(ev, iters)
	if err := m.check(res); err != nil {
		return nil, err
	}

	slog.Info("Steady state solved",
		"iterations", res.Iterations,
		"residual", res.Residual,
		"K", res.K,
		"r", res.R,
		"w", res.W,
		"elapsed", time.Since(start).String(),
	)
	return res, nil
}

func methodName(m solver.Method) string {
	if m == "" {
		return string(solver.MethodNewton)
	}
	return string(m)
}

// fixedPoint iterates x <- nu x' + (1-nu) x until max|x - x'| < tol.
func (m *model) fixedPoint(ctx context.Context, x []float64) (*evaluation, int, error) {
	tracker := solver.NewTracker("ss", solver.DefaultStallConfig())
	x = append([]float64(nil), x...)

	for iter := 1; iter <= m.opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, iter - 1, err
		}
		ev, err := m.evaluate(ctx, x)
		if err != nil {
			return nil, iter, fmt.Errorf("ss iteration %d: %w", iter, err)
		}
		m.accept(ev)

		dist := ev.residual()
		if math.IsNaN(dist) {
			return nil, iter, solver.Numericalf("ss", -1, "residual is NaN at iteration %d", iter)
		}
		tracker.Update(dist)
		m.opts.Report("ss", iter, dist)
		slog.Debug("SS iteration",
			"iteration", iter,
			"residual", dist,
			"K", x[iK],
			"L", x[iL],
			"BQ", x[iBQ],
			"TR", x[iTR],
		)

		if dist < m.opts.Tolerance {
			return ev, iter, nil
		}
		solver.ConvexCombo(x, ev.implied[:], x, m.opts.Damping)
	}
	slog.Warn("SS fixed point did not converge",
		"iterations", m.opts.MaxIterations,
		"residual", tracker.Last(),
		"damping", m.opts.Damping,
	)
	return nil, m.opts.MaxIterations, &solver.ConvergenceError{
		Solver:     "ss",
		Iterations: m.opts.MaxIterations,
		Residual:   tracker.Last(),
	}
}

// newton solves x - implied(x) = 0 with a finite-difference Newton method.
func (m *model) newton(ctx context.Context, x0 []float64) (*evaluation, int, error) {
	evals := 0
	f := func(x, out []float64) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := m.evaluate(ctx, x)
		if err != nil {
			if errors.Is(err, solver.ErrNumerical) {
				return opt.ErrInfeasible
			}
			return err
		}
		m.accept(ev)
		evals++
		for i := range out {
			out[i] = x[i] - ev.implied[i]
		}
		return nil
	}

	settings := opt.DefaultNewtonSettings()
	settings.Tolerance = m.opts.Tolerance
	settings.MaxIterations = m.opts.MaxIterations
	settings.MaxStep = 0
	settings.OnStep = func(iter int, residual float64) {
		m.opts.Report("ss", iter, residual)
		slog.Debug("SS Newton step", "iteration", iter, "residual", residual)
	}

	res, err := opt.Newton(f, x0, settings)
	if err != nil {
		switch {
		case errors.Is(err, opt.ErrMaxIterations), errors.Is(err, opt.ErrNoProgress):
			slog.Warn("SS Newton did not converge",
				"iterations", res.Iterations,
				"residual", res.Residual,
				"error", err,
			)
			return nil, res.Iterations, &solver.ConvergenceError{Solver: "ss", Iterations: res.Iterations, Residual: res.Residual}
		case errors.Is(err, opt.ErrInfeasible), errors.Is(err, opt.ErrSingular):
			return nil, res.Iterations, &solver.NumericalError{Where: "ss newton", Period: -1, Err: err}
		default:
			return nil, res.Iterations, err
		}
	}
	slog.Debug("SS Newton finished", "iterations", res.Iterations, "evaluations", evals)

	ev, err := m.evaluate(ctx, res.X)
	if err != nil {
		return nil, res.Iterations, err
	}
	return ev, res.Iterations, nil
}

// search runs the derivative-free optimizer over a box around x0 and returns
// the guess with the smallest squared fixed-point residual.
func (m *model) search(ctx context.Context, x0 []float64) ([]float64, error) {
	lower := []float64{0.25 * x0[iK], 0.25 * x0[iL], 0, math.Min(0, x0[iTR]) - 0.1}
	upper := []float64{4 * x0[iK], math.Min(2*x0[iL], m.p.Ltilde), 4*x0[iBQ] + 0.05, 3*math.Max(0, x0[iTR]) + 0.1}

	cost := func(x []float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		ev, err := m.evaluate(ctx, x)
		if err != nil {
			return math.Inf(1)
		}
		sum := 0.0
		for i := range x {
			d := x[i] - ev.implied[i]
			sum += d * d
		}
		return sum
	}

	o := opt.NewMayfly(m.opts.SearchIterations, m.opts.SearchPopulation, m.opts.Seed)
	best, bestCost, err := o.Run(cost, lower, upper)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// the household starting points left behind by the search are arbitrary
	for j := range m.warm {
		m.warm[j] = nil
	}
	slog.Info("Initial search finished", "cost", bestCost, "K", best[iK], "L", best[iL])
	if math.IsInf(bestCost, 1) {
		return x0, nil
	}
	return best, nil
}
