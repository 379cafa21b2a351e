// Package tpi solves the transition path: the sequence of prices, bequests
// and transfers that carries the economy from an initial distribution of
// wealth to its steady state.
package tpi

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/ogsolve/internal/fiscal"
	"github.com/cwbudde/ogsolve/internal/household"
	"github.com/cwbudde/ogsolve/internal/params"
	"github.com/cwbudde/ogsolve/internal/pool"
	"github.com/cwbudde/ogsolve/internal/solver"
	"github.com/cwbudde/ogsolve/internal/ss"
)

// DefaultOptions returns the transition-path defaults. Aggregates along the
// path are compared with a looser tolerance than in the steady state.
func DefaultOptions() solver.Options {
	opts := solver.DefaultOptions()
	opts.Tolerance = 1e-5
	return opts
}

type model struct {
	p    *params.Specifications
	base *ss.Result
	init *InitialState
	pool pool.Pool
	opts solver.Options

	T, S, J int
	periods int
	closure fiscal.Closure

	arena *arena
	// last solution per work unit, used as the next starting point
	warm []*household.Solution
}

// Solve computes the transition path from init to the steady state base. A
// nil init starts from steady-state wealth with the calibrated initial debt.
func Solve(ctx context.Context, p *params.Specifications, base *ss.Result, pl pool.Pool, opts solver.Options, init *InitialState) (*Result, error) {
	if p == nil || !p.Computed() {
		return nil, solver.Configf("params", "parameters must be computed before solving")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if base == nil || len(base.BSavings) != p.S || len(base.BSavings[0]) != p.J() {
		return nil, solver.Configf("steady_state", "does not match the parameter dimensions")
	}
	if init == nil {
		init = DefaultInitialState(p, base)
	}
	if err := init.validate(p.S, p.J()); err != nil {
		return nil, err
	}
	if pl == nil {
		pl = pool.Sequential{}
	}

	m := &model{
		p: p, base: base, init: init, pool: pl, opts: opts,
		T: p.T, S: p.S, J: p.J(),
		periods: p.T + p.S,
		closure: fiscal.Closure{
			BudgetBalance: p.BudgetBalance,
			TG1:           p.TG1,
			TG2:           p.TG2,
			RhoG:          p.RhoG,
			DebtRatioSS:   p.DebtRatioSS,
		},
	}
	m.arena = newArena(m.periods, m.S, m.J)
	m.arena.fillSteadyState(m.T, base)
	m.warm = make([]*household.Solution, m.J*m.cohorts())

	pa, err := initialPaths(p, base, init, opts.InitialPathShape)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	slog.Info("Solving transition path",
		"T", m.T,
		"S", m.S,
		"J", m.J,
		"work_units", len(m.warm),
		"pool_size", pl.Size(),
	)

	tracker := solver.NewTracker("tpi", solver.DefaultStallConfig())
	for iter := 1; iter <= opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rGov, rHH := m.returns(pa)
		if err := m.solveHouseholds(ctx, pa, rHH); err != nil {
			return nil, fmt.Errorf("tpi iteration %d: %w", iter, err)
		}
		agg, err := m.aggregate(pa, rGov, rHH)
		if err != nil {
			return nil, fmt.Errorf("tpi iteration %d: %w", iter, err)
		}

		dist := m.distance(pa, agg)
		if math.IsNaN(dist) {
			return nil, solver.Numericalf("tpi", -1, "residual is NaN at iteration %d", iter)
		}
		tracker.Update(dist)
		opts.Report("tpi", iter, dist)
		slog.Debug("TPI iteration",
			"iteration", iter,
			"residual", dist,
			"K0", agg.K[0],
			"r0", pa.r[0],
		)

		if dist < opts.Tolerance {
			res := m.result(pa, agg, rGov, rHH, iter, dist)
			if err := m.check(res); err != nil {
				return nil, err
			}
			slog.Info("Transition path solved",
				"iterations", iter,
				"residual", dist,
				"elapsed", time.Since(start).String(),
			)
			return res, nil
		}
		m.update(pa, agg)
	}
	slog.Warn("TPI did not converge",
		"iterations", opts.MaxIterations,
		"residual", tracker.Last(),
		"damping", opts.Damping,
	)
	return nil, &solver.ConvergenceError{
		Solver:     "tpi",
		Iterations: opts.MaxIterations,
		Residual:   tracker.Last(),
	}
}

// cohorts returns the number of birth periods with someone alive in
// [0, T): every cohort born in [-(S-1), T-1].
func (m *model) cohorts() int {
	return m.T + m.S - 1
}

// returns computes the government and household rates implied by the
// guessed interest rates. The tail carries the steady-state values.
func (m *model) returns(pa *paths) (rGov, rHH []float64) {
	p := m.p
	rGov = make([]float64, m.periods)
	rHH = make([]float64, m.periods)
	for t := 0; t < m.periods; t++ {
		if t >= m.T {
			rGov[t], rHH[t] = m.base.RGov, m.base.RHH
			continue
		}
		rGov[t] = fiscal.RGov(pa.r[t], p.RGovScale, p.RGovShift)
		rHH[t] = fiscal.PortfolioReturn(pa.r[t], rGov[t], pa.k[t], pa.d[t])
	}
	return rGov, rHH
}

// solveHouseholds solves every (ability type, birth cohort) unit on the pool
// and records the plans in the arena.
func (m *model) solveHouseholds(ctx context.Context, pa *paths, rHH []float64) error {
	settings := household.Settings{Tolerance: m.opts.InnerTolerance, MaxIterations: m.opts.InnerMaxIterations}
	nc := m.cohorts()
	return m.pool.Run(ctx, m.J*nc, func(_ context.Context, i int) error {
		j, c := i/nc, i%nc
		t0 := c - (m.S - 1)
		a0 := max(0, -t0)

		guessB, guessN := m.guess(i, j, a0)
		sol, err := household.Solve(m.lifetime(j, t0, a0, pa, rHH), guessB, guessN, settings)
		if err != nil {
			return fmt.Errorf("cohort born %d, ability type %d: %w", t0, j, err)
		}
		m.warm[i] = sol
		m.arena.store(j, t0, a0, sol)
		return nil
	})
}

// guess returns the previous plan of unit i, or the steady-state plan of the
// remaining ages on the first iteration.
func (m *model) guess(i, j, a0 int) (bNext, n []float64) {
	if w := m.warm[i]; w != nil {
		return w.BNext, w.N
	}
	L := m.S - a0
	bNext = make([]float64, L)
	n = make([]float64, L)
	for k := 0; k < L; k++ {
		bNext[k] = m.base.BSavings[a0+k][j]
		n[k] = m.base.N[a0+k][j]
	}
	return bNext, n
}

// lifetime describes the remaining life of the type-j cohort born at t0,
// which is a0 at its first period inside the window.
func (m *model) lifetime(j, t0, a0 int, pa *paths, rHH []float64) *household.Lifetime {
	p := m.p
	L := m.S - a0
	lt := &household.Lifetime{
		R:    make([]float64, L),
		W:    make([]float64, L),
		BQ:   make([]float64, L),
		TR:   make([]float64, L),
		UBI:  make([]float64, L),
		E:    make([]float64, L),
		Rho:  p.Rho[a0:],
		ChiN: p.ChiN[a0:],
		TauC: make([]float64, L),
		ETR:  make([][]float64, L),
		MTRx: make([][]float64, L),
		MTRy: make([][]float64, L),

		Beta:     p.Beta,
		Sigma:    p.Sigma,
		GY:       p.GY,
		ChiB:     p.ChiB[j],
		Ltilde:   p.Ltilde,
		BEllipse: p.BEllipse,
		Upsilon:  p.Upsilon,
	}
	if a0 > 0 {
		lt.B0 = m.init.BInit[a0-1][j]
	}
	for k := 0; k < L; k++ {
		s := a0 + k
		t := t0 + s
		lt.R[k] = rHH[t]
		lt.W[k] = pa.w[t]
		lt.BQ[k] = pa.bq[t]
		lt.TR[k] = pa.tr[t]
		lt.UBI[k] = p.UBIPath[t]
		lt.E[k] = p.E[s][j]
		lt.TauC[k] = p.TauC[t][s][j]
		lt.ETR[k] = p.ETRParams[t][s]
		lt.MTRx[k] = p.MTRxParams[t][s]
		lt.MTRy[k] = p.MTRyParams[t][s]
	}
	return lt
}

// distance is the largest gap between guessed and implied series over the
// first T periods.
func (m *model) distance(pa *paths, agg *aggregates) float64 {
	T := m.T
	d := 0.0
	for _, pair := range [][2][]float64{
		{pa.r[:T], agg.R[:T]},
		{pa.w[:T], agg.W[:T]},
		{pa.bq[:T], agg.BQ[:T]},
		{pa.tr[:T], agg.TR[:T]},
	} {
		dist := solver.MaxAbsDiff(pair[0], pair[1])
		if math.IsNaN(dist) {
			return dist
		}
		d = math.Max(d, dist)
	}
	return d
}

// update damps the guessed series toward the implied ones. Capital and debt
// are replaced outright; they only weight the portfolio return.
func (m *model) update(pa *paths, agg *aggregates) {
	T, nu := m.T, m.opts.Damping
	solver.ConvexCombo(pa.r[:T], agg.R[:T], pa.r[:T], nu)
	solver.ConvexCombo(pa.w[:T], agg.W[:T], pa.w[:T], nu)
	solver.ConvexCombo(pa.bq[:T], agg.BQ[:T], pa.bq[:T], nu)
	solver.ConvexCombo(pa.tr[:T], agg.TR[:T], pa.tr[:T], nu)
	copy(pa.k[:T], agg.K[:T])
	copy(pa.d[:T], agg.D[:T])
}

// growthNext is the growth factor of aggregates between t and t+1.
func (m *model) growthNext(t int) float64 {
	gn := m.p.GNSS
	if t+1 < len(m.p.GN) {
		gn = m.p.GN[t+1]
	}
	return math.Exp(m.p.GY) * (1 + gn)
}
