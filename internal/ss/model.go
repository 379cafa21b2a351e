package ss

import (
	"context"
	"fmt"
	"math"

	"github.com/cwbudde/ogsolve/internal/aggregate"
	"github.com/cwbudde/ogsolve/internal/firm"
	"github.com/cwbudde/ogsolve/internal/fiscal"
	"github.com/cwbudde/ogsolve/internal/household"
	"github.com/cwbudde/ogsolve/internal/opt"
	"github.com/cwbudde/ogsolve/internal/params"
	"github.com/cwbudde/ogsolve/internal/pool"
	"github.com/cwbudde/ogsolve/internal/solver"
)

// Positions of the outer unknowns.
const (
	iK = iota
	iL
	iBQ
	iTR
	nVars
)

// model evaluates the steady-state map x -> implied(x).
type model struct {
	p    *params.Specifications
	pool pool.Pool
	opts solver.Options

	// index of the period whose parameters describe the steady state
	t    int
	tech firm.Technology

	// last household solutions, used as starting points
	warm []*household.Solution
}

func newModel(p *params.Specifications, pl pool.Pool, opts solver.Options) *model {
	t := p.T + p.S - 1
	return &model{
		p:    p,
		pool: pl,
		opts: opts,
		t:    t,
		tech: firm.Technology{
			Z:        p.Z[t],
			Gamma:    p.Gamma,
			Epsilon:  p.Epsilon,
			Delta:    p.Delta,
			TauB:     p.TauB[t],
			DeltaTau: p.DeltaTau[t],
		},
		warm: make([]*household.Solution, p.J()),
	}
}

// growth returns the steady-state growth factor of aggregates.
func (m *model) growth() float64 {
	return math.Exp(m.p.GY) * (1 + m.p.GNSS)
}

// evaluation is everything computed at one guess.
type evaluation struct {
	x       [nVars]float64
	implied [nVars]float64

	r, w, Y, mpk    float64
	D, rGov, rHH    float64
	ubi, businessTx float64

	B, C, revenue   float64
	kOpen           float64
	kDom, kFor      float64
	dDom, dFor      float64
	households      []*household.Solution
	bNext, n, c, tx [][]float64
}

func (ev *evaluation) residual() float64 {
	return solver.MaxAbsDiff(ev.x[:], ev.implied[:])
}

func (m *model) lifetime(j int, ev *evaluation) *household.Lifetime {
	p, t, S := m.p, m.t, m.p.S
	lt := &household.Lifetime{
		R:    make([]float64, S),
		W:    make([]float64, S),
		BQ:   make([]float64, S),
		TR:   make([]float64, S),
		UBI:  make([]float64, S),
		E:    make([]float64, S),
		Rho:  p.Rho,
		ChiN: p.ChiN,
		TauC: make([]float64, S),
		ETR:  p.ETRParams[t],
		MTRx: p.MTRxParams[t],
		MTRy: p.MTRyParams[t],

		Beta:     p.Beta,
		Sigma:    p.Sigma,
		GY:       p.GY,
		ChiB:     p.ChiB[j],
		Ltilde:   p.Ltilde,
		BEllipse: p.BEllipse,
		Upsilon:  p.Upsilon,
	}
	for s := 0; s < S; s++ {
		lt.R[s] = ev.rHH
		lt.W[s] = ev.w
		lt.BQ[s] = ev.x[iBQ]
		lt.TR[s] = ev.x[iTR]
		lt.UBI[s] = ev.ubi
		lt.E[s] = p.E[s][j]
		lt.TauC[s] = p.TauC[t][s][j]
	}
	return lt
}

// evaluate solves every household type at the prices implied by x and
// aggregates their decisions.
func (m *model) evaluate(ctx context.Context, x []float64) (*evaluation, error) {
	p, t := m.p, m.t
	ev := &evaluation{}
	copy(ev.x[:], x)
	K, L := x[iK], x[iL]

	if !(K > 0) || !(L > 0) {
		return nil, &solver.NumericalError{Where: "ss guess", Period: -1, Err: fmt.Errorf("K=%g L=%g: %w", K, L, opt.ErrInfeasible)}
	}

	var err error
	if ev.r, ev.w, ev.Y, err = m.tech.Prices(K, L); err != nil {
		return nil, err
	}
	if ev.mpk, err = m.tech.MPK(K, L); err != nil {
		return nil, err
	}
	ev.D = fiscal.SteadyStateDebt(p.BudgetBalance, p.DebtRatioSS, ev.Y)
	ev.rGov = fiscal.RGov(ev.r, p.RGovScale, p.RGovShift)
	ev.rHH = fiscal.PortfolioReturn(ev.r, ev.rGov, K, ev.D)
	ev.ubi = p.UBIPath[t]

	settings := household.Settings{Tolerance: m.opts.InnerTolerance, MaxIterations: m.opts.InnerMaxIterations}
	types := make([]int, p.J())
	for j := range types {
		types[j] = j
	}
	ev.households, err = pool.Map(ctx, m.pool, types, func(_ context.Context, j int) (*household.Solution, error) {
		var guessB, guessN []float64
		if w := m.warm[j]; w != nil {
			guessB, guessN = w.BNext, w.N
		}
		sol, err := household.Solve(m.lifetime(j, ev), guessB, guessN, settings)
		if err != nil {
			return nil, fmt.Errorf("ability type %d: %w", j, err)
		}
		return sol, nil
	})
	if err != nil {
		return nil, err
	}

	S, J := p.S, p.J()
	ev.bNext, ev.n, ev.c, ev.tx = matrix(S, J), matrix(S, J), matrix(S, J), matrix(S, J)
	for j, sol := range ev.households {
		for s := 0; s < S; s++ {
			ev.bNext[s][j] = sol.BNext[s]
			ev.n[s][j] = sol.N[s]
			ev.c[s][j] = sol.C[s]
			ev.tx[s][j] = sol.Tax[s]
		}
	}

	omega, lambdas := p.OmegaSS, p.Lambdas
	ev.B = aggregate.Savings(ev.bNext, omega, lambdas, p.GNSS)
	ev.C = aggregate.Weighted(ev.c, omega, lambdas)
	ev.businessTx = fiscal.BusinessTax(m.tech.TauB, m.tech.DeltaTau, ev.mpk, K)
	ev.revenue = aggregate.Revenue(ev.tx, ev.c, p.TauC[t], omega, lambdas, ev.businessTx)

	ev.dDom, ev.dFor = fiscal.SplitDebt(ev.D, p.ZetaD[t])
	ev.kOpen = ev.B - ev.dDom
	if p.ZetaK[t] > 0 {
		if ev.kOpen, err = m.tech.CapitalDemand(p.WorldIntRate[t], L); err != nil {
			return nil, err
		}
	}
	var kNew float64
	kNew, ev.kDom, ev.kFor = aggregate.Capital(ev.B, ev.dDom, ev.kOpen, p.ZetaK[t])

	ev.implied[iK] = kNew
	ev.implied[iL] = aggregate.Labor(ev.n, p.E, omega, lambdas)
	ev.implied[iBQ] = aggregate.Bequests(ev.bNext, p.Rho, omega, lambdas, ev.rHH, p.GNSS)
	ev.implied[iTR] = fiscal.Transfers(p.BudgetBalance, p.AlphaT[t], ev.Y, ev.revenue, ev.ubi)

	if err := solver.CheckFinite("ss aggregates", -1, ev.implied[:]...); err != nil {
		return nil, err
	}
	return ev, nil
}

// accept records household solutions as the next starting points.
func (m *model) accept(ev *evaluation) {
	copy(m.warm, ev.households)
}

// initialGuess derives a starting point from the world interest rate.
func (m *model) initialGuess() []float64 {
	p, t := m.p, m.t
	L := 0.4 * p.Ltilde
	K, err := m.tech.CapitalDemand(p.WorldIntRate[t], L)
	if err != nil || !(K > 0) {
		K = 1
	}
	Y, err := m.tech.Output(K, L)
	if err != nil {
		Y = 1
	}
	deaths := 0.0
	for s, w := range p.OmegaSS {
		deaths += p.Rho[s] * w
	}
	x := make([]float64, nVars)
	x[iK] = K
	x[iL] = L
	x[iBQ] = (1 + p.WorldIntRate[t]) * deaths * K
	x[iTR] = fiscal.Transfers(p.BudgetBalance, p.AlphaT[t], Y, 0, p.UBIPath[t])
	if p.BudgetBalance {
		x[iTR] = 0
	}
	return x
}

func matrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
