package tpi

import (
	"github.com/cwbudde/ogsolve/internal/aggregate"
	"github.com/cwbudde/ogsolve/internal/firm"
	"github.com/cwbudde/ogsolve/internal/fiscal"
	"github.com/cwbudde/ogsolve/internal/params"
	"github.com/cwbudde/ogsolve/internal/solver"
	"github.com/cwbudde/ogsolve/internal/ss"
)

// InitialState is the economy inherited at t=0.
type InitialState struct {
	// BInit[s][j] is the savings the type-j household of age s chose in the
	// period before the transition starts.
	BInit [][]float64

	// D0 is government debt outstanding at t=0.
	D0 float64
}

// DefaultInitialState starts from steady-state wealth and the calibrated
// initial debt ratio.
func DefaultInitialState(p *params.Specifications, base *ss.Result) *InitialState {
	b := make([][]float64, len(base.BSavings))
	for s := range b {
		b[s] = append([]float64(nil), base.BSavings[s]...)
	}
	d0 := p.InitialDebtRatio * base.Y
	if p.BudgetBalance {
		d0 = 0
	}
	return &InitialState{BInit: b, D0: d0}
}

func (st *InitialState) validate(S, J int) error {
	if len(st.BInit) != S {
		return solver.Configf("initial_wealth", "has %d ages, want %d", len(st.BInit), S)
	}
	for s, row := range st.BInit {
		if len(row) != J {
			return solver.Configf("initial_wealth", "age %d has %d types, want %d", s, len(row), J)
		}
		if err := solver.CheckFinite("initial wealth", 0, row...); err != nil {
			return err
		}
	}
	return solver.CheckFinite("initial debt", 0, st.D0)
}

// paths are the guessed time series households take as given.
type paths struct {
	r, w, bq, tr []float64
	// capital and debt weight the household portfolio return
	k, d []float64
}

// technology returns the firm of period t.
func technology(p *params.Specifications, t int) firm.Technology {
	return firm.Technology{
		Z:        p.Z[t],
		Gamma:    p.Gamma,
		Epsilon:  p.Epsilon,
		Delta:    p.Delta,
		TauB:     p.TauB[t],
		DeltaTau: p.DeltaTau[t],
	}
}

// initialPaths moves each guessed series from the value implied by the
// initial state to its steady-state value.
func initialPaths(p *params.Specifications, base *ss.Result, init *InitialState, shape string) (*paths, error) {
	T, S := p.T, p.S

	B1 := aggregate.Savings(init.BInit, p.OmegaSPreTP, p.Lambdas, p.GN[0])
	dDom, _ := fiscal.SplitDebt(init.D0, p.ZetaD[0])
	tech := technology(p, 0)
	kOpen := B1 - dDom
	if p.ZetaK[0] > 0 {
		if k, err := tech.CapitalDemand(p.WorldIntRate[0], base.L); err == nil {
			kOpen = k
		}
	}
	K1, _, _ := aggregate.Capital(B1, dDom, kOpen, p.ZetaK[0])

	r1, w1, Y1 := base.R, base.W, base.Y
	if K1 > 0 {
		r, w, Y, err := tech.Prices(K1, base.L)
		if err == nil {
			r1, w1, Y1 = r, w, Y
		}
	} else {
		K1 = base.K
	}
	rGov1 := fiscal.RGov(r1, p.RGovScale, p.RGovShift)
	rHH1 := fiscal.PortfolioReturn(r1, rGov1, K1, init.D0)
	BQ1 := aggregate.Bequests(init.BInit, p.Rho, p.OmegaSPreTP, p.Lambdas, rHH1, p.GN[0])
	TR1 := base.TR
	if !p.BudgetBalance && base.Y > 0 {
		TR1 = base.TR * Y1 / base.Y
	}

	build := func(x1, xT float64) ([]float64, error) {
		return solver.InitialPath(x1, xT, T, S, shape)
	}
	var (
		pa  paths
		err error
	)
	if pa.r, err = build(r1, base.R); err != nil {
		return nil, err
	}
	if pa.w, err = build(w1, base.W); err != nil {
		return nil, err
	}
	if pa.bq, err = build(BQ1, base.BQ); err != nil {
		return nil, err
	}
	if pa.tr, err = build(TR1, base.TR); err != nil {
		return nil, err
	}
	if pa.k, err = build(K1, base.K); err != nil {
		return nil, err
	}
	if pa.d, err = build(init.D0, base.D); err != nil {
		return nil, err
	}
	return &pa, nil
}
