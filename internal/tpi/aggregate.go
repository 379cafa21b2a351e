package tpi

import (
	"fmt"

	"github.com/cwbudde/ogsolve/internal/aggregate"
	"github.com/cwbudde/ogsolve/internal/fiscal"
	"github.com/cwbudde/ogsolve/internal/solver"
)

// aggregates are the per-period series implied by one round of household
// solutions. All slices have length T+S.
type aggregates struct {
	K, L, Y, C, I, B   []float64
	BQ, TR, G, D       []float64
	R, W, Revenue, UBI []float64
	KDom, KFor         []float64
	DDom, DFor         []float64
}

func newAggregates(n int) *aggregates {
	f := func() []float64 { return make([]float64, n) }
	return &aggregates{
		K: f(), L: f(), Y: f(), C: f(), I: f(), B: f(),
		BQ: f(), TR: f(), G: f(), D: f(),
		R: f(), W: f(), Revenue: f(), UBI: f(),
		KDom: f(), KFor: f(), DDom: f(), DFor: f(),
	}
}

// aggregate sums the arena period by period. Wealth and bequests in period t
// come from savings chosen in t-1; debt follows the budget constraint from D0
// under the spending closure.
func (m *model) aggregate(pa *paths, rGov, rHH []float64) (*aggregates, error) {
	p, ar := m.p, m.arena
	agg := newAggregates(m.periods)
	debt := m.init.D0

	for t := 0; t < m.periods; t++ {
		bPrev, omegaPrev := m.init.BInit, p.OmegaSPreTP
		if t > 0 {
			bPrev, omegaPrev = ar.period(ar.b, t-1), p.Omega[t-1]
		}
		omega := p.Omega[t]
		n, c, tax := ar.period(ar.n, t), ar.period(ar.c, t), ar.period(ar.tax, t)

		agg.B[t] = aggregate.Savings(bPrev, omegaPrev, p.Lambdas, p.GN[t])
		agg.BQ[t] = aggregate.Bequests(bPrev, p.Rho, omegaPrev, p.Lambdas, rHH[t], p.GN[t])
		agg.L[t] = aggregate.Labor(n, p.E, omega, p.Lambdas)
		agg.C[t] = aggregate.Weighted(c, omega, p.Lambdas)
		agg.UBI[t] = p.UBIPath[t]

		agg.D[t] = debt
		agg.DDom[t], agg.DFor[t] = fiscal.SplitDebt(debt, p.ZetaD[t])

		tech := technology(p, t)
		kOpen := agg.B[t] - agg.DDom[t]
		if p.ZetaK[t] > 0 {
			k, err := tech.CapitalDemand(p.WorldIntRate[t], agg.L[t])
			if err != nil {
				return nil, fmt.Errorf("period %d: %w", t, err)
			}
			kOpen = k
		}
		agg.K[t], agg.KDom[t], agg.KFor[t] = aggregate.Capital(agg.B[t], agg.DDom[t], kOpen, p.ZetaK[t])

		r, w, Y, err := tech.Prices(agg.K[t], agg.L[t])
		if err != nil {
			return nil, fmt.Errorf("period %d: %w", t, err)
		}
		mpk, err := tech.MPK(agg.K[t], agg.L[t])
		if err != nil {
			return nil, fmt.Errorf("period %d: %w", t, err)
		}
		agg.R[t], agg.W[t], agg.Y[t] = r, w, Y

		businessTax := fiscal.BusinessTax(tech.TauB, tech.DeltaTau, mpk, agg.K[t])
		agg.Revenue[t] = aggregate.Revenue(tax, c, p.TauC[t], omega, p.Lambdas, businessTax)
		agg.TR[t] = fiscal.Transfers(p.BudgetBalance, p.AlphaT[t], Y, agg.Revenue[t], agg.UBI[t])

		growth := m.growthNext(t)
		agg.G[t] = m.closure.Spending(t, p.AlphaG[t], Y, debt, rGov[t], pa.tr[t], agg.UBI[t], agg.Revenue[t], growth)
		if p.BudgetBalance {
			debt = 0
		} else {
			debt = fiscal.NextDebt(debt, rGov[t], agg.G[t], pa.tr[t], agg.UBI[t], agg.Revenue[t], growth)
		}

		if err := solver.CheckFinite("tpi aggregates", t,
			agg.K[t], agg.L[t], Y, r, w, agg.BQ[t], agg.TR[t], agg.G[t], debt); err != nil {
			return nil, err
		}
	}

	for t := 0; t < m.periods; t++ {
		kNext := m.base.K
		if t+1 < m.periods {
			kNext = agg.K[t+1]
		}
		agg.I[t] = aggregate.Investment(agg.K[t], kNext, p.Delta, m.growthNext(t))
	}
	return agg, nil
}
