package fiscal

import "math"

// RGov returns the interest rate on government debt,
// max(scale*r - shift, 0).
func RGov(r, scale, shift float64) float64 {
	return math.Max(scale*r-shift, 0)
}

// PortfolioReturn returns the household return on a portfolio of capital and
// government debt held in proportion to their stocks. Without any stock it
// falls back to r.
func PortfolioReturn(r, rGov, K, D float64) float64 {
	if K+D <= 0 {
		return r
	}
	return (r*K + rGov*D) / (K + D)
}

// SplitDebt returns the domestic and foreign holdings of debt D.
func SplitDebt(D, zetaD float64) (domestic, foreign float64) {
	foreign = zetaD * D
	return D - foreign, foreign
}

// Transfers returns per-capita transfers. Under budget balance transfers
// absorb all revenue net of UBI; otherwise they are a share of output.
func Transfers(budgetBalance bool, alphaT, Y, revenue, ubi float64) float64 {
	if budgetBalance {
		return revenue - ubi
	}
	return alphaT * Y
}

// SteadyStateDebt returns the steady-state debt stock.
func SteadyStateDebt(budgetBalance bool, debtRatio, Y float64) float64 {
	if budgetBalance {
		return 0
	}
	return debtRatio * Y
}

// SteadyStateSpending returns the G that keeps debt at a constant ratio when
// the economy grows by factor growth each period.
func SteadyStateSpending(budgetBalance bool, revenue, TR, ubi, D, rGov, growth float64) float64 {
	if budgetBalance {
		return 0
	}
	return revenue - TR - ubi + (growth-1-rGov)*D
}

// Closure describes how spending adjusts along the transition. Before TG1
// spending is the exogenous share AlphaG of output; between TG1 and TG2
// spending moves debt a fraction RhoG of the way to its steady-state ratio;
// from TG2 on debt is pinned to that ratio.
type Closure struct {
	BudgetBalance bool
	TG1, TG2      int
	RhoG          float64
	DebtRatioSS   float64
}

// Spending returns G_t given this period's output, debt and flows.
// growthNext is the growth factor between t and t+1.
func (c Closure) Spending(t int, alphaG, Y, D, rGov, TR, ubi, revenue, growthNext float64) float64 {
	if c.BudgetBalance {
		return 0
	}
	var target float64
	switch {
	case t < c.TG1:
		return alphaG * Y
	case t < c.TG2:
		target = c.RhoG*c.DebtRatioSS*Y + (1-c.RhoG)*D
	default:
		target = c.DebtRatioSS * Y
	}
	return growthNext*target - (1+rGov)*D - TR - ubi + revenue
}

// NextDebt applies the government budget constraint
// growthNext * D' = (1 + r_gov) D + G + TR + UBI - revenue.
func NextDebt(D, rGov, G, TR, ubi, revenue, growthNext float64) float64 {
	return ((1+rGov)*D + G + TR + ubi - revenue) / growthNext
}

// BudgetResidual is the violation of the budget constraint for given flows.
func BudgetResidual(D, DNext, rGov, G, TR, ubi, revenue, growthNext float64) float64 {
	return growthNext*DNext - ((1+rGov)*D + G + TR + ubi - revenue)
}
