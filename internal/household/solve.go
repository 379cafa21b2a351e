package household

import (
	"math"

	"github.com/cwbudde/ogsolve/internal/opt"
	"github.com/cwbudde/ogsolve/internal/solver"
)

// Settings controls the lifetime Newton solve.
type Settings struct {
	Tolerance     float64
	MaxIterations int
}

// Solution is a household's optimal remaining-lifetime plan.
type Solution struct {
	BNext       []float64 // savings carried into the next age
	N           []float64 // labor supply
	C           []float64 // consumption
	Tax         []float64 // income tax paid
	EulerErrors []float64
	LaborErrors []float64
	Iterations  int
}

// fallback savings shares tried when the supplied guess does not converge
var savingsShares = []float64{0.3, 0.1, 0.6}

// Solve finds savings and labor at every remaining age that satisfy the
// Euler equations, the terminal bequest condition and the labor first-order
// conditions. guessB and guessN may be nil; an infeasible or failing guess
// is replaced by budget-feasible starting points.
func Solve(lt *Lifetime, guessB, guessN []float64, s Settings) (*Solution, error) {
	if err := lt.Validate(); err != nil {
		return nil, err
	}
	L := lt.Len()

	var starts [][]float64
	if len(guessB) == L && len(guessN) == L {
		if x, ok := lt.encode(guessB, guessN); ok {
			starts = append(starts, x)
		}
	}
	for _, share := range savingsShares {
		if x, ok := lt.feasibleStart(share); ok {
			starts = append(starts, x)
		}
	}
	if len(starts) == 0 {
		return nil, solver.Numericalf("household", -1, "no budget-feasible starting point")
	}

	settings := opt.DefaultNewtonSettings()
	settings.Tolerance = s.Tolerance
	settings.MaxIterations = s.MaxIterations

	var lastErr error
	for _, x0 := range starts {
		res, err := opt.Newton(lt.residual, x0, settings)
		if err != nil {
			lastErr = err
			continue
		}
		return lt.solution(res), nil
	}
	return nil, &solver.NumericalError{Where: "household", Period: -1, Err: lastErr}
}

// residual maps the unconstrained variables (log savings, logit of the labor
// share) to the stacked optimality conditions.
func (lt *Lifetime) residual(x, out []float64) error {
	L := lt.Len()
	bNext, n := lt.decode(x)
	if !lt.Residuals(bNext, n, out[:L], out[L:]) {
		return opt.ErrInfeasible
	}
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return opt.ErrInfeasible
		}
	}
	return nil
}

func (lt *Lifetime) decode(x []float64) (bNext, n []float64) {
	L := lt.Len()
	bNext = make([]float64, L)
	n = make([]float64, L)
	for k := 0; k < L; k++ {
		bNext[k] = math.Exp(x[k])
		n[k] = lt.Ltilde / (1 + math.Exp(-x[L+k]))
	}
	return bNext, n
}

func (lt *Lifetime) encode(bNext, n []float64) ([]float64, bool) {
	L := lt.Len()
	x := make([]float64, 2*L)
	for k := 0; k < L; k++ {
		u := n[k] / lt.Ltilde
		if !(bNext[k] > 0) || !(u > 0 && u < 1) {
			return nil, false
		}
		x[k] = math.Log(bNext[k])
		x[L+k] = math.Log(u / (1 - u))
	}
	out := make([]float64, 2*L)
	if lt.residual(x, out) != nil {
		return nil, false
	}
	return x, true
}

// feasibleStart saves a fixed share of each period's resources at half-time
// labor, which keeps consumption positive whenever resources are.
func (lt *Lifetime) feasibleStart(share float64) ([]float64, bool) {
	L := lt.Len()
	bNext := make([]float64, L)
	n := make([]float64, L)
	growth := math.Exp(lt.GY)
	for k := 0; k < L; k++ {
		n[k] = 0.5 * lt.Ltilde
		b := lt.wealth(k, bNext)
		cAll, _ := lt.Consumption(k, b, 0, n[k])
		resources := cAll * (1 + lt.TauC[k])
		if !(resources > 0) {
			return nil, false
		}
		bNext[k] = share * resources / growth
	}
	return lt.encode(bNext, n)
}

func (lt *Lifetime) solution(res opt.NewtonResult) *Solution {
	L := lt.Len()
	bNext, n := lt.decode(res.X)
	sol := &Solution{
		BNext:       bNext,
		N:           n,
		C:           make([]float64, L),
		Tax:         make([]float64, L),
		EulerErrors: make([]float64, L),
		LaborErrors: make([]float64, L),
		Iterations:  res.Iterations,
	}
	lt.Residuals(bNext, n, sol.EulerErrors, sol.LaborErrors)
	for k := 0; k < L; k++ {
		sol.C[k], sol.Tax[k] = lt.Consumption(k, lt.wealth(k, bNext), bNext[k], n[k])
	}
	return sol
}

// MaxError returns the largest absolute first-order condition error.
func (sol *Solution) MaxError() float64 {
	m := 0.0
	for k := range sol.EulerErrors {
		m = math.Max(m, math.Abs(sol.EulerErrors[k]))
		m = math.Max(m, math.Abs(sol.LaborErrors[k]))
	}
	return m
}
