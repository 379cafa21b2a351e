package tpi

import (
	"github.com/cwbudde/ogsolve/internal/household"
	"github.com/cwbudde/ogsolve/internal/ss"
)

// arena holds household decisions for every period and age, one (T+S) x S
// grid per ability type. The cohort born at t0 owns the diagonal cells
// (t0+s, s), so concurrent work units never write the same cell.
type arena struct {
	periods, S, J int

	b, n, c, tax [][][]float64 // [j][t][s]
	euler, labor [][][]float64
}

func newArena(periods, S, J int) *arena {
	grid := func() [][][]float64 {
		g := make([][][]float64, J)
		for j := range g {
			g[j] = make([][]float64, periods)
			for t := range g[j] {
				g[j][t] = make([]float64, S)
			}
		}
		return g
	}
	return &arena{
		periods: periods, S: S, J: J,
		b: grid(), n: grid(), c: grid(), tax: grid(),
		euler: grid(), labor: grid(),
	}
}

// store writes the plan of the type-j cohort born at t0 that is a0 years old
// at t=0 or at birth.
func (a *arena) store(j, t0, a0 int, sol *household.Solution) {
	for k := range sol.BNext {
		s := a0 + k
		t := t0 + s
		a.b[j][t][s] = sol.BNext[k]
		a.n[j][t][s] = sol.N[k]
		a.c[j][t][s] = sol.C[k]
		a.tax[j][t][s] = sol.Tax[k]
		a.euler[j][t][s] = sol.EulerErrors[k]
		a.labor[j][t][s] = sol.LaborErrors[k]
	}
}

// fillSteadyState gives cohorts born at or after T their steady-state plan.
func (a *arena) fillSteadyState(T int, base *ss.Result) {
	for j := 0; j < a.J; j++ {
		for t := T; t < a.periods; t++ {
			for s := 0; s < a.S && t-s >= T; s++ {
				a.b[j][t][s] = base.BSavings[s][j]
				a.n[j][t][s] = base.N[s][j]
				a.c[j][t][s] = base.Cons[s][j]
				a.tax[j][t][s] = base.Tax[s][j]
				a.euler[j][t][s] = 0
				a.labor[j][t][s] = 0
			}
		}
	}
}

// period returns one period of a field as an [s][j] matrix.
func (a *arena) period(field [][][]float64, t int) [][]float64 {
	m := make([][]float64, a.S)
	for s := range m {
		m[s] = make([]float64, a.J)
		for j := 0; j < a.J; j++ {
			m[s][j] = field[j][t][s]
		}
	}
	return m
}

// cube returns a field as a [t][s][j] array.
func (a *arena) cube(field [][][]float64) [][][]float64 {
	out := make([][][]float64, a.periods)
	for t := range out {
		out[t] = a.period(field, t)
	}
	return out
}
