// Package inequality computes distributional statistics of an age by ability
// matrix (wealth, consumption, labor income) weighted by population shares.
package inequality

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/ogsolve/internal/solver"
)

// Grouping selects the population cells a Gini coefficient is taken over.
type Grouping int

const (
	Overall   Grouping = iota // every (age, ability) cell
	ByAge                     // totals per age across ability types
	ByAbility                 // totals per ability type across ages
)

// Distribution is an S x J matrix with its population weights, sorted once
// for the percentile statistics.
type Distribution struct {
	dist    [][]float64
	pop     []float64
	ability []float64

	sorted  []float64
	weights []float64
	cum     []float64
}

// New builds a distribution. dist is indexed [s][j]; popWeights has length S
// and abilityWeights length J.
func New(dist [][]float64, popWeights, abilityWeights []float64) (*Distribution, error) {
	S, J := len(popWeights), len(abilityWeights)
	if len(dist) != S || S == 0 || J == 0 {
		return nil, solver.Configf("distribution", "has %d ages, want %d", len(dist), S)
	}
	values := make([]float64, 0, S*J)
	weights := make([]float64, 0, S*J)
	for s, row := range dist {
		if len(row) != J {
			return nil, solver.Configf("distribution", "age %d has %d types, want %d", s, len(row), J)
		}
		for j, v := range row {
			values = append(values, v)
			weights = append(weights, popWeights[s]*abilityWeights[j])
		}
	}
	sorted, w := sortWeighted(values, weights)
	return &Distribution{
		dist:    dist,
		pop:     popWeights,
		ability: abilityWeights,
		sorted:  sorted,
		weights: w,
		cum:     floats.CumSum(make([]float64, len(w)), w),
	}, nil
}

// sortWeighted returns values in ascending order with their weights.
func sortWeighted(values, weights []float64) (sorted, w []float64) {
	sorted = append([]float64(nil), values...)
	idx := make([]int, len(sorted))
	floats.Argsort(sorted, idx)
	w = make([]float64, len(idx))
	for i, k := range idx {
		w[i] = weights[k]
	}
	return sorted, w
}

// Gini returns the Gini coefficient of the chosen grouping.
func (d *Distribution) Gini(g Grouping) float64 {
	switch g {
	case ByAge:
		totals := make([]float64, len(d.dist))
		for s, row := range d.dist {
			totals[s] = floats.Sum(row)
		}
		return gini(totals, d.pop)
	case ByAbility:
		totals := make([]float64, len(d.ability))
		for _, row := range d.dist {
			floats.Add(totals, row)
		}
		return gini(totals, d.ability)
	default:
		return giniSorted(d.sorted, d.weights)
	}
}

func gini(values, weights []float64) float64 {
	sorted, w := sortWeighted(values, weights)
	return giniSorted(sorted, w)
}

// giniSorted integrates the Lorenz curve of ascending values.
func giniSorted(sorted, weights []float64) float64 {
	n := len(sorted)
	p := make([]float64, n)
	floats.CumSum(p, weights)
	floats.Scale(1/p[n-1], p)

	nu := make([]float64, n)
	floats.MulTo(nu, sorted, weights)
	floats.CumSum(nu, nu)
	floats.Scale(1/nu[n-1], nu)

	g := 0.0
	for i := 0; i < n-1; i++ {
		g += nu[i+1]*p[i] - nu[i]*p[i+1]
	}
	return g
}

// VarOfLogs returns the weighted population variance of log values. Values
// must be positive.
func (d *Distribution) VarOfLogs() float64 {
	logs := make([]float64, len(d.sorted))
	for i, v := range d.sorted {
		logs[i] = math.Log(v)
	}
	_, variance := stat.PopMeanVariance(logs, d.weights)
	return variance
}

// Percentile returns the value whose cumulative population share is closest
// to pct, for pct in (0, 1).
func (d *Distribution) Percentile(pct float64) (float64, error) {
	i, err := d.locate(pct)
	if err != nil {
		return 0, err
	}
	return d.sorted[i], nil
}

// PercentileRatio returns Percentile(pct1) / Percentile(pct2).
func (d *Distribution) PercentileRatio(pct1, pct2 float64) (float64, error) {
	a, err := d.Percentile(pct1)
	if err != nil {
		return 0, err
	}
	b, err := d.Percentile(pct2)
	if err != nil {
		return 0, err
	}
	return a / b, nil
}

// TopShare returns the share of the total held by the top pct of the
// population, for pct in (0, 1).
func (d *Distribution) TopShare(pct float64) (float64, error) {
	i, err := d.locate(1 - pct)
	if err != nil {
		return 0, err
	}
	top := floats.Dot(d.sorted[i:], d.weights[i:])
	return top / floats.Dot(d.sorted, d.weights), nil
}

func (d *Distribution) locate(pct float64) (int, error) {
	if !(pct > 0 && pct < 1) {
		return 0, solver.Configf("percentile", "must be in (0, 1), got %g", pct)
	}
	best, dist := 0, math.Inf(1)
	for i, c := range d.cum {
		if e := math.Abs(c - pct); e < dist {
			best, dist = i, e
		}
	}
	return best, nil
}

// Summary collects the statistics reported after a run.
type Summary struct {
	Gini        float64 `json:"gini"`
	GiniAge     float64 `json:"giniAge"`
	GiniAbility float64 `json:"giniAbility"`
	VarOfLogs   float64 `json:"varOfLogs"`
	P90P10      float64 `json:"p90p10"`
	Top10Share  float64 `json:"top10Share"`
	Top1Share   float64 `json:"top1Share"`
}

// Summarize computes the standard set of statistics.
func Summarize(d *Distribution) Summary {
	s := Summary{
		Gini:        d.Gini(Overall),
		GiniAge:     d.Gini(ByAge),
		GiniAbility: d.Gini(ByAbility),
		VarOfLogs:   d.VarOfLogs(),
	}
	// the arguments are constants inside (0, 1)
	s.P90P10, _ = d.PercentileRatio(0.9, 0.1)
	s.Top10Share, _ = d.TopShare(0.1)
	s.Top1Share, _ = d.TopShare(0.01)
	return s
}
