package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	omega   = []float64{0.5, 0.3, 0.2}
	lambdas = []float64{0.25, 0.75}
)

func TestWeighted(t *testing.T) {
	ones := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	assert.InDelta(t, 1, Weighted(ones, omega, lambdas), 1e-15)

	x := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	want := 0.5*(0.25*1+0.75*2) + 0.3*(0.25*3+0.75*4) + 0.2*(0.25*5+0.75*6)
	assert.InDelta(t, want, Weighted(x, omega, lambdas), 1e-15)
}

func TestLabor(t *testing.T) {
	e := [][]float64{{1, 2}, {1, 2}, {1, 2}}
	n := [][]float64{{0.5, 0.5}, {0.5, 0.5}, {0.5, 0.5}}
	assert.InDelta(t, 0.5*(0.25+1.5), Labor(n, e, omega, lambdas), 1e-15)
}

func TestBequestsAndSavingsAddUp(t *testing.T) {
	// With stationary weights omega_{s+1} = omega_s (1 - rho_s), survivors'
	// wealth plus bequests equals gross aggregate savings.
	rho := []float64{0.4, 1.0 / 3.0, 1}
	om := []float64{0.5, 0.3, 0.2}
	b := [][]float64{{0.2, 0.4}, {0.6, 0.8}, {0.1, 0.3}}
	r := 0.05

	B := Savings(b, om, lambdas, 0)
	BQ := Bequests(b, rho, om, lambdas, r, 0)

	held := 0.0
	for s := 1; s < 3; s++ {
		for j := range lambdas {
			held += om[s] * lambdas[j] * b[s-1][j]
		}
	}
	assert.InDelta(t, (1+r)*B, (1+r)*held+BQ, 1e-14)

	// population growth deflates per-capita aggregates
	assert.InDelta(t, B/1.1, Savings(b, om, lambdas, 0.1), 1e-15)
}

func TestRevenue(t *testing.T) {
	tax := [][]float64{{0.1, 0.1}, {0.1, 0.1}, {0.1, 0.1}}
	c := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	tauC := [][]float64{{0.2, 0.2}, {0.2, 0.2}, {0.2, 0.2}}
	assert.InDelta(t, 0.1+0.2+0.05, Revenue(tax, c, tauC, omega, lambdas, 0.05), 1e-15)
}

func TestCapital(t *testing.T) {
	K, kd, kf := Capital(3, 1, 5, 0)
	assert.Equal(t, 2.0, K)
	assert.Equal(t, 2.0, kd)
	assert.Zero(t, kf)

	K, _, kf = Capital(3, 1, 5, 1)
	assert.Equal(t, 5.0, K)
	assert.Equal(t, 3.0, kf)

	K, _, _ = Capital(3, 1, 5, 0.5)
	assert.Equal(t, 3.5, K)
}

func TestNetExportsClosedEconomy(t *testing.T) {
	// households own everything: no foreign claims, no trade balance
	assert.InDelta(t, 0, NetExports(0.05, 0.03, 0.04, 1, 1, 2, 1.02), 1e-15)
	assert.Greater(t, NetExports(0.05, 0.03, 0.05, 3, 0, 2, 1.02), 0.0)
}

func TestInvestmentAndResources(t *testing.T) {
	assert.InDelta(t, 1.02*2-0.9*2, Investment(2, 2, 0.1, 1.02), 1e-15)
	assert.InDelta(t, 0.1, ResourceResidual(2, 1, 0.5, 0.3, 0.1), 1e-15)
	assert.Equal(t, 6.0, MaxAbs([][]float64{{1, -6}, {2, 3}}))
}
