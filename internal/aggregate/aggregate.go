// Package aggregate sums household decisions over ages and ability types.
// Household matrices are indexed [s][j]; population weights omega are per
// age and ability weights lambdas per type, both summing to one.
package aggregate

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Weighted returns sum_s sum_j omega_s lambda_j x_sj.
func Weighted(x [][]float64, omega, lambdas []float64) float64 {
	total := 0.0
	for s, row := range x {
		total += omega[s] * floats.Dot(row, lambdas)
	}
	return total
}

// Labor returns effective labor sum omega lambda e n.
func Labor(n, e [][]float64, omega, lambdas []float64) float64 {
	total := 0.0
	for s := range n {
		for j := range n[s] {
			total += omega[s] * lambdas[j] * e[s][j] * n[s][j]
		}
	}
	return total
}

// Savings returns aggregate household wealth entering a period from the
// savings chosen last period by a population with weights omegaPrev,
// normalized by population growth gN.
func Savings(bNext [][]float64, omegaPrev, lambdas []float64, gN float64) float64 {
	return Weighted(bNext, omegaPrev, lambdas) / (1 + gN)
}

// Bequests returns total bequests paid in a period: the gross return on
// savings of last period's households who died.
func Bequests(bNext [][]float64, rho, omegaPrev, lambdas []float64, r, gN float64) float64 {
	total := 0.0
	for s, row := range bNext {
		total += rho[s] * omegaPrev[s] * floats.Dot(row, lambdas)
	}
	return (1 + r) * total / (1 + gN)
}

// Revenue returns income and consumption tax receipts plus business tax.
func Revenue(tax, c, tauC [][]float64, omega, lambdas []float64, businessTax float64) float64 {
	total := Weighted(tax, omega, lambdas)
	for s := range c {
		for j := range c[s] {
			total += omega[s] * lambdas[j] * tauC[s][j] * c[s][j]
		}
	}
	return total + businessTax
}

// Capital splits the capital stock in an open economy. Domestic savings net
// of domestic debt holdings supply kDomestic; foreign investors close a share
// zetaK of the gap to the capital demanded at the world rate.
func Capital(B, debtDomestic, kOpen, zetaK float64) (K, kDomestic, kForeign float64) {
	kDomestic = B - debtDomestic
	kForeign = zetaK * (kOpen - kDomestic)
	return kDomestic + kForeign, kDomestic, kForeign
}

// Investment returns gross investment growthNext*K' - (1-delta)*K.
func Investment(K, KNext, delta, growthNext float64) float64 {
	return growthNext*KNext - (1-delta)*K
}

// NetExports returns the trade balance of a steady state growing at factor
// growth. Claims on capital K and debt D not held by households (wealth B)
// belong to foreigners, who are paid the difference between the economy's
// capital income and what households earn at rHH, net of the growth of
// their holdings.
func NetExports(r, rGov, rHH, K, D, B, growth float64) float64 {
	return r*K + rGov*D - rHH*B - (growth-1)*(K+D-B)
}

// ResourceResidual returns Y - C - I - G - NX.
func ResourceResidual(Y, C, I, G, NX float64) float64 {
	return Y - C - I - G - NX
}

// MaxAbs returns the largest absolute entry of a household matrix.
func MaxAbs(x [][]float64) float64 {
	m := 0.0
	for _, row := range x {
		for _, v := range row {
			m = math.Max(m, math.Abs(v))
		}
	}
	return m
}
