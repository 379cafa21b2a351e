// Package household solves the lifetime consumption, savings and labor
// problem of one household type facing a given path of prices and
// transfers.
package household

import (
	"math"

	"github.com/cwbudde/ogsolve/internal/fiscal"
	"github.com/cwbudde/ogsolve/internal/solver"
)

// Lifetime describes the remaining life of a household. Index k runs over
// the remaining ages, k = 0 being the current one; all slices have the same
// length.
type Lifetime struct {
	R    []float64 // return on savings held at age k
	W    []float64 // wage
	BQ   []float64 // bequests received
	TR   []float64 // government transfers
	UBI  []float64 // universal basic income
	E    []float64 // effective labor units
	Rho  []float64 // mortality
	ChiN []float64 // labor disutility weight
	TauC []float64 // consumption tax

	ETR, MTRx, MTRy [][]float64 // tax function coefficients

	B0 float64 // wealth held at the first remaining age

	Beta, Sigma, GY, ChiB     float64
	Ltilde, BEllipse, Upsilon float64
}

// Len returns the number of remaining ages.
func (lt *Lifetime) Len() int {
	return len(lt.R)
}

// Validate checks slice lengths and the inputs that would otherwise lead to
// a division by zero.
func (lt *Lifetime) Validate() error {
	n := lt.Len()
	if n == 0 {
		return solver.Configf("lifetime", "has no remaining ages")
	}
	for name, v := range map[string]int{
		"W": len(lt.W), "BQ": len(lt.BQ), "TR": len(lt.TR), "UBI": len(lt.UBI),
		"E": len(lt.E), "Rho": len(lt.Rho), "ChiN": len(lt.ChiN), "TauC": len(lt.TauC),
		"ETR": len(lt.ETR), "MTRx": len(lt.MTRx), "MTRy": len(lt.MTRy),
	} {
		if v != n {
			return solver.Configf("lifetime."+name, "has length %d, want %d", v, n)
		}
	}
	if lt.Rho[n-1] != 1 {
		return solver.Configf("lifetime.Rho", "last remaining age must die with certainty")
	}
	if !(lt.ChiB > 0) || !(lt.Sigma > 0) || !(lt.Ltilde > 0) || !(lt.Upsilon > 1) || !(lt.BEllipse > 0) {
		return solver.Configf("lifetime", "preference parameters out of range")
	}
	for k := 0; k < n; k++ {
		if !(lt.R[k] > -1) {
			return solver.Numericalf("household", -1, "return %g at age offset %d wipes out savings", lt.R[k], k)
		}
		if !(lt.TauC[k] > -1) {
			return solver.Numericalf("household", -1, "consumption tax %g at age offset %d", lt.TauC[k], k)
		}
	}
	return nil
}

// MarginalUtility returns u'(c) = c^-sigma for CRRA utility.
func MarginalUtility(c, sigma float64) float64 {
	return math.Pow(c, -sigma)
}

// MarginalDisutility returns the elliptical marginal disutility of labor
// chi (b/ltilde) (n/ltilde)^(upsilon-1) (1-(n/ltilde)^upsilon)^((1-upsilon)/upsilon).
func MarginalDisutility(n, chi, b, upsilon, ltilde float64) float64 {
	u := n / ltilde
	return chi * (b / ltilde) * math.Pow(u, upsilon-1) * math.Pow(1-math.Pow(u, upsilon), (1-upsilon)/upsilon)
}

// Income returns taxable income r b + w e n.
func (lt *Lifetime) Income(k int, b, n float64) float64 {
	return lt.R[k]*b + lt.W[k]*lt.E[k]*n
}

// Consumption returns consumption and income tax at age offset k given
// wealth b, savings bNext and labor n.
func (lt *Lifetime) Consumption(k int, b, bNext, n float64) (c, tax float64) {
	income := lt.Income(k, b, n)
	tax = fiscal.Tax(lt.ETR[k], income)
	c = ((1+lt.R[k])*b + lt.W[k]*lt.E[k]*n + lt.BQ[k] + lt.TR[k] + lt.UBI[k] - tax - math.Exp(lt.GY)*bNext) / (1 + lt.TauC[k])
	return c, tax
}

// wealth returns b held at age offset k given the savings path.
func (lt *Lifetime) wealth(k int, bNext []float64) float64 {
	if k == 0 {
		return lt.B0
	}
	return bNext[k-1]
}

// Residuals evaluates the Euler and labor optimality conditions in ratio
// form. euler[k] and labor[k] are zero at an optimum. ok is false when some
// consumption is not positive.
func (lt *Lifetime) Residuals(bNext, n, euler, labor []float64) (ok bool) {
	L := lt.Len()
	discount := lt.Beta * math.Exp(-lt.Sigma*lt.GY)

	var cNext float64
	for k := L - 1; k >= 0; k-- {
		b := lt.wealth(k, bNext)
		c, _ := lt.Consumption(k, b, bNext[k], n[k])
		if !(c > 0) {
			return false
		}
		muc := MarginalUtility(c, lt.Sigma) / (1 + lt.TauC[k])

		rhs := lt.Rho[k] * lt.ChiB * math.Pow(bNext[k], -lt.Sigma)
		if k < L-1 {
			income := lt.Income(k+1, bNext[k], n[k+1])
			mtry := fiscal.MTR(lt.MTRy[k+1], income)
			mucNext := MarginalUtility(cNext, lt.Sigma) / (1 + lt.TauC[k+1])
			rhs += (1 - lt.Rho[k]) * (1 + lt.R[k+1]*(1-mtry)) * mucNext
		}
		euler[k] = discount*rhs/muc - 1

		mtrx := fiscal.MTR(lt.MTRx[k], lt.Income(k, b, n[k]))
		gain := lt.W[k] * lt.E[k] * (1 - mtrx) * muc
		if !(gain > 0) {
			return false
		}
		labor[k] = MarginalDisutility(n[k], lt.ChiN[k], lt.BEllipse, lt.Upsilon, lt.Ltilde)/gain - 1

		cNext = c
	}
	return true
}
