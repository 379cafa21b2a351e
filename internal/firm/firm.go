// Package firm implements the representative firm: CES production (Cobb-
// Douglas when the elasticity is one), factor prices and the capital demand
// implied by a given interest rate.
package firm

import (
	"math"

	"github.com/cwbudde/ogsolve/internal/solver"
)

// cdTolerance treats elasticities this close to one as Cobb-Douglas.
const cdTolerance = 1e-10

// Technology describes production in one period.
type Technology struct {
	Z        float64 // total factor productivity
	Gamma    float64 // capital share
	Epsilon  float64 // elasticity of substitution
	Delta    float64 // depreciation
	TauB     float64 // business income tax rate
	DeltaTau float64 // tax depreciation rate
}

func (tech Technology) cobbDouglas() bool {
	return math.Abs(tech.Epsilon-1) < cdTolerance
}

func checkInputs(where string, K, L float64) error {
	if err := solver.CheckFinite(where, -1, K, L); err != nil {
		return err
	}
	if !(K > 0) || !(L > 0) {
		return solver.Numericalf(where, -1, "non-positive inputs K=%g L=%g", K, L)
	}
	return nil
}

// Output returns Y = F(K, L).
func (tech Technology) Output(K, L float64) (float64, error) {
	if err := checkInputs("firm output", K, L); err != nil {
		return 0, err
	}
	if tech.cobbDouglas() {
		return tech.Z * math.Pow(K, tech.Gamma) * math.Pow(L, 1-tech.Gamma), nil
	}
	rho := (tech.Epsilon - 1) / tech.Epsilon
	inner := math.Pow(tech.Gamma, 1/tech.Epsilon)*math.Pow(K, rho) +
		math.Pow(1-tech.Gamma, 1/tech.Epsilon)*math.Pow(L, rho)
	return tech.Z * math.Pow(inner, 1/rho), nil
}

// MPK returns the marginal product of capital. A zero capital share yields
// zero.
func (tech Technology) MPK(K, L float64) (float64, error) {
	Y, err := tech.Output(K, L)
	if err != nil {
		return 0, err
	}
	if tech.Gamma == 0 {
		return 0, nil
	}
	if tech.cobbDouglas() {
		return tech.Gamma * Y / K, nil
	}
	return math.Pow(tech.Z, (tech.Epsilon-1)/tech.Epsilon) * math.Pow(tech.Gamma*Y/K, 1/tech.Epsilon), nil
}

// MPL returns the marginal product of labor, which is the wage.
func (tech Technology) MPL(K, L float64) (float64, error) {
	Y, err := tech.Output(K, L)
	if err != nil {
		return 0, err
	}
	if tech.cobbDouglas() {
		return (1 - tech.Gamma) * Y / L, nil
	}
	return math.Pow(tech.Z, (tech.Epsilon-1)/tech.Epsilon) * math.Pow((1-tech.Gamma)*Y/L, 1/tech.Epsilon), nil
}

// InterestRate returns the after-tax return to capital
// r = (1 - tau_b) MPK - delta + tau_b delta_tau.
func (tech Technology) InterestRate(K, L float64) (float64, error) {
	mpk, err := tech.MPK(K, L)
	if err != nil {
		return 0, err
	}
	return (1-tech.TauB)*mpk - tech.Delta + tech.TauB*tech.DeltaTau, nil
}

// Wage returns w = MPL.
func (tech Technology) Wage(K, L float64) (float64, error) {
	return tech.MPL(K, L)
}

// Prices returns (r, w, Y) for given inputs.
func (tech Technology) Prices(K, L float64) (r, w, Y float64, err error) {
	if Y, err = tech.Output(K, L); err != nil {
		return 0, 0, 0, err
	}
	if r, err = tech.InterestRate(K, L); err != nil {
		return 0, 0, 0, err
	}
	if w, err = tech.Wage(K, L); err != nil {
		return 0, 0, 0, err
	}
	return r, w, Y, nil
}

// MPKFromRate inverts the interest rate equation for the marginal product.
func (tech Technology) MPKFromRate(r float64) (float64, error) {
	if tech.TauB >= 1 {
		return 0, solver.Numericalf("firm rate inversion", -1, "business tax rate %g leaves no return", tech.TauB)
	}
	return (r + tech.Delta - tech.TauB*tech.DeltaTau) / (1 - tech.TauB), nil
}

// CapitalLaborRatio returns the K/L ratio at which the firm's return equals r.
func (tech Technology) CapitalLaborRatio(r float64) (float64, error) {
	if tech.Gamma == 0 {
		return 0, solver.Numericalf("firm capital demand", -1, "zero capital share")
	}
	mpk, err := tech.MPKFromRate(r)
	if err != nil {
		return 0, err
	}
	if !(mpk > 0) {
		return 0, solver.Numericalf("firm capital demand", -1, "non-positive marginal product %g at r=%g", mpk, r)
	}

	if tech.cobbDouglas() {
		// MPK = gamma Z k^(gamma-1)
		return math.Pow(mpk/(tech.Gamma*tech.Z), 1/(tech.Gamma-1)), nil
	}

	eps := tech.Epsilon
	base := math.Pow(mpk/tech.Z, eps-1)*math.Pow(tech.Gamma, (1-eps)/eps) - math.Pow(tech.Gamma, 1/eps)
	base /= math.Pow(1-tech.Gamma, 1/eps)
	if !(base > 0) {
		return 0, solver.Numericalf("firm capital demand", -1, "no capital stock yields r=%g", r)
	}
	k := math.Pow(base, eps/(1-eps))
	if err := solver.CheckFinite("firm capital demand", -1, k); err != nil {
		return 0, err
	}
	return k, nil
}

// CapitalDemand returns the capital stock demanded at rate r with labor L.
func (tech Technology) CapitalDemand(r, L float64) (float64, error) {
	k, err := tech.CapitalLaborRatio(r)
	if err != nil {
		return 0, err
	}
	return k * L, nil
}
