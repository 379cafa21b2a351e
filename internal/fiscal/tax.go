// Package fiscal holds the government side of the model: income tax
// functions, interest on debt, transfers, spending closure and the debt
// recursion.
package fiscal

import "math"

// Income tax functions use the Gouveia-Strauss form
//
//	T(I) = phi0 * (I - (I^-phi1 + phi2)^(-1/phi1))
//
// with coefficients [phi0, phi1, phi2, ...]; trailing entries are ignored.
// phi0 is the top marginal rate. A zero phi0 (or all-zero coefficients) means
// no tax, and non-positive income is never taxed.

// Tax returns total income tax on income I.
func Tax(coef []float64, income float64) float64 {
	phi0, phi1, phi2, ok := split(coef)
	if !ok || income <= 0 {
		return 0
	}
	return phi0 * (income - math.Pow(math.Pow(income, -phi1)+phi2, -1/phi1))
}

// ETR returns the average tax rate T(I)/I.
func ETR(coef []float64, income float64) float64 {
	if income <= 0 {
		return 0
	}
	return Tax(coef, income) / income
}

// MTR returns the marginal tax rate T'(I).
func MTR(coef []float64, income float64) float64 {
	phi0, phi1, phi2, ok := split(coef)
	if !ok || income <= 0 {
		return 0
	}
	return phi0 * (1 - math.Pow(math.Pow(income, -phi1)+phi2, -1/phi1-1)*math.Pow(income, -phi1-1))
}

func split(coef []float64) (phi0, phi1, phi2 float64, ok bool) {
	if len(coef) < 3 || coef[0] == 0 || coef[1] <= 0 {
		return 0, 0, 0, false
	}
	return coef[0], coef[1], coef[2], true
}

// BusinessTax returns revenue from the entity-level tax on capital income,
// tau_b (MPK - delta_tau) K.
func BusinessTax(tauB, deltaTau, mpk, K float64) float64 {
	return tauB * (mpk - deltaTau) * K
}
