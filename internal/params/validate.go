package params

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/ogsolve/internal/solver"
)

// sumTolerance bounds the deviation of population and ability weights from one.
const sumTolerance = 1e-6

// ValidateShapes checks the raw bundle before any extension step.
func (p *Specifications) ValidateShapes() error {
	if p.S < 3 {
		return solver.Configf("S", "must be at least 3, got %d", p.S)
	}
	if p.T < 3 {
		return solver.Configf("T", "must be at least 3, got %d", p.T)
	}
	if !(p.EndingAge > p.StartingAge) {
		return solver.Configf("ending_age", "must exceed starting_age")
	}
	if p.J() == 0 {
		return solver.Configf("lambdas", "is empty")
	}
	if len(p.Rho) != 0 && len(p.Rho) != p.S {
		return solver.Configf("rho", "has length %d, want %d", len(p.Rho), p.S)
	}
	if len(p.ChiN) != 1 && len(p.ChiN) != p.S {
		return solver.Configf("chi_n", "has length %d, want 1 or %d", len(p.ChiN), p.S)
	}
	if len(p.ChiB) != 1 && len(p.ChiB) != p.J() {
		return solver.Configf("chi_b", "has length %d, want 1 or %d", len(p.ChiB), p.J())
	}
	if len(p.E) != 0 {
		if len(p.E) != p.S {
			return solver.Configf("e", "has %d ages, want %d", len(p.E), p.S)
		}
		for s, row := range p.E {
			if len(row) != p.J() {
				return solver.Configf("e", "age %d has %d types, want %d", s, len(row), p.J())
			}
		}
	}
	if !p.ConstantDemographics && len(p.Omega) != 0 {
		for t, row := range p.Omega {
			if len(row) != p.S {
				return solver.Configf("omega", "period %d has %d ages, want %d", t, len(row), p.S)
			}
		}
	}
	return nil
}

// Validate checks the computed bundle. Solvers call it before any numeric
// work, so a bundle mutated after Compute is still rejected up front.
func (p *Specifications) Validate() error {
	if !p.computed {
		return solver.Configf("specifications", "Compute has not been run")
	}
	if err := p.ValidateShapes(); err != nil {
		return err
	}
	S, J, n := p.S, p.J(), p.T+p.S

	if math.Abs(floats.Sum(p.Lambdas)-1) > sumTolerance {
		return solver.Configf("lambdas", "sum to %g, want 1", floats.Sum(p.Lambdas))
	}
	for j, l := range p.Lambdas {
		if !(l > 0) {
			return solver.Configf("lambdas", "entry %d must be positive", j)
		}
	}
	if len(p.OmegaSS) != S || math.Abs(floats.Sum(p.OmegaSS)-1) > sumTolerance {
		return solver.Configf("omega_SS", "must have %d entries summing to 1", S)
	}
	if len(p.OmegaSPreTP) != S {
		return solver.Configf("omega_S_preTP", "has length %d, want %d", len(p.OmegaSPreTP), S)
	}
	if len(p.Omega) != n {
		return solver.Configf("omega", "has %d periods, want %d", len(p.Omega), n)
	}
	for t, row := range p.Omega {
		if len(row) != S || math.Abs(floats.Sum(row)-1) > sumTolerance {
			return solver.Configf("omega", "period %d must have %d entries summing to 1", t, S)
		}
	}

	if len(p.Rho) != S {
		return solver.Configf("rho", "has length %d, want %d", len(p.Rho), S)
	}
	for s, r := range p.Rho {
		if r < 0 || r > 1 || math.IsNaN(r) {
			return solver.Configf("rho", "age %d mortality %g outside [0, 1]", s, r)
		}
	}
	if p.Rho[S-1] != 1 {
		return solver.Configf("rho", "last age must die with certainty, got %g", p.Rho[S-1])
	}
	for s, row := range p.E {
		for j, v := range row {
			if !(v > 0) {
				return solver.Configf("e", "entry (%d, %d) must be positive", s, j)
			}
		}
	}
	for j, c := range p.ChiB {
		if !(c > 0) {
			return solver.Configf("chi_b", "entry %d must be positive", j)
		}
	}
	for s, c := range p.ChiN {
		if !(c > 0) {
			return solver.Configf("chi_n", "entry %d must be positive", s)
		}
	}

	switch {
	case !(p.Sigma > 0):
		return solver.Configf("sigma", "must be positive")
	case !(p.Ltilde > 0):
		return solver.Configf("ltilde", "must be positive")
	case !(p.Beta > 0 && p.Beta < 1):
		return solver.Configf("beta_annual", "must be in (0, 1)")
	case !(p.BEllipse > 0):
		return solver.Configf("b_ellipse", "must be positive")
	case !(p.Upsilon > 1):
		return solver.Configf("upsilon", "must exceed 1")
	case p.Gamma < 0 || p.Gamma >= 1:
		return solver.Configf("gamma", "must be in [0, 1)")
	case !(p.Epsilon > 0):
		return solver.Configf("epsilon", "must be positive")
	case p.Delta < 0 || p.Delta > 1:
		return solver.Configf("delta_annual", "must be in [0, 1]")
	case p.RhoG <= 0 || p.RhoG > 1:
		return solver.Configf("rho_G", "must be in (0, 1]")
	case p.TG1 < 0 || p.TG1 > p.TG2 || p.TG2 > p.T:
		return solver.Configf("tG1", "need 0 <= tG1 <= tG2 <= T")
	}

	paths := map[string][]float64{
		"alpha_T":        p.AlphaT,
		"alpha_G":        p.AlphaG,
		"Z":              p.Z,
		"world_int_rate": p.WorldIntRate,
		"zeta_K":         p.ZetaK,
		"zeta_D":         p.ZetaD,
		"tau_b":          p.TauB,
		"delta_tau":      p.DeltaTau,
		"g_n":            p.GN,
		"ubi":            p.UBIPath,
	}
	for name, v := range paths {
		if len(v) != n {
			return solver.Configf(name, "has length %d, want %d", len(v), n)
		}
	}
	for t := 0; t < n; t++ {
		if !(p.Z[t] > 0) {
			return solver.Configf("Z", "period %d must be positive", t)
		}
		if p.ZetaK[t] < 0 || p.ZetaK[t] > 1 {
			return solver.Configf("zeta_K", "period %d outside [0, 1]", t)
		}
		if p.ZetaD[t] < 0 || p.ZetaD[t] > 1 {
			return solver.Configf("zeta_D", "period %d outside [0, 1]", t)
		}
		if p.TauB[t] >= 1 {
			return solver.Configf("cit_rate", "period %d business tax rate must be below 1", t)
		}
	}

	for name, arr := range map[string][][][]float64{
		"etr_params":  p.ETRParams,
		"mtrx_params": p.MTRxParams,
		"mtry_params": p.MTRyParams,
	} {
		if err := checkTaxArray(name, arr, n, S, -1); err != nil {
			return err
		}
	}
	return checkTaxArray("tau_c", p.TauC, n, S, J)
}

// checkTaxArray enforces the final n x S x K layout. cols < 0 accepts any
// K >= 3 shared by all cells.
func checkTaxArray(name string, arr [][][]float64, n, S, cols int) error {
	if len(arr) != n {
		return solver.Configf(name, "leading dimension is %d, want T+S = %d", len(arr), n)
	}
	want := cols
	for t, m := range arr {
		if len(m) != S {
			return solver.Configf(name, "period %d has %d ages, want %d", t, len(m), S)
		}
		for s, row := range m {
			if want < 0 {
				want = len(row)
				if want < 3 {
					return solver.Configf(name, "needs at least 3 coefficients, got %d", want)
				}
			}
			if len(row) != want {
				return solver.Configf(name, "period %d age %d has %d entries, want %d", t, s, len(row), want)
			}
			for _, v := range row {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return solver.Configf(name, "period %d age %d is not finite", t, s)
				}
			}
		}
	}
	return nil
}
