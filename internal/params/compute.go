package params

import (
	"log/slog"
	"math"

	"github.com/cwbudde/ogsolve/internal/solver"
)

// Compute derives model-period parameters from the raw bundle. It must run
// once after the raw fields are set and before any solver sees the bundle.
// Compute is idempotent on the raw fields it reads, but derived demographic
// weights are only rebuilt under constant demographics.
func (p *Specifications) Compute() error {
	if err := p.ValidateShapes(); err != nil {
		return err
	}
	n := p.T + p.S
	years := p.YearsPerPeriod()

	p.Beta = math.Pow(p.BetaAnnual, years)
	p.Delta = 1 - math.Pow(1-p.DeltaAnnual, years)
	p.GY = solver.RateConversion(p.GYAnnual, p.StartingAge, p.EndingAge, p.S)

	var err error
	paths := []struct {
		name string
		dst  *[]float64
	}{
		{"alpha_T", &p.AlphaT},
		{"alpha_G", &p.AlphaG},
		{"Z", &p.Z},
		{"world_int_rate_annual", &p.WorldIntRateAnnual},
		{"zeta_K", &p.ZetaK},
		{"zeta_D", &p.ZetaD},
		{"cit_rate", &p.CitRate},
		{"delta_tau_annual", &p.DeltaTauAnnual},
	}
	for _, item := range paths {
		if *item.dst, err = extendPath(item.name, *item.dst, n); err != nil {
			return err
		}
	}

	p.WorldIntRate = make([]float64, n)
	p.DeltaTau = make([]float64, n)
	p.TauB = make([]float64, n)
	for t := 0; t < n; t++ {
		p.WorldIntRate[t] = solver.RateConversion(p.WorldIntRateAnnual[t], p.StartingAge, p.EndingAge, p.S)
		p.DeltaTau[t] = 1 - math.Pow(1-p.DeltaTauAnnual[t], years)
		p.TauB[t] = p.CitRate[t] * p.CCorpShareOfAssets
	}

	if p.ETRParams, err = extendTax("etr_params", p.ETRParams, n, p.S); err != nil {
		return err
	}
	if p.MTRxParams, err = extendTax("mtrx_params", p.MTRxParams, n, p.S); err != nil {
		return err
	}
	if p.MTRyParams, err = extendTax("mtry_params", p.MTRyParams, n, p.S); err != nil {
		return err
	}
	if p.TauC, err = extendTax("tau_c", p.TauC, n, p.S); err != nil {
		return err
	}
	if p.TauC, err = fitLastDim("tau_c", p.TauC, p.J()); err != nil {
		return err
	}
	if p.ZeroTaxes {
		p.applyZeroTaxes()
	}

	if len(p.Rho) == 0 {
		p.Rho = p.defaultMortality()
	}
	if p.ConstantDemographics || len(p.Omega) == 0 {
		p.constantDemographics()
	} else if err := p.extendDemographics(); err != nil {
		return err
	}

	if len(p.ChiN) == 1 {
		p.ChiN = repeat(p.ChiN[0], p.S)
	}
	if len(p.ChiB) == 1 {
		p.ChiB = repeat(p.ChiB[0], p.J())
	}
	if len(p.E) == 0 {
		p.E = p.defaultAbility(p.OmegaSS)
	}

	if p.BEllipse <= 0 || p.Upsilon <= 0 {
		b, upsilon, cost, err := EllipseFit(p.Frisch, p.Ltilde, nil)
		if err != nil {
			return &solver.ConfigurationError{Field: "frisch", Reason: err.Error()}
		}
		slog.Debug("Fitted elliptical utility", "b_ellipse", b, "upsilon", upsilon, "cost", cost)
		p.BEllipse, p.Upsilon = b, upsilon
	}

	p.UBIPath = p.ubiPath()
	p.computed = true
	return p.Validate()
}

func (p *Specifications) applyZeroTaxes() {
	for _, arr := range [][][][]float64{p.ETRParams, p.MTRxParams, p.MTRyParams, p.TauC} {
		for _, m := range arr {
			for _, row := range m {
				for k := range row {
					row[k] = 0
				}
			}
		}
	}
	for t := range p.CitRate {
		p.CitRate[t] = 0
		p.TauB[t] = 0
	}
}

// extendDemographics pads user-supplied population weights to T+S periods.
func (p *Specifications) extendDemographics() error {
	n := p.T + p.S
	if len(p.OmegaSS) == 0 {
		return solver.Configf("omega_SS", "required when omega is supplied")
	}
	if len(p.Omega) > n {
		p.Omega = p.Omega[:n]
	}
	for len(p.Omega) < n {
		p.Omega = append(p.Omega, clone1(p.Omega[len(p.Omega)-1]))
	}
	if len(p.OmegaSPreTP) == 0 {
		p.OmegaSPreTP = clone1(p.Omega[0])
	}
	if len(p.GN) == 0 {
		p.GN = []float64{p.GNSS}
	}
	var err error
	p.GN, err = extendPath("g_n", p.GN, n)
	return err
}

// ubiPath returns the per-household UBI in every period. Without growth
// adjustment, nominal UBI shrinks in stationarized units until T and stays
// at its period-T value afterwards.
func (p *Specifications) ubiPath() []float64 {
	n := p.T + p.S
	base := math.Min(1.1*p.UBINom017+0.85*p.UBINom1864+0.15*p.UBINom65p, p.UBINomMax)
	path := make([]float64, n)
	if p.UBIGrowthAdj || p.GYAnnual == 0 {
		for t := range path {
			path[t] = base
		}
		return path
	}
	for t := 0; t < n; t++ {
		path[t] = base / math.Exp(p.GY*float64(min(t, p.T)))
	}
	return path
}

// extendPath trims or pads a time path to n periods, repeating the last value.
func extendPath(name string, v []float64, n int) ([]float64, error) {
	if len(v) == 0 {
		return nil, solver.Configf(name, "is empty")
	}
	out := make([]float64, n)
	for t := range out {
		out[t] = v[min(t, len(v)-1)]
	}
	return out, nil
}

// extendTax reconciles a periods x S x K coefficient array with n periods.
// A single coefficient vector is broadcast to every period and age.
func extendTax(name string, arr [][][]float64, n, S int) ([][][]float64, error) {
	if len(arr) == 0 {
		return nil, solver.Configf(name, "leading dimension is zero")
	}
	if len(arr) == 1 && len(arr[0]) == 1 {
		if len(arr[0][0]) == 0 {
			return nil, solver.Configf(name, "has no coefficients")
		}
		out := make([][][]float64, n)
		for t := range out {
			out[t] = make([][]float64, S)
			for s := range out[t] {
				out[t][s] = clone1(arr[0][0])
			}
		}
		return out, nil
	}

	k := -1
	for t, m := range arr {
		if len(m) < S {
			return nil, solver.Configf(name, "period %d has %d ages, want %d", t, len(m), S)
		}
		for s := 0; s < S; s++ {
			if k < 0 {
				k = len(m[s])
			}
			if len(m[s]) != k || k == 0 {
				return nil, solver.Configf(name, "ragged coefficient vector at period %d age %d", t, s)
			}
		}
	}

	out := make([][][]float64, n)
	for t := range out {
		src := arr[min(t, len(arr)-1)]
		out[t] = clone2(src[:S])
	}
	return out, nil
}

// fitLastDim broadcasts single-entry cells to width cols and trims wider ones.
func fitLastDim(name string, arr [][][]float64, cols int) ([][][]float64, error) {
	for t, m := range arr {
		for s, row := range m {
			switch {
			case len(row) == cols:
			case len(row) == 1:
				arr[t][s] = repeat(row[0], cols)
			case len(row) > cols:
				arr[t][s] = row[:cols]
			default:
				return nil, solver.Configf(name, "period %d age %d has %d entries, want %d", t, s, len(row), cols)
			}
		}
	}
	return arr, nil
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
