package ss

import (
	"fmt"

	"github.com/cwbudde/ogsolve/internal/aggregate"
	"github.com/cwbudde/ogsolve/internal/fiscal"
	"github.com/cwbudde/ogsolve/internal/solver"
)

// Result is a solved steady state. Household matrices are indexed [s][j].
type Result struct {
	K, L, Y, C, I, B float64
	BQ, TR, G, D     float64
	UBI              float64

	R, W, RGov, RHH float64

	Revenue, BusinessTax float64
	KDomestic, KForeign  float64
	DDomestic, DForeign  float64
	NetExports           float64

	BSavings [][]float64 // savings carried into the next age
	N        [][]float64 // labor supply
	Cons     [][]float64 // consumption
	Tax      [][]float64 // income tax paid

	EulerErrors [][]float64
	LaborErrors [][]float64

	ResourceError float64
	BudgetError   float64

	Iterations int
	Residual   float64
}

// result assembles the steady state from the converged evaluation. Prices are
// those of the guess, which the transition path reproduces exactly.
func (m *model) result(ev *evaluation, iters int) *Result {
	p := m.p
	growth := m.growth()
	K, L, BQ, TR := ev.x[iK], ev.x[iL], ev.x[iBQ], ev.x[iTR]

	res := &Result{
		K: K, L: L, Y: ev.Y, C: ev.C, B: ev.B,
		BQ: BQ, TR: TR, D: ev.D, UBI: ev.ubi,
		R: ev.r, W: ev.w, RGov: ev.rGov, RHH: ev.rHH,
		Revenue:     ev.revenue,
		BusinessTax: ev.businessTx,
		KDomestic:   ev.kDom,
		KForeign:    ev.kFor,
		DDomestic:   ev.dDom,
		DForeign:    ev.dFor,
		BSavings:    ev.bNext,
		N:           ev.n,
		Cons:        ev.c,
		Tax:         ev.tx,
		Iterations:  iters,
		Residual:    ev.residual(),
	}

	S, J := p.S, p.J()
	res.EulerErrors, res.LaborErrors = matrix(S, J), matrix(S, J)
	for j, sol := range ev.households {
		for s := 0; s < S; s++ {
			res.EulerErrors[s][j] = sol.EulerErrors[s]
			res.LaborErrors[s][j] = sol.LaborErrors[s]
		}
	}

	res.G = fiscal.SteadyStateSpending(p.BudgetBalance, res.Revenue, TR, res.UBI, res.D, res.RGov, growth)
	res.I = aggregate.Investment(K, K, p.Delta, growth)
	res.NetExports = aggregate.NetExports(res.R, res.RGov, res.RHH, K, res.D, res.B, growth)
	res.ResourceError = aggregate.ResourceResidual(res.Y, res.C, res.I, res.G, res.NetExports)
	res.BudgetError = fiscal.BudgetResidual(res.D, res.D, res.RGov, res.G, TR, res.UBI, res.Revenue, growth)
	return res
}

// Vars returns the named outputs of the steady state.
func (r *Result) Vars() solver.Output {
	return solver.Output{
		"Kss":                       solver.Scalar(r.K),
		"Lss":                       solver.Scalar(r.L),
		"Yss":                       solver.Scalar(r.Y),
		"Css":                       solver.Scalar(r.C),
		"Iss":                       solver.Scalar(r.I),
		"Bss":                       solver.Scalar(r.B),
		"BQss":                      solver.Scalar(r.BQ),
		"TR_ss":                     solver.Scalar(r.TR),
		"Gss":                       solver.Scalar(r.G),
		"Dss":                       solver.Scalar(r.D),
		"UBI_ss":                    solver.Scalar(r.UBI),
		"rss":                       solver.Scalar(r.R),
		"wss":                       solver.Scalar(r.W),
		"r_gov_ss":                  solver.Scalar(r.RGov),
		"r_hh_ss":                   solver.Scalar(r.RHH),
		"total_tax_revenue":         solver.Scalar(r.Revenue),
		"business_tax_revenue":      solver.Scalar(r.BusinessTax),
		"K_d_ss":                    solver.Scalar(r.KDomestic),
		"K_f_ss":                    solver.Scalar(r.KForeign),
		"D_d_ss":                    solver.Scalar(r.DDomestic),
		"D_f_ss":                    solver.Scalar(r.DForeign),
		"net_exports_ss":            solver.Scalar(r.NetExports),
		"bssmat_splus1":             solver.Matrix(r.BSavings),
		"nssmat":                    solver.Matrix(r.N),
		"cssmat":                    solver.Matrix(r.Cons),
		"taxssmat":                  solver.Matrix(r.Tax),
		"euler_savings":             solver.Matrix(r.EulerErrors),
		"euler_labor_leisure":       solver.Matrix(r.LaborErrors),
		"resource_constraint_error": solver.Scalar(r.ResourceError),
		"budget_error":              solver.Scalar(r.BudgetError),
		"iterations":                solver.Scalar(float64(r.Iterations)),
		"residual":                  solver.Scalar(r.Residual),
	}
}

// FromVars rebuilds a Result from stored outputs, for example to run a
// transition path against a steady state solved earlier.
func FromVars(out solver.Output) (*Result, error) {
	scalar := func(name string) (float64, error) {
		v, ok := out[name]
		if !ok || !v.IsScalar() {
			return 0, fmt.Errorf("steady state output %q: missing or not a scalar", name)
		}
		return v.Float(), nil
	}
	matrixOf := func(name string) ([][]float64, error) {
		v, ok := out[name]
		if !ok || len(v.Shape) != 2 {
			return nil, fmt.Errorf("steady state output %q: missing or not a matrix", name)
		}
		rows, cols := v.Shape[0], v.Shape[1]
		m := matrix(rows, cols)
		for s := 0; s < rows; s++ {
			copy(m[s], v.Data[s*cols:(s+1)*cols])
		}
		return m, nil
	}

	r := &Result{}
	scalars := []struct {
		name string
		dst  *float64
	}{
		{"Kss", &r.K}, {"Lss", &r.L}, {"Yss", &r.Y}, {"Css", &r.C}, {"Iss", &r.I},
		{"Bss", &r.B}, {"BQss", &r.BQ}, {"TR_ss", &r.TR}, {"Gss", &r.G}, {"Dss", &r.D},
		{"UBI_ss", &r.UBI}, {"rss", &r.R}, {"wss", &r.W}, {"r_gov_ss", &r.RGov},
		{"r_hh_ss", &r.RHH}, {"total_tax_revenue", &r.Revenue},
		{"business_tax_revenue", &r.BusinessTax}, {"K_d_ss", &r.KDomestic},
		{"K_f_ss", &r.KForeign}, {"D_d_ss", &r.DDomestic}, {"D_f_ss", &r.DForeign},
		{"net_exports_ss", &r.NetExports},
		{"resource_constraint_error", &r.ResourceError}, {"budget_error", &r.BudgetError},
		{"residual", &r.Residual},
	}
	for _, sc := range scalars {
		v, err := scalar(sc.name)
		if err != nil {
			return nil, err
		}
		*sc.dst = v
	}
	iters, err := scalar("iterations")
	if err != nil {
		return nil, err
	}
	r.Iterations = int(iters)

	matrices := []struct {
		name string
		dst  *[][]float64
	}{
		{"bssmat_splus1", &r.BSavings}, {"nssmat", &r.N}, {"cssmat", &r.Cons},
		{"taxssmat", &r.Tax}, {"euler_savings", &r.EulerErrors},
		{"euler_labor_leisure", &r.LaborErrors},
	}
	for _, mt := range matrices {
		v, err := matrixOf(mt.name)
		if err != nil {
			return nil, err
		}
		*mt.dst = v
	}
	return r, nil
}
