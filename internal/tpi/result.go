package tpi

import (
	"log/slog"
	"math"

	"github.com/cwbudde/ogsolve/internal/aggregate"
	"github.com/cwbudde/ogsolve/internal/solver"
)

// Result is a solved transition path. Series have length T+S; household
// arrays are indexed [t][s][j].
type Result struct {
	K, L, Y, C, I, B []float64
	BQ, TR, G, D     []float64
	UBI              []float64

	R, W, RGov, RHH []float64
	Revenue         []float64

	KDomestic, KForeign []float64
	DDomestic, DForeign []float64

	BMat   [][][]float64 // savings carried into the next age
	NMat   [][][]float64 // labor supply
	CMat   [][][]float64 // consumption
	TaxMat [][][]float64 // income tax paid

	EulerError float64 // largest savings first-order condition error
	LaborError float64 // largest labor first-order condition error

	Iterations int
	Residual   float64
}

// result reports the converged path. Prices are the guessed series
// households optimized against; quantities are the implied aggregates.
func (m *model) result(pa *paths, agg *aggregates, rGov, rHH []float64, iters int, dist float64) *Result {
	cp := func(v []float64) []float64 { return append([]float64(nil), v...) }
	ar := m.arena

	res := &Result{
		K: agg.K, L: agg.L, Y: agg.Y, C: agg.C, I: agg.I, B: agg.B,
		BQ: cp(pa.bq), TR: cp(pa.tr), G: agg.G, D: agg.D, UBI: agg.UBI,
		R: cp(pa.r), W: cp(pa.w), RGov: rGov, RHH: rHH,
		Revenue:    agg.Revenue,
		KDomestic:  agg.KDom,
		KForeign:   agg.KFor,
		DDomestic:  agg.DDom,
		DForeign:   agg.DFor,
		BMat:       ar.cube(ar.b),
		NMat:       ar.cube(ar.n),
		CMat:       ar.cube(ar.c),
		TaxMat:     ar.cube(ar.tax),
		Iterations: iters,
		Residual:   dist,
	}
	for j := 0; j < ar.J; j++ {
		res.EulerError = math.Max(res.EulerError, aggregate.MaxAbs(ar.euler[j]))
		res.LaborError = math.Max(res.LaborError, aggregate.MaxAbs(ar.labor[j]))
	}
	return res
}

// check verifies household optimality along the path.
func (m *model) check(res *Result) error {
	tol := m.opts.CheckTolerance
	e := math.Max(res.EulerError, res.LaborError)
	if e <= tol {
		return nil
	}
	if !m.opts.EnforceSolutionChecks {
		slog.Warn("Transition path check failed", "foc_error", e, "tolerance", tol)
		return nil
	}
	return solver.Numericalf("tpi solution check", -1, "household first-order condition error %.3e (tolerance %.1e)", e, tol)
}

// Vars returns the named outputs of the transition path.
func (r *Result) Vars() solver.Output {
	return solver.Output{
		"K":                 solver.Vector(r.K),
		"L":                 solver.Vector(r.L),
		"Y":                 solver.Vector(r.Y),
		"C":                 solver.Vector(r.C),
		"I":                 solver.Vector(r.I),
		"B":                 solver.Vector(r.B),
		"BQ":                solver.Vector(r.BQ),
		"TR":                solver.Vector(r.TR),
		"G":                 solver.Vector(r.G),
		"D":                 solver.Vector(r.D),
		"UBI":               solver.Vector(r.UBI),
		"r":                 solver.Vector(r.R),
		"w":                 solver.Vector(r.W),
		"r_gov":             solver.Vector(r.RGov),
		"r_hh":              solver.Vector(r.RHH),
		"total_tax_revenue": solver.Vector(r.Revenue),
		"K_d":               solver.Vector(r.KDomestic),
		"K_f":               solver.Vector(r.KForeign),
		"D_d":               solver.Vector(r.DDomestic),
		"D_f":               solver.Vector(r.DForeign),
		"bmat_splus1":       solver.Cube(r.BMat),
		"nmat":              solver.Cube(r.NMat),
		"cmat":              solver.Cube(r.CMat),
		"taxmat":            solver.Cube(r.TaxMat),
		"euler_error":       solver.Scalar(r.EulerError),
		"labor_error":       solver.Scalar(r.LaborError),
		"iterations":        solver.Scalar(float64(r.Iterations)),
		"residual":          solver.Scalar(r.Residual),
	}
}
