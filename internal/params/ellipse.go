package params

import (
	"fmt"
	"math"

	"github.com/cwbudde/ogsolve/internal/opt"
)

// Search box and settings for the elliptical utility fit.
var (
	ellipseLower = []float64{0.05, 1.01}
	ellipseUpper = []float64{3.0, 6.0}
)

const (
	ellipseGridPoints = 99
	ellipseGridMin    = 0.05
	ellipseGridMax    = 0.8
	ellipseIterations = 120
	ellipsePopulation = 24
	ellipseSeed       = 20
)

// EllipseFit fits the elliptical disutility of labor to the constant Frisch
// elasticity form by least squares on marginal disutilities over a labor grid
// and returns (b_ellipse, upsilon) together with the fit cost.
func EllipseFit(frisch, ltilde float64, optimizer opt.Optimizer) (b, upsilon, cost float64, err error) {
	if !(frisch > 0) || !(ltilde > 0) {
		return 0, 0, 0, fmt.Errorf("ellipse fit: frisch %g and ltilde %g must be positive", frisch, ltilde)
	}
	if optimizer == nil {
		optimizer = opt.NewMayfly(ellipseIterations, ellipsePopulation, ellipseSeed)
	}

	sumsq := func(x []float64) float64 {
		return ellipseSSE(frisch, ltilde, x[0], x[1])
	}
	best, cost, err := optimizer.Run(sumsq, ellipseLower, ellipseUpper)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("ellipse fit: %w", err)
	}
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 0, 0, 0, fmt.Errorf("ellipse fit: non-finite cost")
	}
	return best[0], best[1], cost, nil
}

// ellipseSSE is the squared distance between the two marginal disutility
// curves on an evenly spaced grid of labor shares.
func ellipseSSE(frisch, ltilde, b, upsilon float64) float64 {
	total := 0.0
	for i := 0; i < ellipseGridPoints; i++ {
		u := ellipseGridMin + (ellipseGridMax-ellipseGridMin)*float64(i)/float64(ellipseGridPoints-1)
		cfe := math.Pow(u, 1/frisch) / ltilde
		ell := (b / ltilde) * math.Pow(u, upsilon-1) * math.Pow(1-math.Pow(u, upsilon), (1-upsilon)/upsilon)
		d := cfe - ell
		total += d * d
	}
	return total
}
