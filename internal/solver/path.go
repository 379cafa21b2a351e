package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ConvexCombo writes nu*implied + (1-nu)*guess into dst and returns it.
// dst may alias guess.
func ConvexCombo(dst, implied, guess []float64, nu float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(guess))
	}
	tmp := make([]float64, len(guess))
	floats.ScaleTo(tmp, 1-nu, guess)
	floats.AddScaled(tmp, nu, implied)
	copy(dst, tmp)
	return dst
}

// MaxAbsDiff returns the sup-norm distance between two equal-length slices.
// A NaN anywhere yields NaN.
func MaxAbsDiff(a, b []float64) float64 {
	if floats.HasNaN(a) || floats.HasNaN(b) {
		return math.NaN()
	}
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, math.Inf(1))
}

// InitialPath builds a guess of length T+S that moves from x1 at t=0 to xT at
// t=T-1 and stays at xT for the S periods after.
func InitialPath(x1, xT float64, T, S int, shape string) ([]float64, error) {
	if T < 2 {
		return nil, Configf("T", "initial path needs at least 2 periods, got %d", T)
	}
	path := make([]float64, T+S)
	switch shape {
	case "linear", "":
		for t := 0; t < T; t++ {
			path[t] = x1 + (xT-x1)*float64(t)/float64(T-1)
		}
	case "ratio":
		// Concave approach: -(xT-x1)/(d+1) + xT over an evenly spaced domain.
		for t := 0; t < T; t++ {
			d := float64(T) * float64(t) / float64(T-1)
			path[t] = -(xT-x1)/(d+1) + xT
		}
	case "quadratic":
		cc := x1
		bb := 2 * (xT - x1) / float64(T-1)
		aa := (x1 - xT) / float64((T-1)*(T-1))
		for t := 0; t < T; t++ {
			ft := float64(t)
			path[t] = aa*ft*ft + bb*ft + cc
		}
	default:
		return nil, Configf("initial_path_shape", "unknown shape %q", shape)
	}
	for t := T; t < T+S; t++ {
		path[t] = xT
	}
	return path, nil
}

// RateConversion converts an annual rate to a model-period rate when one
// model period spans (endAge-startAge)/S years.
func RateConversion(annual, startAge, endAge float64, S int) float64 {
	return math.Pow(1+annual, (endAge-startAge)/float64(S)) - 1
}
