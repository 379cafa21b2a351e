package opt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// minPopulation is the smallest population mayfly v0.1.0 accepts.
const minPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < minPopulation {
		popSize = minPopulation
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
//
// The library only takes scalar bounds, so the search runs on the unit cube
// and every candidate is mapped onto [lower, upper] before evaluation.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	dim := len(lower)
	if dim == 0 || len(upper) != dim {
		return nil, 0, fmt.Errorf("mayfly: bounds length mismatch (%d lower, %d upper)", len(lower), len(upper))
	}
	for i := range lower {
		if !(upper[i] > lower[i]) {
			return nil, 0, fmt.Errorf("mayfly: empty bound interval in dimension %d", i)
		}
	}

	scratch := make([]float64, dim)
	objective := func(u []float64) float64 {
		toBox(scratch, u, lower, upper)
		cost := eval(scratch)
		if math.IsNaN(cost) {
			return math.Inf(1)
		}
		return cost
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = objective
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly: %w", err)
	}

	best := make([]float64, dim)
	toBox(best, result.GlobalBest.Position, lower, upper)
	return best, result.GlobalBest.Cost, nil
}

func toBox(dst, u, lower, upper []float64) {
	for i := range dst {
		v := u[i]
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		dst[i] = lower[i] + v*(upper[i]-lower[i])
	}
}
