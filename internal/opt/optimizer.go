package opt

// Optimizer defines a derivative-free global minimizer over a box.
type Optimizer interface {
	// Run minimizes eval over [lower, upper] (one bound pair per dimension)
	// and returns the best point and its cost.
	Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)
}
