package solver

import "math"

// Method selects the outer algorithm of the steady-state solver.
type Method string

const (
	MethodFixedPoint Method = "fixed_point"
	MethodNewton     Method = "newton"
)

// Progress is reported once per outer iteration.
type Progress struct {
	Solver    string  `json:"solver"`
	Iteration int     `json:"iteration"`
	Residual  float64 `json:"residual"`
}

// Options controls a single solver invocation. Nothing here is process-wide:
// each call gets its own copy, so concurrent solves never interfere.
type Options struct {
	// Tolerance on the max-abs residual between guessed and implied aggregates.
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`

	// MaxIterations caps the outer loop.
	MaxIterations int `yaml:"max_iterations" json:"maxIterations"`

	// Damping is the weight on the implied values in the update, in (0, 1].
	Damping float64 `yaml:"damping_factor" json:"damping"`

	// EnforceSolutionChecks turns failed post-solve checks into errors.
	// Small fixtures that are intentionally unrealistic switch this off.
	EnforceSolutionChecks bool `yaml:"enforce_solution_checks" json:"enforceSolutionChecks"`

	// CheckTolerance bounds household FOC errors and accounting identities.
	CheckTolerance float64 `yaml:"check_tolerance" json:"checkTolerance"`

	// Method selects the steady-state outer algorithm. Newton is the default;
	// the damped fixed point needs a damping matched to the calibration.
	Method Method `yaml:"method" json:"method"`

	// InnerTolerance and InnerMaxIterations control household Newton solves.
	InnerTolerance     float64 `yaml:"inner_tolerance" json:"innerTolerance"`
	InnerMaxIterations int     `yaml:"inner_max_iterations" json:"innerMaxIterations"`

	// InitialSearch runs a derivative-free global search for the SS guess.
	InitialSearch    bool  `yaml:"initial_search" json:"initialSearch"`
	SearchIterations int   `yaml:"search_iterations" json:"searchIterations"`
	SearchPopulation int   `yaml:"search_population" json:"searchPopulation"`
	Seed             int64 `yaml:"seed" json:"seed"`

	// InitialPathShape is the TPI guess shape: linear, ratio or quadratic.
	InitialPathShape string `yaml:"initial_path_shape" json:"initialPathShape"`

	// OnIteration, if set, is called from the orchestrating goroutine.
	OnIteration func(Progress) `yaml:"-" json:"-"`
}

// DefaultOptions returns options shared by both solvers.
func DefaultOptions() Options {
	return Options{
		Tolerance:             1e-9,
		MaxIterations:         250,
		Damping:               0.4,
		EnforceSolutionChecks: true,
		CheckTolerance:        1e-6,
		Method:                MethodNewton,
		InnerTolerance:        1e-11,
		InnerMaxIterations:    100,
		SearchIterations:      20,
		SearchPopulation:      20,
		Seed:                  42,
		InitialPathShape:      "linear",
	}
}

// Validate rejects options no solver can run with.
func (o Options) Validate() error {
	if !(o.Tolerance > 0) || math.IsInf(o.Tolerance, 0) {
		return Configf("tolerance", "must be positive and finite, got %g", o.Tolerance)
	}
	if o.MaxIterations <= 0 {
		return Configf("max_iterations", "must be positive, got %d", o.MaxIterations)
	}
	if !(o.Damping > 0 && o.Damping <= 1) {
		return Configf("damping_factor", "must be in (0, 1], got %g", o.Damping)
	}
	if !(o.InnerTolerance > 0) {
		return Configf("inner_tolerance", "must be positive, got %g", o.InnerTolerance)
	}
	if o.InnerMaxIterations <= 0 {
		return Configf("inner_max_iterations", "must be positive, got %d", o.InnerMaxIterations)
	}
	if o.CheckTolerance < 0 {
		return Configf("check_tolerance", "cannot be negative")
	}
	switch o.Method {
	case MethodFixedPoint, MethodNewton, "":
	default:
		return Configf("method", "unknown method %q", o.Method)
	}
	switch o.InitialPathShape {
	case "linear", "ratio", "quadratic", "":
	default:
		return Configf("initial_path_shape", "unknown shape %q", o.InitialPathShape)
	}
	if o.InitialSearch && (o.SearchIterations <= 0 || o.SearchPopulation <= 0) {
		return Configf("search_iterations", "initial search needs positive iterations and population")
	}
	return nil
}

// Report forwards one iteration to OnIteration when set.
func (o Options) Report(solver string, iter int, residual float64) {
	if o.OnIteration != nil {
		o.OnIteration(Progress{Solver: solver, Iteration: iter, Residual: residual})
	}
}
