package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/ogsolve/internal/solver"
)

// Run kinds.
const (
	KindSS  = "ss"
	KindTPI = "tpi"
)

// RunConfig records how a run was launched. It is copied here rather than
// importing the CLI or server packages to avoid import cycles.
type RunConfig struct {
	Kind          string  `json:"kind"`                 // ss or tpi
	Preset        string  `json:"preset,omitempty"`     // default or small
	ParamsPath    string  `json:"paramsPath,omitempty"` // YAML overrides, empty for defaults
	S             int     `json:"S"`
	T             int     `json:"T"`
	J             int     `json:"J"`
	Method        string  `json:"method,omitempty"`
	Tolerance     float64 `json:"tolerance"`
	MaxIterations int     `json:"maxIterations"`
	Damping       float64 `json:"damping"`
	Workers       int     `json:"workers"`

	InitialSearch bool `json:"initialSearch,omitempty"` // mayfly warm start for the SS guess
	SkipChecks    bool `json:"skipChecks,omitempty"`    // report failed solution checks without failing

	// Parent is the steady-state run a transition path started from.
	Parent string `json:"parent,omitempty"`
}

// Run is one persisted solver invocation.
//
// A failed run is saved too: Error holds the message, Converged is false and
// Outputs is empty. The residual and iteration count of the last iteration
// are kept in both cases so failures can be inspected later.
type Run struct {
	// ID is the unique identifier of this run (a UUID for new runs)
	ID string `json:"id"`

	Config RunConfig `json:"config"`

	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
	Residual   float64 `json:"residual"`
	Error      string  `json:"error,omitempty"`

	// Timestamp records when the run finished
	Timestamp time.Time `json:"timestamp"`

	// Elapsed is the wall-clock solve time
	Elapsed time.Duration `json:"elapsed"`

	// Outputs are the named solver outputs of a converged run
	Outputs solver.Output `json:"outputs,omitempty"`

	// Summary holds scalar statistics derived from the outputs, such as
	// inequality measures
	Summary map[string]float64 `json:"summary,omitempty"`
}

// RunInfo is run metadata without the outputs, for cheap listing.
type RunInfo struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Converged  bool      `json:"converged"`
	Iterations int       `json:"iterations"`
	Residual   float64   `json:"residual"`
	Timestamp  time.Time `json:"timestamp"`
	S          int       `json:"S"`
	T          int       `json:"T"`
	J          int       `json:"J"`
	Parent     string    `json:"parent,omitempty"`
}

// NewRun creates a run record stamped with the current time.
func NewRun(id string, config RunConfig, outputs solver.Output, iterations int, residual float64, solveErr error) *Run {
	r := &Run{
		ID:         id,
		Config:     config,
		Converged:  solveErr == nil,
		Iterations: iterations,
		Residual:   residual,
		Timestamp:  time.Now(),
		Outputs:    outputs,
	}
	if solveErr != nil {
		r.Error = solveErr.Error()
		r.Outputs = nil
	}
	return r
}

// ToInfo converts a Run to RunInfo (metadata only).
func (r *Run) ToInfo() RunInfo {
	return RunInfo{
		ID:         r.ID,
		Kind:       r.Config.Kind,
		Converged:  r.Converged,
		Iterations: r.Iterations,
		Residual:   r.Residual,
		Timestamp:  r.Timestamp,
		S:          r.Config.S,
		T:          r.Config.T,
		J:          r.Config.J,
		Parent:     r.Config.Parent,
	}
}

// Validate checks that a run record is complete.
func (r *Run) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Config.Kind != KindSS && r.Config.Kind != KindTPI {
		return &ValidationError{Field: "Config.Kind", Reason: fmt.Sprintf("unknown kind %q", r.Config.Kind)}
	}
	if r.Config.S <= 0 || r.Config.T <= 0 || r.Config.J <= 0 {
		return &ValidationError{Field: "Config", Reason: "dimensions must be positive"}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Converged && len(r.Outputs) == 0 {
		return &ValidationError{Field: "Outputs", Reason: "converged run has no outputs"}
	}
	if !r.Converged && r.Error == "" {
		return &ValidationError{Field: "Error", Reason: "failed run must record its error"}
	}
	return nil
}

// ValidationError represents a run validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether a transition path with the given config can
// start from this steady-state run.
func (r *Run) IsCompatible(config RunConfig) error {
	if r.Config.Kind != KindSS {
		return &CompatibilityError{Field: "Kind", Expected: KindSS, Actual: r.Config.Kind}
	}
	if !r.Converged {
		return &CompatibilityError{Field: "Converged", Expected: "true", Actual: "false"}
	}
	if r.Config.S != config.S {
		return &CompatibilityError{
			Field:    "S",
			Expected: fmt.Sprintf("%d", r.Config.S),
			Actual:   fmt.Sprintf("%d", config.S),
		}
	}
	if r.Config.J != config.J {
		return &CompatibilityError{
			Field:    "J",
			Expected: fmt.Sprintf("%d", r.Config.J),
			Actual:   fmt.Sprintf("%d", config.J),
		}
	}
	return nil
}

// CompatibilityError represents a run compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
