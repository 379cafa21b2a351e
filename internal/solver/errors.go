package solver

import (
	"errors"
	"fmt"
	"math"
)

// Error kinds. Match with errors.Is; the concrete types below carry the
// diagnostic details.
var (
	ErrConvergence   = errors.New("solver: iteration cap reached without convergence")
	ErrNumerical     = errors.New("solver: numerical failure")
	ErrConfiguration = errors.New("solver: invalid configuration")
)

// ConvergenceError is returned when an outer loop exhausts its iteration cap.
type ConvergenceError struct {
	Solver     string
	Iterations int
	Residual   float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s: no convergence after %d iterations (residual %.3e)", e.Solver, e.Iterations, e.Residual)
}

func (e *ConvergenceError) Unwrap() error { return ErrConvergence }

// NumericalError reports a NaN/Inf, a divide-by-zero or a failed inner solve.
// Period is -1 when the failure is not tied to a time period.
type NumericalError struct {
	Where  string
	Period int
	Value  float64
	Err    error
}

func (e *NumericalError) Error() string {
	msg := "numerical error in " + e.Where
	if e.Period >= 0 {
		msg += fmt.Sprintf(" (period %d)", e.Period)
	}
	if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		msg += fmt.Sprintf(": value %v", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NumericalError) Is(target error) bool { return target == ErrNumerical }

func (e *NumericalError) Unwrap() error { return e.Err }

// ConfigurationError reports inconsistent parameters or options.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Field + " " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// Configf builds a ConfigurationError with a formatted reason.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Numericalf builds a NumericalError that is not tied to a non-finite value.
func Numericalf(where string, period int, format string, args ...any) error {
	return &NumericalError{Where: where, Period: period, Err: fmt.Errorf(format, args...)}
}

// CheckFinite returns a NumericalError for the first NaN or Inf in vals.
func CheckFinite(where string, period int, vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &NumericalError{Where: where, Period: period, Value: v}
		}
	}
	return nil
}
