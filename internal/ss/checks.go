package ss

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/ogsolve/internal/aggregate"
	"github.com/cwbudde/ogsolve/internal/solver"
)

// check verifies household optimality and the accounting identities of a
// solved steady state. The resource constraint is only tested without
// population growth, where the growth-adjusted identity is exact. Failures
// are errors when solution checks are enforced and warnings otherwise.
func (m *model) check(res *Result) error {
	tol := m.opts.CheckTolerance
	var failures []string

	if e := math.Max(aggregate.MaxAbs(res.EulerErrors), aggregate.MaxAbs(res.LaborErrors)); e > tol {
		failures = append(failures, fmt.Sprintf("household first-order condition error %.3e", e))
	}
	if e := math.Abs(res.BudgetError); !(e <= tol) {
		failures = append(failures, fmt.Sprintf("government budget error %.3e", e))
	}
	if m.p.GNSS == 0 {
		if e := math.Abs(res.ResourceError); !(e <= tol) {
			failures = append(failures, fmt.Sprintf("resource constraint error %.3e", e))
		}
	}
	if res.K <= 0 || res.Y <= 0 || res.C <= 0 {
		failures = append(failures, fmt.Sprintf("non-positive aggregates K=%g Y=%g C=%g", res.K, res.Y, res.C))
	}

	if len(failures) == 0 {
		return nil
	}
	if !m.opts.EnforceSolutionChecks {
		for _, f := range failures {
			slog.Warn("Steady state check failed", "check", f, "tolerance", tol)
		}
		return nil
	}
	return solver.Numericalf("ss solution check", -1, "%s (tolerance %.1e)", failures[0], tol)
}
