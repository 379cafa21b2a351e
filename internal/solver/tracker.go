package solver

import (
	"log/slog"
	"math"
)

// StallConfig defines when an outer loop is considered stalled. A stall is
// only logged; the iteration cap still decides failure.
type StallConfig struct {
	// Patience is the number of iterations without significant improvement
	// before a stall is reported.
	Patience int

	// Threshold is the minimum relative residual improvement that counts as
	// progress. Relative improvement = (old - new) / old.
	Threshold float64
}

// DefaultStallConfig returns defaults suited to damped fixed-point loops.
func DefaultStallConfig() StallConfig {
	return StallConfig{
		Patience:  25,
		Threshold: 0.01,
	}
}

// Tracker records the residual history of one outer loop.
type Tracker struct {
	solver          string
	config          StallConfig
	history         []float64
	best            float64
	lastSignificant float64
	staleCount      int
	stallReported   bool
}

// NewTracker creates a tracker for the named solver.
func NewTracker(solver string, config StallConfig) *Tracker {
	return &Tracker{
		solver:          solver,
		config:          config,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a residual and returns true the first time the loop is
// detected as stalled.
func (t *Tracker) Update(residual float64) bool {
	t.history = append(t.history, residual)
	if residual < t.best {
		t.best = residual
	}

	if len(t.history) == 1 {
		t.lastSignificant = residual
		return false
	}

	improvement := (t.lastSignificant - residual) / t.lastSignificant
	if improvement >= t.config.Threshold {
		t.lastSignificant = residual
		t.staleCount = 0
		return false
	}

	t.staleCount++
	if t.config.Patience > 0 && t.staleCount >= t.config.Patience && !t.stallReported {
		t.stallReported = true
		slog.Warn("Solver residual stalled",
			"solver", t.solver,
			"iteration", len(t.history),
			"residual", residual,
			"best", t.best,
			"stale_count", t.staleCount,
		)
		return true
	}
	return false
}

// Best returns the smallest residual seen.
func (t *Tracker) Best() float64 {
	return t.best
}

// Last returns the most recent residual, or +Inf before the first update.
func (t *Tracker) Last() float64 {
	if len(t.history) == 0 {
		return math.Inf(1)
	}
	return t.history[len(t.history)-1]
}

// History returns a copy of all recorded residuals.
func (t *Tracker) History() []float64 {
	return append([]float64{}, t.history...)
}

// Iterations returns the number of recorded residuals.
func (t *Tracker) Iterations() int {
	return len(t.history)
}

// StaleCount returns the number of iterations since the last improvement.
func (t *Tracker) StaleCount() int {
	return t.staleCount
}
