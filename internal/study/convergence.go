package study

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines parameters for early-stopping a study once
// additional runs stop improving the best cost.
type ConvergenceConfig struct {
	// Enabled controls whether early stop is active.
	Enabled bool `json:"enabled"`

	// Patience is the number of completed runs with no significant
	// improvement before the remaining starts are cancelled.
	Patience int `json:"patience"`

	// Threshold is the minimum relative improvement required to count as
	// progress. Example: 0.001 = 0.1% improvement required.
	// Relative improvement = (oldCost - newCost) / oldCost.
	Threshold float64 `json:"threshold"`
}

// DefaultConvergenceConfig returns sensible defaults for early stop.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  3,
		Threshold: 0.001, // 0.1% improvement
	}
}

// DisabledConvergenceConfig returns a config with early stop switched off.
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

// Tracker watches the stream of completed-run costs and detects when the
// study has stalled.
type Tracker struct {
	config          ConvergenceConfig
	costHistory     []float64
	bestCost        float64 // Best cost ever seen
	lastSignificant float64 // Last cost that was a significant improvement
	staleCount      int     // Number of runs without significant improvement
}

// NewTracker creates a tracker with the given config.
func NewTracker(config ConvergenceConfig) *Tracker {
	return &Tracker{
		config:          config,
		costHistory:     []float64{},
		bestCost:        math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records the cost of a completed run and returns true once the
// study should stop early.
func (c *Tracker) Update(cost float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.costHistory = append(c.costHistory, cost)

	if cost < c.bestCost {
		c.bestCost = cost
	}

	// First run initializes the reference point.
	if len(c.costHistory) == 1 {
		c.lastSignificant = cost
		return false
	}

	relativeImprovement := (c.lastSignificant - cost) / c.lastSignificant

	if relativeImprovement >= c.config.Threshold {
		c.lastSignificant = cost
		c.staleCount = 0
		slog.Debug("Cost improvement detected",
			"cost", cost,
			"relative_improvement", relativeImprovement,
		)
	} else {
		c.staleCount++
		slog.Debug("No significant cost improvement",
			"cost", cost,
			"last_significant", c.lastSignificant,
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
		)

		if c.staleCount >= c.config.Patience {
			slog.Info("Early stop triggered",
				"stale_count", c.staleCount,
				"patience", c.config.Patience,
				"best_cost", c.bestCost,
			)
			return true
		}
	}

	return false
}

// BestCost returns the best cost seen so far.
func (c *Tracker) BestCost() float64 {
	return c.bestCost
}

// History returns a copy of the recorded costs.
func (c *Tracker) History() []float64 {
	return append([]float64{}, c.costHistory...)
}

// StaleCount returns the current number of runs without improvement.
func (c *Tracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker's state.
func (c *Tracker) Reset() {
	c.costHistory = []float64{}
	c.bestCost = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
