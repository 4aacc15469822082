package opt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library to conform to the
// Optimizer interface. Mayfly is global and population based: the start
// point does not seed the population, it only perturbs the RNG seed so
// distinct starts stay reproducible without replaying the same search.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter. The library requires a
// population of at least 20.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization. The library takes scalar bounds, so
// the search runs on the unit cube and positions are mapped into the box
// per dimension.
func (m *MayflyAdapter) Run(eval func([]float64) float64, x0, lower, upper []float64) (Result, error) {
	dim := len(lower)
	if len(upper) != dim {
		return Result{}, fmt.Errorf("bounds length mismatch: %d lower vs %d upper", dim, len(upper))
	}

	fromUnit := func(u []float64) []float64 {
		x := make([]float64, dim)
		for i := range x {
			x[i] = lower[i] + u[i]*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 { return eval(fromUnit(u)) }
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed ^ seedFrom(x0)))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return Result{}, fmt.Errorf("mayfly optimize: %w", err)
	}

	return Result{
		X:          fromUnit(result.GlobalBest.Position),
		Cost:       result.GlobalBest.Cost,
		Iterations: m.maxIters,
		FuncEvals:  m.maxIters * m.popSize,
		Converged:  true,
		Status:     "completed",
	}, nil
}

// seedFrom folds a start point into a deterministic seed offset.
func seedFrom(x []float64) int64 {
	var s int64
	for _, v := range x {
		s = s*31 ^ int64(math.Float64bits(v))
	}
	return s
}
