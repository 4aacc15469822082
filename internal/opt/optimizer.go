// Package opt provides local optimizer backends behind a single interface.
// The gonum-based backends handle box constraints through a smooth change of
// variables; the mayfly backend is population based and searches the box
// directly.
package opt

// Result holds the outcome of a single optimization run.
type Result struct {
	// X is the best parameter vector found, inside the box.
	X []float64
	// Cost is the objective value at X.
	Cost float64
	// Iterations and FuncEvals count the work spent.
	Iterations int
	FuncEvals  int
	// Converged reports whether the backend stopped at a solution rather
	// than on a budget. Status carries the backend's own termination
	// message either way.
	Converged bool
	Status    string
}

// Optimizer defines an optimization algorithm interface. Implementations
// must be safe for concurrent use; the pipeline runs several starts at once.
type Optimizer interface {
	// Run minimizes eval from x0, keeping iterates within [lower, upper].
	// Population-based backends may use x0 only to diversify their seed.
	// A non-nil error means the run produced nothing usable; exhausting a
	// budget is reported through Result.Converged and Result.Status
	// instead.
	Run(eval func([]float64) float64, x0, lower, upper []float64) (Result, error)
}
