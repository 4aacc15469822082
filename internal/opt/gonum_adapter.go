package opt

import (
	"fmt"

	"gonum.org/v1/gonum/optimize"
)

// BFGS is a quasi-Newton local optimizer backed by gonum. The box is
// enforced with the tanh change of variables, so the underlying
// unconstrained method never evaluates outside it.
type BFGS struct {
	MaxIters int
	Tol      float64
	// Grad optionally supplies the analytic gradient of the objective; it
	// is chained through the transform. Left nil, gonum falls back to
	// finite differences.
	Grad func(grad, x []float64)
}

// NewBFGS creates a BFGS backend with the given iteration cap and gradient
// threshold.
func NewBFGS(maxIters int, tol float64) *BFGS {
	return &BFGS{MaxIters: maxIters, Tol: tol}
}

// Run minimizes eval from x0 within [lower, upper].
func (o *BFGS) Run(eval func([]float64) float64, x0, lower, upper []float64) (Result, error) {
	return gonumMinimize(&optimize.BFGS{}, eval, o.Grad, x0, lower, upper, o.MaxIters, o.Tol)
}

// NelderMead is a derivative-free simplex optimizer backed by gonum, run
// under the same box transform as BFGS.
type NelderMead struct {
	MaxIters int
	Tol      float64
}

// NewNelderMead creates a Nelder-Mead backend.
func NewNelderMead(maxIters int, tol float64) *NelderMead {
	return &NelderMead{MaxIters: maxIters, Tol: tol}
}

// Run minimizes eval from x0 within [lower, upper].
func (o *NelderMead) Run(eval func([]float64) float64, x0, lower, upper []float64) (Result, error) {
	return gonumMinimize(&optimize.NelderMead{}, eval, nil, x0, lower, upper, o.MaxIters, o.Tol)
}

// gonumMinimize runs a gonum method on the transformed problem and folds
// the outcome into a Result. Stopping on a budget is not an error: it comes
// back as Converged=false with the solver's own message in Status.
func gonumMinimize(method optimize.Method, eval func([]float64) float64, grad func(grad, x []float64), x0, lower, upper []float64, maxIters int, tol float64) (Result, error) {
	if len(x0) != len(lower) || len(x0) != len(upper) {
		return Result{}, fmt.Errorf("start point dimension %d does not match bounds dimension %d", len(x0), len(lower))
	}

	t := boxTransform{lower: lower, upper: upper}

	problem := optimize.Problem{
		Func: func(y []float64) float64 {
			return eval(t.toBounded(y))
		},
	}
	if grad != nil {
		problem.Grad = func(g, y []float64) {
			grad(g, t.toBounded(y))
			for i := range g {
				g[i] *= t.dxdy(y[i], i)
			}
		}
	}

	settings := optimize.Settings{
		MajorIterations:   maxIters,
		GradientThreshold: tol,
	}

	res, err := optimize.Minimize(problem, t.toUnbounded(x0), &settings, method)
	if res == nil {
		return Result{}, fmt.Errorf("minimize: %w", err)
	}

	out := Result{
		X:          t.toBounded(res.X),
		Cost:       res.F,
		Iterations: res.Stats.MajorIterations,
		FuncEvals:  res.Stats.FuncEvaluations,
	}
	switch {
	case err != nil:
		out.Status = err.Error()
	case res.Status.Err() != nil:
		out.Status = res.Status.Err().Error()
	default:
		out.Converged = true
		out.Status = res.Status.String()
	}
	return out, nil
}
