// Package surface defines the quadratic cost surface over the cost/risk
// plane together with its closed-form properties: gradient, Hessian,
// convexity, and the exact minimizer inside a bounded box. The closed forms
// double as the oracle the optimization pipeline is checked against.
package surface

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Quadratic holds the coefficients of the surface
//
//	T(c, r) = A20*c² + A02*r² + A11*c*r + A10*c + A01*r + A00
//
// in the decision variables c (cost) and r (risk).
type Quadratic struct {
	A20 float64 `json:"a20"`
	A02 float64 `json:"a02"`
	A11 float64 `json:"a11"`
	A10 float64 `json:"a10"`
	A01 float64 `json:"a01"`
	A00 float64 `json:"a00"`
}

// Default returns the canonical surface. It is strictly convex with its
// unconstrained minimum at (405, 79.5), value 1250, interior to the default
// box.
func Default() Quadratic {
	return Quadratic{
		A20: 0.15,
		A02: 2.0,
		A11: 0.08,
		A10: -127.86,
		A01: -350.4,
		A00: 41070.05,
	}
}

// At evaluates the surface at (c, r).
func (q Quadratic) At(c, r float64) float64 {
	return q.A20*c*c + q.A02*r*r + q.A11*c*r + q.A10*c + q.A01*r + q.A00
}

// Eval evaluates the surface at x = [c, r]. It has the objective shape the
// optimizer adapters consume.
func (q Quadratic) Eval(x []float64) float64 {
	return q.At(x[0], x[1])
}

// Grad writes the analytic gradient at x into grad, matching the signature
// gonum's optimize.Problem.Grad expects.
func (q Quadratic) Grad(grad, x []float64) {
	grad[0] = 2*q.A20*x[0] + q.A11*x[1] + q.A10
	grad[1] = 2*q.A02*x[1] + q.A11*x[0] + q.A01
}

// Hessian returns the constant Hessian matrix of the surface.
func (q Quadratic) Hessian() *mat.SymDense {
	return mat.NewSymDense(2, []float64{
		2 * q.A20, q.A11,
		q.A11, 2 * q.A02,
	})
}

// IsConvex reports whether the surface is strictly convex, i.e. whether the
// Hessian is positive definite.
func (q Quadratic) IsConvex() bool {
	var chol mat.Cholesky
	return chol.Factorize(q.Hessian())
}

// Vertex solves grad T = 0 for the unconstrained stationary point. It fails
// when the Hessian is singular and no unique stationary point exists.
func (q Quadratic) Vertex() ([]float64, error) {
	var x mat.VecDense
	rhs := mat.NewVecDense(2, []float64{-q.A10, -q.A01})
	if err := x.SolveVec(q.Hessian(), rhs); err != nil {
		return nil, fmt.Errorf("surface has no unique stationary point: %w", err)
	}
	return []float64{x.AtVec(0), x.AtVec(1)}, nil
}

// MinimumInBox returns the exact constrained minimizer of a convex surface
// over the box, and its value. When the vertex is interior it is the
// answer; otherwise the minimum lies on the boundary and is found among the
// four one-dimensional edge restrictions, whose clamped minimizers also
// cover the corners.
func (q Quadratic) MinimumInBox(b Bounds) ([]float64, float64) {
	if v, err := q.Vertex(); err == nil && b.Contains(v) {
		return v, q.Eval(v)
	}

	cLo, cHi := b.Lower[0], b.Upper[0]
	rLo, rHi := b.Lower[1], b.Upper[1]

	candidates := [][]float64{
		{cLo, clamp(q.bestRiskAt(cLo), rLo, rHi)},
		{cHi, clamp(q.bestRiskAt(cHi), rLo, rHi)},
		{clamp(q.bestCostAt(rLo), cLo, cHi), rLo},
		{clamp(q.bestCostAt(rHi), cLo, cHi), rHi},
	}

	best := candidates[0]
	bestVal := q.Eval(best)
	for _, cand := range candidates[1:] {
		if v := q.Eval(cand); v < bestVal {
			best, bestVal = cand, v
		}
	}
	return best, bestVal
}

// bestRiskAt minimizes the surface in r with c held fixed.
func (q Quadratic) bestRiskAt(c float64) float64 {
	return -(q.A11*c + q.A01) / (2 * q.A02)
}

// bestCostAt minimizes the surface in c with r held fixed.
func (q Quadratic) bestCostAt(r float64) float64 {
	return -(q.A11*r + q.A10) / (2 * q.A20)
}
