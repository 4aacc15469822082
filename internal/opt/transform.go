package opt

import "math"

// boundaryEps keeps start points off the exact box boundary, where atanh is
// singular and the transformed gradient would vanish below any threshold.
const boundaryEps = 1e-6

// boxTransform maps between the box and an unconstrained space through
//
//	x_i = lo_i + (hi_i - lo_i) * (tanh(y_i) + 1) / 2
//
// so every y an unconstrained method tries lands inside the box after
// mapping back.
type boxTransform struct {
	lower, upper []float64
}

// toBounded maps a transform-space point into the box.
func (t boxTransform) toBounded(y []float64) []float64 {
	x := make([]float64, len(y))
	for i := range y {
		x[i] = t.lower[i] + (t.upper[i]-t.lower[i])*(math.Tanh(y[i])+1)/2
	}
	return x
}

// toUnbounded maps a box point to transform space, pulling boundary points
// just inside first.
func (t boxTransform) toUnbounded(x []float64) []float64 {
	y := make([]float64, len(x))
	for i := range x {
		u := 2*(x[i]-t.lower[i])/(t.upper[i]-t.lower[i]) - 1
		u = math.Max(-1+boundaryEps, math.Min(1-boundaryEps, u))
		y[i] = math.Atanh(u)
	}
	return y
}

// dxdy is the diagonal Jacobian entry dx_i/dy_i, used to chain analytic
// gradients through the transform.
func (t boxTransform) dxdy(y float64, i int) float64 {
	th := math.Tanh(y)
	return (t.upper[i] - t.lower[i]) / 2 * (1 - th*th)
}
