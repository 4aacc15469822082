package sample

import "sort"

// Point is a sampled location together with its evaluated objective value.
type Point struct {
	X     []float64 `json:"x"`
	Value float64   `json:"value"`
}

// Evaluate computes the objective at every point, preserving order.
func Evaluate(pts [][]float64, f func([]float64) float64) []Point {
	points := make([]Point, len(pts))
	for i, x := range pts {
		points[i] = Point{X: x, Value: f(x)}
	}
	return points
}

// SelectBest returns the k lowest-value points, best first. The input slice
// is left in its original order; k beyond the input length selects
// everything.
func SelectBest(points []Point, k int) []Point {
	if k <= 0 || len(points) == 0 {
		return nil
	}
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value < sorted[j].Value })
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}
