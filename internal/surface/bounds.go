package surface

import (
	"fmt"
	"math"
)

// Bounds defines the feasible box for the decision variables, one
// [Lower[i], Upper[i]] interval per dimension.
type Bounds struct {
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
}

// DefaultBounds returns the standard feasible box: cost in [375, 425] and
// risk in [75, 85].
func DefaultBounds() Bounds {
	return Bounds{
		Lower: []float64{375, 75},
		Upper: []float64{425, 85},
	}
}

// Dim returns the dimensionality of the box.
func (b Bounds) Dim() int {
	return len(b.Lower)
}

// Validate checks that the box is well-formed: non-empty, matching lengths,
// and lower strictly below upper in every dimension.
func (b Bounds) Validate() error {
	if len(b.Lower) == 0 {
		return fmt.Errorf("bounds are empty")
	}
	if len(b.Lower) != len(b.Upper) {
		return fmt.Errorf("bounds length mismatch: %d lower vs %d upper", len(b.Lower), len(b.Upper))
	}
	for i := range b.Lower {
		// The negated comparison also rejects NaN endpoints.
		if !(b.Lower[i] < b.Upper[i]) {
			return fmt.Errorf("dimension %d: lower bound %g must be below upper bound %g", i, b.Lower[i], b.Upper[i])
		}
	}
	return nil
}

// Contains reports whether x lies inside the box, boundary included.
func (b Bounds) Contains(x []float64) bool {
	if len(x) != len(b.Lower) {
		return false
	}
	for i, v := range x {
		if v < b.Lower[i] || v > b.Upper[i] {
			return false
		}
	}
	return true
}

// Clamp projects x onto the box in place and returns it.
func (b Bounds) Clamp(x []float64) []float64 {
	for i := range x {
		x[i] = clamp(x[i], b.Lower[i], b.Upper[i])
	}
	return x
}

// Center returns the midpoint of the box.
func (b Bounds) Center() []float64 {
	c := make([]float64, len(b.Lower))
	for i := range c {
		c[i] = (b.Lower[i] + b.Upper[i]) / 2
	}
	return c
}

// Span returns the per-dimension widths of the box.
func (b Bounds) Span() []float64 {
	s := make([]float64, len(b.Lower))
	for i := range s {
		s[i] = b.Upper[i] - b.Lower[i]
	}
	return s
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, val))
}
