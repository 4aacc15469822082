// Package sample generates space-filling point sets inside the feasible box
// and picks the most promising of them as local-optimization starts.
package sample

import (
	"math/rand"

	"github.com/costrisk/costrisk/internal/surface"
)

// Sampler generates n points inside the box. Implementations are
// deterministic for a fixed seed.
type Sampler interface {
	Sample(n int, b surface.Bounds) [][]float64
}

// LatinHypercube stratifies each dimension into n equal bins, places one
// coordinate per bin with uniform jitter inside it, and pairs bins across
// dimensions through independent random permutations. Compared to plain
// uniform draws this guarantees marginal coverage of the whole box.
type LatinHypercube struct {
	rng *rand.Rand
}

// NewLatinHypercube returns a seeded Latin Hypercube sampler.
func NewLatinHypercube(seed int64) *LatinHypercube {
	return &LatinHypercube{rng: rand.New(rand.NewSource(seed))}
}

// Sample generates n stratified points.
func (l *LatinHypercube) Sample(n int, b surface.Bounds) [][]float64 {
	if n <= 0 {
		return nil
	}
	pts := makePoints(n, b.Dim())
	for j := 0; j < b.Dim(); j++ {
		width := (b.Upper[j] - b.Lower[j]) / float64(n)
		perm := l.rng.Perm(n)
		for i := 0; i < n; i++ {
			pts[perm[i]][j] = b.Lower[j] + (float64(i)+l.rng.Float64())*width
		}
	}
	return pts
}

// Uniform draws n independent uniform points.
type Uniform struct {
	rng *rand.Rand
}

// NewUniform returns a seeded uniform sampler.
func NewUniform(seed int64) *Uniform {
	return &Uniform{rng: rand.New(rand.NewSource(seed))}
}

// Sample generates n uniform points.
func (u *Uniform) Sample(n int, b surface.Bounds) [][]float64 {
	if n <= 0 {
		return nil
	}
	pts := makePoints(n, b.Dim())
	for i := range pts {
		for j := 0; j < b.Dim(); j++ {
			pts[i][j] = b.Lower[j] + u.rng.Float64()*(b.Upper[j]-b.Lower[j])
		}
	}
	return pts
}

// Grid generates a regular mesh of cell centers with the largest side count
// whose total stays within n, so it returns side^dim ≤ n points. It takes
// no randomness and is fully deterministic.
type Grid struct{}

// Sample generates the mesh.
func (Grid) Sample(n int, b surface.Bounds) [][]float64 {
	if n <= 0 {
		return nil
	}
	dim := b.Dim()
	side := 1
	for intPow(side+1, dim) <= n {
		side++
	}

	pts := make([][]float64, 0, intPow(side, dim))
	idx := make([]int, dim)
	for {
		p := make([]float64, dim)
		for j := 0; j < dim; j++ {
			cell := (b.Upper[j] - b.Lower[j]) / float64(side)
			p[j] = b.Lower[j] + (float64(idx[j])+0.5)*cell
		}
		pts = append(pts, p)

		j := 0
		for ; j < dim; j++ {
			idx[j]++
			if idx[j] < side {
				break
			}
			idx[j] = 0
		}
		if j == dim {
			return pts
		}
	}
}

// ByName returns the sampler registered under the given strategy name.
func ByName(name string, seed int64) (Sampler, bool) {
	switch name {
	case "lhs":
		return NewLatinHypercube(seed), true
	case "uniform":
		return NewUniform(seed), true
	case "grid":
		return Grid{}, true
	}
	return nil, false
}

func makePoints(n, dim int) [][]float64 {
	pts := make([][]float64, n)
	for i := range pts {
		pts[i] = make([]float64, dim)
	}
	return pts
}

func intPow(base, exp int) int {
	out := 1
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}
