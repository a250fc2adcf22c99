// Package sample produces the jittered site grid a map is built on.
package sample

import (
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"

	"terracell.ai/internal/sim/mathx"
)

// NewRand returns a fresh generator for seed. Callers create one per regeneration so the
// sites depend only on (seed, grid size, jitter).
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewChaCha8(mathx.SeedKey(seed)))
}

// Grid returns n*n sites. Site x*n+y sits at (x, y) displaced on each axis by
// jitter*(u1-u2), u1 and u2 uniform in [0,1). Draws are taken x-pair first, then y-pair.
func Grid(rng *rand.Rand, n int, jitter float64) []mgl64.Vec2 {
	if n <= 0 {
		return []mgl64.Vec2{}
	}
	sites := make([]mgl64.Vec2, 0, n*n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			dx := jitter * (rng.Float64() - rng.Float64())
			dy := jitter * (rng.Float64() - rng.Float64())
			sites = append(sites, mgl64.Vec2{float64(x) + dx, float64(y) + dy})
		}
	}
	return sites
}

// Bounds returns the axis-aligned extent of a site set. Empty input gives zero vectors.
func Bounds(sites []mgl64.Vec2) (min, max mgl64.Vec2) {
	if len(sites) == 0 {
		return min, max
	}
	min, max = sites[0], sites[0]
	for _, p := range sites[1:] {
		min[0] = minf(min[0], p[0])
		min[1] = minf(min[1], p[1])
		max[0] = maxf(max[0], p[0])
		max[1] = maxf(max[1], p[1])
	}
	return min, max
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
