// Package elevation assigns island-shaped heights to sites from a coherent noise field.
package elevation

import (
	"fmt"
	"math"

	"github.com/aquilax/go-perlin"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/ojrac/opensimplex-go"

	"terracell.ai/internal/sim/tuning"
)

// Field is a 2D noise source with output roughly in [-1, 1].
type Field interface {
	Eval2(x, y float64) float64
}

// Flat is a Field that is zero everywhere; elevation then reduces to the falloff term.
type Flat struct{}

func (Flat) Eval2(x, y float64) float64 { return 0 }

type perlinField struct{ p *perlin.Perlin }

func (f perlinField) Eval2(x, y float64) float64 { return f.p.Noise2D(x, y) }

// NewField returns the noise source named by kind, seeded with seed.
func NewField(kind string, seed int64) (Field, error) {
	switch kind {
	case "", tuning.NoiseSimplex:
		return opensimplex.New(seed), nil
	case tuning.NoisePerlin:
		return perlinField{p: perlin.NewPerlin(2, 2, 3, seed)}, nil
	case tuning.NoiseNone:
		return Flat{}, nil
	default:
		return nil, fmt.Errorf("%w: noise=%q", tuning.ErrOutOfRange, kind)
	}
}

// Shape combines a noise sample with the square falloff around the domain centre.
// nx and ny are centred coordinates in [-0.5, 0.5] across the domain.
func Shape(nx, ny, noise float64) float64 {
	d := 2 * math.Max(math.Abs(nx), math.Abs(ny))
	raw := 1 + noise
	return (1 + raw - d) / 2
}

// Synthesizer evaluates elevation at site positions over a square domain of side Extent.
type Synthesizer struct {
	Field  Field
	Extent float64
}

func (s Synthesizer) At(p mgl64.Vec2) float64 {
	d := s.Extent
	if d <= 0 {
		d = 1
	}
	nx := p[0]/d - 0.5
	ny := p[1]/d - 0.5
	noise := s.Field.Eval2(nx/0.5, ny/0.5) / 2
	return Shape(nx, ny, noise)
}

// Assign returns the elevation of every site, indexed like sites.
func (s Synthesizer) Assign(sites []mgl64.Vec2) []float64 {
	out := make([]float64, len(sites))
	for i, p := range sites {
		out[i] = s.At(p)
	}
	return out
}
