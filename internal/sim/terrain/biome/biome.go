// Package biome partitions elevation into ordered categories.
package biome

import (
	"fmt"
	"image/color"
	"math"

	"terracell.ai/internal/sim/tuning"
)

// Category is one elevation band. ID is its index, lowest band first.
type Category struct {
	ID    uint16     `json:"id"`
	Name  string     `json:"name"`
	Color color.RGBA `json:"-"`
	Fill  string     `json:"fill"`
}

type Classifier struct {
	thresholds []float64
	cats       []Category
}

// New builds a classifier from ascending thresholds and len(thresholds)+1 names.
// Band i covers [thresholds[i-1], thresholds[i]).
func New(thresholds []float64, names []string) (*Classifier, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("%w: no thresholds", tuning.ErrOutOfRange)
	}
	if len(names) != len(thresholds)+1 {
		return nil, fmt.Errorf("%w: %d names for %d thresholds", tuning.ErrOutOfRange, len(names), len(thresholds))
	}
	for i := 1; i < len(thresholds); i++ {
		if !(thresholds[i] > thresholds[i-1]) {
			return nil, fmt.Errorf("%w: thresholds not ascending at %d", tuning.ErrOutOfRange, i)
		}
	}
	c := &Classifier{thresholds: append([]float64(nil), thresholds...)}
	n := len(names)
	for i, name := range names {
		// Hue runs from water blue (240) to grass green (90).
		hue := 240.0
		if n > 1 {
			hue = 240 - 150*float64(i)/float64(n-1)
		}
		c.cats = append(c.cats, Category{
			ID:    uint16(i),
			Name:  name,
			Color: hsl(hue, 0.3, 0.5),
			Fill:  fmt.Sprintf("hsl(%g,30%%,50%%)", hue),
		})
	}
	return c, nil
}

func FromConfig(m tuning.MapGen) (*Classifier, error) {
	return New(m.ThresholdList(), m.BiomeNames())
}

// Classify returns the band index of e: the first band whose upper threshold exceeds e.
func (c *Classifier) Classify(e float64) uint16 {
	for i, th := range c.thresholds {
		if e < th {
			return uint16(i)
		}
	}
	return uint16(len(c.thresholds))
}

func (c *Classifier) Name(e float64) string { return c.cats[c.Classify(e)].Name }

func (c *Classifier) Category(id uint16) Category {
	if int(id) >= len(c.cats) {
		return Category{ID: id, Name: "unknown", Color: color.RGBA{A: 255}, Fill: "#000"}
	}
	return c.cats[id]
}

func (c *Classifier) Categories() []Category { return append([]Category(nil), c.cats...) }

func (c *Classifier) Thresholds() []float64 { return append([]float64(nil), c.thresholds...) }

// ClassifyAll maps an elevation field to band ids.
func (c *Classifier) ClassifyAll(elev []float64) []uint16 {
	out := make([]uint16, len(elev))
	for i, e := range elev {
		out[i] = c.Classify(e)
	}
	return out
}

func hsl(h, s, l float64) color.RGBA {
	ch := (1 - math.Abs(2*l-1)) * s
	hp := h / 60
	x := ch * (1 - math.Abs(math.Mod(hp, 2)-1))
	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = ch, x, 0
	case hp < 2:
		r, g, b = x, ch, 0
	case hp < 3:
		r, g, b = 0, ch, x
	case hp < 4:
		r, g, b = 0, x, ch
	case hp < 5:
		r, g, b = x, 0, ch
	default:
		r, g, b = ch, 0, x
	}
	m := l - ch/2
	to8 := func(v float64) uint8 { return uint8(math.Round((v + m) * 255)) }
	return color.RGBA{R: to8(r), G: to8(g), B: to8(b), A: 255}
}
