// Package render draws a generated map as SVG or PNG, with optional triangulation overlays.
package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"terracell.ai/internal/sim/terrain/dual"
	"terracell.ai/internal/sim/terrain/gen"
	"terracell.ai/internal/sim/terrain/sample"
)

type Options struct {
	Width   int // pixels; 0 means 800
	Height  int // pixels; 0 keeps the map's aspect ratio
	Padding int

	OpenCells bool // also fill cells on the hull
	Triangles bool // Delaunay edges
	Dual      bool // centroid-to-centroid edges
	Sites     bool
}

var (
	background    = color.NRGBA{0x1b, 0x1d, 0x24, 0xff}
	triangleColor = color.NRGBA{0xff, 0xff, 0xff, 0x60}
	dualColor     = color.NRGBA{0x20, 0x20, 0x20, 0xc0}
	siteColor     = color.NRGBA{0xe0, 0x40, 0x40, 0xff}
)

// view maps world coordinates onto the output image.
type view struct {
	w, h   int
	min    mgl64.Vec2
	scale  float64
	offset mgl64.Vec2
}

func newView(out *gen.Output, opts Options) view {
	w := opts.Width
	if w <= 0 {
		w = 800
	}
	pad := opts.Padding
	if pad < 0 || 2*pad >= w {
		pad = 0
	}
	lo, hi := sample.Bounds(out.Sites)
	ext := hi.Sub(lo)

	h := opts.Height
	if h <= 0 {
		h = w
		if ext[0] > 0 && ext[1] > 0 {
			h = int(math.Round(float64(w-2*pad)*ext[1]/ext[0])) + 2*pad
		}
	}
	if 2*pad >= h {
		pad = 0
	}

	scale := 1.0
	sx := float64(w-2*pad) / ext[0]
	sy := float64(h-2*pad) / ext[1]
	switch {
	case ext[0] > 0 && ext[1] > 0:
		scale = math.Min(sx, sy)
	case ext[0] > 0:
		scale = sx
	case ext[1] > 0:
		scale = sy
	}
	// Center the map inside the padded frame.
	used := ext.Mul(scale)
	off := mgl64.Vec2{
		float64(pad) + (float64(w-2*pad)-used[0])/2,
		float64(pad) + (float64(h-2*pad)-used[1])/2,
	}
	return view{w: w, h: h, min: lo, scale: scale, offset: off}
}

func (v view) project(p mgl64.Vec2) mgl64.Vec2 {
	return p.Sub(v.min).Mul(v.scale).Add(v.offset)
}

func (v view) pixel(p mgl64.Vec2) (int, int) {
	q := v.project(p)
	return int(math.Round(q[0])), int(math.Round(q[1]))
}

func cellColor(out *gen.Output, c gen.Cell) color.RGBA {
	if out.Classifier == nil {
		return color.RGBA{0x80, 0x80, 0x80, 0xff}
	}
	return out.Classifier.Category(c.Biome).Color
}

func overlays(out *gen.Output, opts Options) (tri, dl []dual.Edge) {
	if out.Graph == nil {
		return nil, nil
	}
	if opts.Triangles {
		tri = out.Graph.TriangleEdges()
	}
	if opts.Dual {
		dl = out.Graph.DualEdges()
	}
	return tri, dl
}

func rgbStyle(c color.Color) string {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return fmt.Sprintf("rgb(%d,%d,%d)", n.R, n.G, n.B)
}

func opacity(c color.Color) float64 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return math.Round(float64(n.A)/255*100) / 100
}
