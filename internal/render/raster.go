package render

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/image/vector"

	"terracell.ai/internal/sim/terrain/gen"
)

// Raster fills every cell polygon into an RGBA image.
func Raster(out *gen.Output, opts Options) *image.RGBA {
	v := newView(out, opts)
	dst := image.NewRGBA(image.Rect(0, 0, v.w, v.h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	z := vector.NewRasterizer(v.w, v.h)
	for _, c := range out.Cells {
		if len(c.Vertices) < 3 || (!c.Closed && !opts.OpenCells) {
			continue
		}
		z.Reset(v.w, v.h)
		for i, p := range c.Vertices {
			q := v.project(p)
			if i == 0 {
				z.MoveTo(float32(q[0]), float32(q[1]))
			} else {
				z.LineTo(float32(q[0]), float32(q[1]))
			}
		}
		z.ClosePath()
		z.Draw(dst, dst.Bounds(), image.NewUniform(cellColor(out, c)), image.Point{})
	}

	tri, dl := overlays(out, opts)
	for _, e := range tri {
		strokeLine(z, dst, v.project(e.A), v.project(e.B), 1, triangleColor)
	}
	for _, e := range dl {
		strokeLine(z, dst, v.project(e.A), v.project(e.B), 1, dualColor)
	}
	if opts.Sites {
		for _, p := range out.Sites {
			q := v.project(p)
			fillSquare(z, dst, q, 2, siteColor)
		}
	}
	return dst
}

// PNG encodes Raster's output.
func PNG(w io.Writer, out *gen.Output, opts Options) error {
	return png.Encode(w, Raster(out, opts))
}

// strokeLine draws a segment as a quad of the given pixel width.
func strokeLine(z *vector.Rasterizer, dst *image.RGBA, a, b mgl64.Vec2, width float64, c color.Color) {
	d := b.Sub(a)
	if d.Len() == 0 {
		return
	}
	n := mgl64.Vec2{-d[1], d[0]}.Normalize().Mul(width / 2)
	z.Reset(dst.Bounds().Dx(), dst.Bounds().Dy())
	moveTo(z, a.Add(n))
	lineTo(z, b.Add(n))
	lineTo(z, b.Sub(n))
	lineTo(z, a.Sub(n))
	z.ClosePath()
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

func fillSquare(z *vector.Rasterizer, dst *image.RGBA, p mgl64.Vec2, r float64, c color.Color) {
	z.Reset(dst.Bounds().Dx(), dst.Bounds().Dy())
	moveTo(z, p.Add(mgl64.Vec2{-r, -r}))
	lineTo(z, p.Add(mgl64.Vec2{r, -r}))
	lineTo(z, p.Add(mgl64.Vec2{r, r}))
	lineTo(z, p.Add(mgl64.Vec2{-r, r}))
	z.ClosePath()
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

func moveTo(z *vector.Rasterizer, p mgl64.Vec2) { z.MoveTo(float32(p[0]), float32(p[1])) }
func lineTo(z *vector.Rasterizer, p mgl64.Vec2) { z.LineTo(float32(p[0]), float32(p[1])) }
