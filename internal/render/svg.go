package render

import (
	"fmt"
	"io"

	svg "github.com/ajstarks/svgo"

	"terracell.ai/internal/sim/terrain/gen"
)

// SVG writes the map as one polygon per cell, filled with its biome colour.
func SVG(w io.Writer, out *gen.Output, opts Options) error {
	v := newView(out, opts)
	ew := &errWriter{w: w}

	canvas := svg.New(ew)
	canvas.Start(v.w, v.h)
	canvas.Title(fmt.Sprintf("generation %d", out.Generation))
	canvas.Rect(0, 0, v.w, v.h, "fill:"+rgbStyle(background))

	canvas.Gid("cells")
	for _, c := range out.Cells {
		if len(c.Vertices) < 3 || (!c.Closed && !opts.OpenCells) {
			continue
		}
		xs := make([]int, len(c.Vertices))
		ys := make([]int, len(c.Vertices))
		for i, p := range c.Vertices {
			xs[i], ys[i] = v.pixel(p)
		}
		fill := rgbStyle(cellColor(out, c))
		canvas.Polygon(xs, ys, fmt.Sprintf("fill:%s;stroke:%s;stroke-width:0.5", fill, fill))
	}
	canvas.Gend()

	tri, dl := overlays(out, opts)
	if len(tri) > 0 {
		canvas.Gstyle(fmt.Sprintf("stroke:%s;stroke-opacity:%.2f;stroke-width:1", rgbStyle(triangleColor), opacity(triangleColor)))
		for _, e := range tri {
			x1, y1 := v.pixel(e.A)
			x2, y2 := v.pixel(e.B)
			canvas.Line(x1, y1, x2, y2)
		}
		canvas.Gend()
	}
	if len(dl) > 0 {
		canvas.Gstyle(fmt.Sprintf("stroke:%s;stroke-opacity:%.2f;stroke-width:1", rgbStyle(dualColor), opacity(dualColor)))
		for _, e := range dl {
			x1, y1 := v.pixel(e.A)
			x2, y2 := v.pixel(e.B)
			canvas.Line(x1, y1, x2, y2)
		}
		canvas.Gend()
	}
	if opts.Sites {
		canvas.Gstyle("fill:" + rgbStyle(siteColor))
		for _, p := range out.Sites {
			x, y := v.pixel(p)
			canvas.Circle(x, y, 2)
		}
		canvas.Gend()
	}
	canvas.End()
	return ew.err
}

// errWriter keeps the first write error; svgo discards them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}
