// Package mesh builds the Delaunay triangulation of a site set in half-edge form.
package mesh

import (
	"errors"
	"fmt"
	"math"

	"github.com/fogleman/delaunay"
	"github.com/go-gl/mathgl/mgl64"
)

// NoOpposite marks a half-edge on the convex hull.
const NoOpposite = -1

var (
	// ErrDegenerateInput is returned when no triangulation exists: fewer than three distinct
	// sites, or all sites on one line.
	ErrDegenerateInput = errors.New("degenerate input")
	// ErrIndexInvariant is returned when half-edge tables are malformed or a walk leaves them.
	ErrIndexInvariant = errors.New("index invariant violated")
)

// Triangulation holds the index tables of a triangulated site set.
// Half-edge e belongs to triangle e/3 and starts at site Triangles[e].
type Triangulation struct {
	Triangles []int
	Halfedges []int
	Hull      []int
}

func (t *Triangulation) NumTriangles() int {
	if t == nil {
		return 0
	}
	return len(t.Triangles) / 3
}

// Triangulate computes the Delaunay triangulation of sites.
func Triangulate(sites []mgl64.Vec2) (*Triangulation, error) {
	if len(sites) < 3 {
		return nil, fmt.Errorf("%w: %d sites", ErrDegenerateInput, len(sites))
	}
	if collinear(sites) {
		return nil, fmt.Errorf("%w: all %d sites collinear", ErrDegenerateInput, len(sites))
	}

	pts := make([]delaunay.Point, len(sites))
	for i, s := range sites {
		pts[i] = delaunay.Point{X: s[0], Y: s[1]}
	}
	res, err := delaunay.Triangulate(pts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateInput, err)
	}
	if res == nil || len(res.Triangles) == 0 {
		return nil, fmt.Errorf("%w: no triangles", ErrDegenerateInput)
	}

	t := &Triangulation{
		Triangles: append([]int(nil), res.Triangles...),
		Halfedges: append([]int(nil), res.Halfedges...),
	}
	if err := t.Validate(len(sites)); err != nil {
		return nil, err
	}
	hull, err := t.hullFromHalfedges()
	if err != nil {
		return nil, err
	}
	t.Hull = hull
	return t, nil
}

// Validate checks table lengths, index ranges and the symmetric pairing of half-edges.
func (t *Triangulation) Validate(numSites int) error {
	if len(t.Triangles)%3 != 0 {
		return fmt.Errorf("%w: len(triangles)=%d not a multiple of 3", ErrIndexInvariant, len(t.Triangles))
	}
	if len(t.Halfedges) != len(t.Triangles) {
		return fmt.Errorf("%w: len(halfedges)=%d len(triangles)=%d", ErrIndexInvariant, len(t.Halfedges), len(t.Triangles))
	}
	for e, s := range t.Triangles {
		if s < 0 || s >= numSites {
			return fmt.Errorf("%w: triangles[%d]=%d out of range", ErrIndexInvariant, e, s)
		}
	}
	for e, f := range t.Halfedges {
		if f == NoOpposite {
			continue
		}
		if f < 0 || f >= len(t.Halfedges) {
			return fmt.Errorf("%w: halfedges[%d]=%d out of range", ErrIndexInvariant, e, f)
		}
		if t.Halfedges[f] != e {
			return fmt.Errorf("%w: halfedges[%d]=%d but halfedges[%d]=%d", ErrIndexInvariant, e, f, f, t.Halfedges[f])
		}
	}
	return nil
}

// hullFromHalfedges chains the unpaired half-edges into the ordered hull, starting at the
// lowest site index.
func (t *Triangulation) hullFromHalfedges() ([]int, error) {
	next := map[int]int{}
	start := -1
	for e, f := range t.Halfedges {
		if f != NoOpposite {
			continue
		}
		from := t.Triangles[e]
		to := t.Triangles[nextEdge(e)]
		if _, dup := next[from]; dup {
			return nil, fmt.Errorf("%w: site %d has two outgoing hull edges", ErrIndexInvariant, from)
		}
		next[from] = to
		if start == -1 || from < start {
			start = from
		}
	}
	if start == -1 {
		return nil, fmt.Errorf("%w: no hull edges", ErrIndexInvariant)
	}

	hull := make([]int, 0, len(next))
	cur := start
	for {
		hull = append(hull, cur)
		to, ok := next[cur]
		if !ok {
			return nil, fmt.Errorf("%w: hull broken at site %d", ErrIndexInvariant, cur)
		}
		cur = to
		if cur == start {
			break
		}
		if len(hull) > len(next) {
			return nil, fmt.Errorf("%w: hull does not close", ErrIndexInvariant)
		}
	}
	if len(hull) != len(next) {
		return nil, fmt.Errorf("%w: hull has %d of %d edges", ErrIndexInvariant, len(hull), len(next))
	}
	return hull, nil
}

func nextEdge(e int) int {
	if e%3 == 2 {
		return e - 2
	}
	return e + 1
}

func collinear(sites []mgl64.Vec2) bool {
	p0 := sites[0]
	var d mgl64.Vec2
	found := false
	for _, p := range sites[1:] {
		if p != p0 {
			d = p.Sub(p0)
			found = true
			break
		}
	}
	if !found {
		return true
	}
	dl := d.Len()
	for _, p := range sites[1:] {
		v := p.Sub(p0)
		if math.Abs(d[0]*v[1]-d[1]*v[0]) > collinearEps*dl*v.Len() {
			return false
		}
	}
	return true
}

// collinearEps bounds |sin| of the angle between two site offsets still treated as parallel.
const collinearEps = 1e-9
