// Package dual derives the centroid cells around each site from a triangulation.
package dual

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"terracell.ai/internal/sim/terrain/mesh"
)

// NextHalfedge returns the following half-edge of the same triangle.
func NextHalfedge(e int) int {
	if e%3 == 2 {
		return e - 2
	}
	return e + 1
}

// PrevHalfedge returns the preceding half-edge of the same triangle.
func PrevHalfedge(e int) int {
	if e%3 == 0 {
		return e + 2
	}
	return e - 1
}

func TriangleOfEdge(e int) int { return e / 3 }

func EdgesOfTriangle(t int) [3]int { return [3]int{3 * t, 3*t + 1, 3*t + 2} }

// Cell is the loop of triangle centroids around one site, in walk order.
// An open cell belongs to a hull site and lacks the closing edge from last to first vertex.
type Cell struct {
	Site      int
	Triangles []int
	Vertices  []mgl64.Vec2
	Closed    bool
}

// Edge is a segment between two points plus the half-edge it was derived from.
type Edge struct {
	A, B     mgl64.Vec2
	Halfedge int
}

// Graph answers dual-graph queries over a fixed site set and its triangulation.
type Graph struct {
	sites     []mgl64.Vec2
	tri       *mesh.Triangulation
	centroids []mgl64.Vec2
	inedges   []int
}

// New validates the triangulation against sites and indexes one incoming half-edge per site.
// Hull sites are indexed by their unpaired incoming edge so walks cover their whole fan.
func New(sites []mgl64.Vec2, tri *mesh.Triangulation) (*Graph, error) {
	if tri == nil {
		return nil, fmt.Errorf("%w: nil triangulation", mesh.ErrIndexInvariant)
	}
	if err := tri.Validate(len(sites)); err != nil {
		return nil, err
	}
	g := &Graph{sites: sites, tri: tri}
	g.inedges = make([]int, len(sites))
	for i := range g.inedges {
		g.inedges[i] = mesh.NoOpposite
	}
	for e := range tri.Triangles {
		p := tri.Triangles[NextHalfedge(e)]
		if tri.Halfedges[e] == mesh.NoOpposite || g.inedges[p] == mesh.NoOpposite {
			g.inedges[p] = e
		}
	}
	g.centroids = computeCentroids(sites, tri)
	return g, nil
}

func computeCentroids(sites []mgl64.Vec2, tri *mesh.Triangulation) []mgl64.Vec2 {
	out := make([]mgl64.Vec2, tri.NumTriangles())
	for t := range out {
		var sum mgl64.Vec2
		for _, e := range EdgesOfTriangle(t) {
			sum = sum.Add(sites[tri.Triangles[e]])
		}
		out[t] = sum.Mul(1.0 / 3.0)
	}
	return out
}

// Centroids returns the per-triangle vertex means. The slice is shared; do not modify it.
func (g *Graph) Centroids() []mgl64.Vec2 { return g.centroids }

func (g *Graph) Sites() []mgl64.Vec2 { return g.sites }

func (g *Graph) Triangulation() *mesh.Triangulation { return g.tri }

// IncomingEdge returns the indexed incoming half-edge of site, or mesh.NoOpposite when the
// site is referenced by no triangle.
func (g *Graph) IncomingEdge(site int) int {
	if site < 0 || site >= len(g.inedges) {
		return mesh.NoOpposite
	}
	return g.inedges[site]
}

// CellForSite walks around the site that start points to: step to the next half-edge of the
// triangle, cross to its opposite, and stop on returning to start (closed) or on reaching the
// hull (open).
func (g *Graph) CellForSite(start int) (Cell, error) {
	n := len(g.tri.Halfedges)
	if start < 0 || start >= n {
		return Cell{}, fmt.Errorf("%w: start edge %d out of range [0,%d)", mesh.ErrIndexInvariant, start, n)
	}
	c := Cell{Site: g.tri.Triangles[NextHalfedge(start)]}
	e := start
	for steps := 0; ; steps++ {
		if steps >= n {
			return Cell{}, fmt.Errorf("%w: walk around site %d did not terminate", mesh.ErrIndexInvariant, c.Site)
		}
		t := TriangleOfEdge(e)
		c.Triangles = append(c.Triangles, t)
		c.Vertices = append(c.Vertices, g.centroids[t])

		opp := g.tri.Halfedges[NextHalfedge(e)]
		if opp == mesh.NoOpposite {
			return c, nil
		}
		if opp < 0 || opp >= n {
			return Cell{}, fmt.Errorf("%w: halfedges[%d]=%d out of range", mesh.ErrIndexInvariant, NextHalfedge(e), opp)
		}
		e = opp
		if e == start {
			c.Closed = true
			return c, nil
		}
	}
}

// Cells returns one cell per site that appears in the triangulation, ordered by site index.
func (g *Graph) Cells() ([]Cell, error) {
	seen := make([]bool, len(g.sites))
	out := make([]Cell, 0, len(g.sites))
	for site, e := range g.inedges {
		if e == mesh.NoOpposite || seen[site] {
			continue
		}
		seen[site] = true
		c, err := g.CellForSite(e)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// TriangleEdges returns every Delaunay edge once.
func (g *Graph) TriangleEdges() []Edge {
	var out []Edge
	for e, h := range g.tri.Halfedges {
		if e > h {
			out = append(out, Edge{
				A:        g.sites[g.tri.Triangles[e]],
				B:        g.sites[g.tri.Triangles[NextHalfedge(e)]],
				Halfedge: e,
			})
		}
	}
	return out
}

// DualEdges returns the centroid segment across every interior edge once.
func (g *Graph) DualEdges() []Edge {
	var out []Edge
	for e, h := range g.tri.Halfedges {
		if h == mesh.NoOpposite || e >= h {
			continue
		}
		out = append(out, Edge{
			A:        g.centroids[TriangleOfEdge(e)],
			B:        g.centroids[TriangleOfEdge(h)],
			Halfedge: e,
		})
	}
	return out
}

// FanIndices triangulates an n-vertex polygon as a fan around vertex 0.
func FanIndices(n int) []uint32 {
	if n < 3 {
		return nil
	}
	out := make([]uint32, 0, 3*(n-2))
	for i := 2; i < n; i++ {
		out = append(out, 0, uint32(i), uint32(i-1))
	}
	return out
}
