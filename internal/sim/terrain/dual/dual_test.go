package dual

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"terracell.ai/internal/sim/terrain/mesh"
	"terracell.ai/internal/sim/terrain/sample"
)

func build(t *testing.T, sites []mgl64.Vec2) *Graph {
	t.Helper()
	tri, err := mesh.Triangulate(sites)
	if err != nil {
		t.Fatalf("triangulate: %v", err)
	}
	g, err := New(sites, tri)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	return g
}

func TestHalfedgeArithmetic(t *testing.T) {
	for e := 0; e < 30; e++ {
		if PrevHalfedge(NextHalfedge(e)) != e {
			t.Fatalf("prev(next(%d)) != %d", e, e)
		}
		if TriangleOfEdge(NextHalfedge(e)) != TriangleOfEdge(e) {
			t.Fatalf("next(%d) left triangle", e)
		}
		if NextHalfedge(NextHalfedge(NextHalfedge(e))) != e {
			t.Fatalf("next^3(%d) != %d", e, e)
		}
	}
	if NextHalfedge(2) != 0 || NextHalfedge(5) != 3 || NextHalfedge(4) != 5 {
		t.Fatalf("next wraps incorrectly")
	}
	if EdgesOfTriangle(2) != [3]int{6, 7, 8} {
		t.Fatalf("EdgesOfTriangle(2)=%v", EdgesOfTriangle(2))
	}
}

func TestCentroids_MeanOfThreeVertices(t *testing.T) {
	sites := []mgl64.Vec2{{0, 0}, {3, 0}, {0, 3}}
	g := build(t, sites)
	cs := g.Centroids()
	if len(cs) != 1 {
		t.Fatalf("centroids=%d want 1", len(cs))
	}
	if math.Abs(cs[0][0]-1) > 1e-12 || math.Abs(cs[0][1]-1) > 1e-12 {
		t.Fatalf("centroid=%v want (1,1)", cs[0])
	}
	for _, s := range sites {
		if cs[0] == s {
			t.Fatalf("centroid collapsed onto vertex %v", s)
		}
	}
}

func TestCells_Lattice3x3(t *testing.T) {
	g := build(t, sample.Grid(sample.NewRand(0xDEADBEEF), 3, 0))
	cells, err := g.Cells()
	if err != nil {
		t.Fatalf("cells: %v", err)
	}
	if len(cells) != 9 {
		t.Fatalf("cells=%d want 9", len(cells))
	}
	onHull := map[int]bool{}
	for _, s := range g.Triangulation().Hull {
		onHull[s] = true
	}
	for i, c := range cells {
		if c.Site != i {
			t.Fatalf("cell %d owns site %d", i, c.Site)
		}
		if c.Closed == onHull[c.Site] {
			t.Fatalf("site %d closed=%v hull=%v", c.Site, c.Closed, onHull[c.Site])
		}
	}
	if !cells[4].Closed {
		t.Fatalf("centre cell should be closed")
	}
}

func TestCells_RandomGridMatchesHull(t *testing.T) {
	sites := sample.Grid(sample.NewRand(1234), 16, 1)
	g := build(t, sites)
	cells, err := g.Cells()
	if err != nil {
		t.Fatalf("cells: %v", err)
	}
	if len(cells) != len(sites) {
		t.Fatalf("cells=%d sites=%d", len(cells), len(sites))
	}
	onHull := map[int]bool{}
	for _, s := range g.Triangulation().Hull {
		onHull[s] = true
	}
	refs := 0
	seen := map[int]bool{}
	for _, c := range cells {
		if seen[c.Site] {
			t.Fatalf("site %d visited twice", c.Site)
		}
		seen[c.Site] = true
		if c.Closed == onHull[c.Site] {
			t.Fatalf("site %d closed=%v hull=%v", c.Site, c.Closed, onHull[c.Site])
		}
		if len(c.Vertices) != len(c.Triangles) {
			t.Fatalf("site %d: %d vertices for %d triangles", c.Site, len(c.Vertices), len(c.Triangles))
		}
		refs += len(c.Triangles)
	}
	// Every triangle is in the fan of each of its three corners.
	if want := 3 * g.Triangulation().NumTriangles(); refs != want {
		t.Fatalf("triangle refs=%d want %d", refs, want)
	}
}

func TestCellForSite_ClosedWalkReturnsToStart(t *testing.T) {
	g := build(t, sample.Grid(sample.NewRand(0xDEADBEEF), 3, 0))
	c, err := g.CellForSite(g.IncomingEdge(4))
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if !c.Closed || c.Site != 4 {
		t.Fatalf("centre cell: %+v", c)
	}
	// Starting from any incoming edge of an interior site yields the same triangle set.
	want := map[int]bool{}
	for _, tr := range c.Triangles {
		want[tr] = true
	}
	tri := g.Triangulation()
	for e := range tri.Triangles {
		if tri.Triangles[NextHalfedge(e)] != 4 {
			continue
		}
		c2, err := g.CellForSite(e)
		if err != nil {
			t.Fatalf("walk from %d: %v", e, err)
		}
		if !c2.Closed || len(c2.Triangles) != len(c.Triangles) {
			t.Fatalf("walk from %d: closed=%v n=%d", e, c2.Closed, len(c2.Triangles))
		}
		for _, tr := range c2.Triangles {
			if !want[tr] {
				t.Fatalf("walk from %d visited foreign triangle %d", e, tr)
			}
		}
	}
}

func TestCellForSite_GuardsIndices(t *testing.T) {
	g := build(t, sample.Grid(sample.NewRand(3), 4, 0.5))
	if _, err := g.CellForSite(-1); !errors.Is(err, mesh.ErrIndexInvariant) {
		t.Fatalf("negative start: err=%v", err)
	}
	if _, err := g.CellForSite(len(g.Triangulation().Halfedges)); !errors.Is(err, mesh.ErrIndexInvariant) {
		t.Fatalf("past-end start: err=%v", err)
	}
}

func TestCellForSite_CorruptTablesDoNotLoop(t *testing.T) {
	g := &Graph{
		sites: []mgl64.Vec2{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {2, 1}, {1, 2}},
		tri: &mesh.Triangulation{
			Triangles: []int{0, 1, 2, 3, 4, 5},
			Halfedges: []int{-1, 4, -1, -1, -1, 4},
		},
		centroids: make([]mgl64.Vec2, 2),
	}
	if _, err := g.CellForSite(0); !errors.Is(err, mesh.ErrIndexInvariant) {
		t.Fatalf("cyclic walk: err=%v", err)
	}
	g.tri.Halfedges = []int{-1, 99, -1, -1, -1, -1}
	if _, err := g.CellForSite(0); !errors.Is(err, mesh.ErrIndexInvariant) {
		t.Fatalf("out of range opposite: err=%v", err)
	}
}

func TestNew_RejectsAsymmetricTables(t *testing.T) {
	sites := []mgl64.Vec2{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	tri := &mesh.Triangulation{
		Triangles: []int{0, 1, 2, 2, 1, 3},
		Halfedges: []int{-1, 3, -1, 0, -1, -1},
	}
	if _, err := New(sites, tri); !errors.Is(err, mesh.ErrIndexInvariant) {
		t.Fatalf("err=%v want ErrIndexInvariant", err)
	}
}

func TestEdges_CountsAndUniqueness(t *testing.T) {
	g := build(t, sample.Grid(sample.NewRand(77), 10, 1))
	tri := g.Triangulation()
	paired := 0
	for _, h := range tri.Halfedges {
		if h != mesh.NoOpposite {
			paired++
		}
	}
	hullEdges := len(tri.Halfedges) - paired

	dual := g.DualEdges()
	if len(dual) != paired/2 {
		t.Fatalf("dual edges=%d want %d", len(dual), paired/2)
	}
	seen := map[int]bool{}
	for _, d := range dual {
		h := tri.Halfedges[d.Halfedge]
		if d.Halfedge >= h || seen[d.Halfedge] || seen[h] {
			t.Fatalf("dual edge %d emitted twice or from the wrong side", d.Halfedge)
		}
		seen[d.Halfedge] = true
		seen[h] = true
	}

	if got, want := len(g.TriangleEdges()), paired/2+hullEdges; got != want {
		t.Fatalf("triangle edges=%d want %d", got, want)
	}
	if hullEdges != len(tri.Hull) {
		t.Fatalf("hull edges=%d hull sites=%d", hullEdges, len(tri.Hull))
	}
}

func TestFanIndices(t *testing.T) {
	if FanIndices(2) != nil {
		t.Fatalf("fan of 2 vertices should be empty")
	}
	got := FanIndices(5)
	want := []uint32{0, 2, 1, 0, 3, 2, 0, 4, 3}
	if len(got) != len(want) {
		t.Fatalf("len=%d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d = %d want %d", i, got[i], want[i])
		}
	}
}
