package gen

import (
	"errors"
	"math"
	"testing"

	"terracell.ai/internal/sim/terrain/mesh"
	"terracell.ai/internal/sim/tuning"
)

func lattice3() tuning.MapGen {
	cfg := tuning.DefaultMapGen()
	cfg.GridSize = 3
	cfg.Jitter = 0
	return cfg
}

func TestGenerate_Lattice3x3(t *testing.T) {
	out, err := Run(lattice3())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(out.Sites) != 9 {
		t.Fatalf("sites=%d want 9", len(out.Sites))
	}
	i := 0
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			if out.Sites[i][0] != float64(x) || out.Sites[i][1] != float64(y) {
				t.Fatalf("site %d=%v want (%d,%d)", i, out.Sites[i], x, y)
			}
			i++
		}
	}
	if out.NumTriangles() != 8 {
		t.Fatalf("triangles=%d want 8", out.NumTriangles())
	}
	if len(out.Cells) != 9 {
		t.Fatalf("cells=%d want 9", len(out.Cells))
	}
	hull := map[int]bool{}
	for _, s := range out.Graph.Triangulation().Hull {
		hull[s] = true
	}
	open := 0
	for _, c := range out.Cells {
		if c.Closed == hull[c.Site] {
			t.Fatalf("site %d closed=%v hull=%v", c.Site, c.Closed, hull[c.Site])
		}
		if !c.Closed {
			open++
		}
		if c.Elevation != out.Elevation[c.Site] || c.Biome != out.Biomes[c.Site] {
			t.Fatalf("cell %d not keyed by site index", c.Site)
		}
	}
	if open != 8 {
		t.Fatalf("open cells=%d want 8", open)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	cfg := tuning.DefaultMapGen()
	a, err := Run(cfg)
	if err != nil {
		t.Fatalf("a: %v", err)
	}
	b, err := Run(cfg)
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	if a.Digest != b.Digest {
		t.Fatalf("digest mismatch: %s vs %s", a.Digest, b.Digest)
	}
	for i := range a.Elevation {
		if math.Float64bits(a.Elevation[i]) != math.Float64bits(b.Elevation[i]) {
			t.Fatalf("elevation %d differs", i)
		}
	}
	ta, tb := a.Graph.Triangulation(), b.Graph.Triangulation()
	for i := range ta.Triangles {
		if ta.Triangles[i] != tb.Triangles[i] || ta.Halfedges[i] != tb.Halfedges[i] {
			t.Fatalf("tables differ at %d", i)
		}
	}

	cfg.Seed++
	c, err := Run(cfg)
	if err != nil {
		t.Fatalf("c: %v", err)
	}
	if c.Digest == a.Digest {
		t.Fatalf("different seeds produced the same digest")
	}
}

func TestGenerate_EmptyGrid(t *testing.T) {
	cfg := tuning.DefaultMapGen()
	cfg.GridSize = 0
	out, err := Run(cfg)
	if err != nil {
		t.Fatalf("empty grid: %v", err)
	}
	if len(out.Cells) != 0 || len(out.Sites) != 0 || len(out.Elevation) != 0 {
		t.Fatalf("expected empty output, got %d cells", len(out.Cells))
	}
}

func TestEmpty_RejectsBadClassifier(t *testing.T) {
	cfg := tuning.DefaultMapGen()
	cfg.Thresholds = []float64{0.5, 0.2}
	cfg.Biomes = []string{"a", "b", "c"}
	if _, err := Empty(cfg); !errors.Is(err, tuning.ErrOutOfRange) {
		t.Fatalf("err=%v want ErrOutOfRange", err)
	}
	out, err := Empty(tuning.DefaultMapGen())
	if err != nil || out.Classifier == nil {
		t.Fatalf("default config: out=%v err=%v", out, err)
	}
}

func TestGenerate_DegenerateGrid(t *testing.T) {
	cfg := tuning.DefaultMapGen()
	cfg.GridSize = 1
	if _, err := Run(cfg); !errors.Is(err, mesh.ErrDegenerateInput) {
		t.Fatalf("err=%v want ErrDegenerateInput", err)
	}
}

func TestGenerate_RejectsBadConfig(t *testing.T) {
	cfg := tuning.DefaultMapGen()
	cfg.Jitter = -1
	if _, err := Run(cfg); !errors.Is(err, tuning.ErrOutOfRange) {
		t.Fatalf("err=%v want ErrOutOfRange", err)
	}
}

func TestGenerate_ElevationExtentFallsBackToGrid(t *testing.T) {
	cfg := lattice3()
	cfg.Noise = tuning.NoiseNone
	cfg.ElevationExtent = 0
	cfg.GridSize = 5
	out, err := Run(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// Site (2,2) with D=5 sits at nx=ny=-0.1.
	got := out.Elevation[2*5+2]
	want := (2 - 2*math.Abs(2.0/5-0.5)) / 2
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("elevation=%v want %v", got, want)
	}
}

func TestReclassify_KeepsGeometry(t *testing.T) {
	cfg := tuning.DefaultMapGen()
	a, err := Run(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	cfg2 := cfg
	cfg2.ElevationThreshold = -10
	b, err := Reclassify(a, cfg2)
	if err != nil {
		t.Fatalf("reclassify: %v", err)
	}
	if len(b.Cells) != len(a.Cells) {
		t.Fatalf("cell count changed")
	}
	for _, c := range b.Cells {
		if c.Biome != 1 {
			t.Fatalf("site %d biome=%d want high", c.Site, c.Biome)
		}
	}
	if b.Digest == a.Digest {
		t.Fatalf("digest did not change with classification")
	}

	cfg3 := cfg
	cfg3.Jitter = 0.2
	if _, err := Reclassify(a, cfg3); err == nil {
		t.Fatalf("reclassify accepted a geometry change")
	}
}

func TestRelax_HullFixedInteriorMoves(t *testing.T) {
	cfg := tuning.DefaultMapGen()
	cfg.GridSize = 8
	base, err := Run(cfg)
	if err != nil {
		t.Fatalf("base: %v", err)
	}
	cfg.RelaxIterations = 2
	relaxed, err := Run(cfg)
	if err != nil {
		t.Fatalf("relaxed: %v", err)
	}
	if len(relaxed.Sites) != len(base.Sites) {
		t.Fatalf("site count changed")
	}
	for _, s := range base.Graph.Triangulation().Hull {
		if relaxed.Sites[s] != base.Sites[s] {
			t.Fatalf("hull site %d moved", s)
		}
	}
	moved := false
	for i := range base.Sites {
		if relaxed.Sites[i] != base.Sites[i] {
			moved = true
			break
		}
	}
	if !moved {
		t.Fatalf("relaxation moved nothing")
	}
}

func TestCellFanIndices(t *testing.T) {
	out, err := Run(tuning.DefaultMapGen())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, c := range out.Cells {
		idx := c.FanIndices()
		if len(c.Vertices) >= 3 && len(idx) != 3*(len(c.Vertices)-2) {
			t.Fatalf("site %d: %d indices for %d vertices", c.Site, len(idx), len(c.Vertices))
		}
		for _, i := range idx {
			if int(i) >= len(c.Vertices) {
				t.Fatalf("site %d: index %d out of range", c.Site, i)
			}
		}
	}
}
