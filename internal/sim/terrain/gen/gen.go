// Package gen runs the full map pipeline: sites, triangulation, cells, elevation, biomes.
package gen

import (
	"fmt"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"

	"terracell.ai/internal/sim/mathx"
	"terracell.ai/internal/sim/terrain/biome"
	"terracell.ai/internal/sim/terrain/dual"
	"terracell.ai/internal/sim/terrain/elevation"
	"terracell.ai/internal/sim/terrain/mesh"
	"terracell.ai/internal/sim/terrain/sample"
	"terracell.ai/internal/sim/tuning"
)

// Cell is one renderable map polygon.
type Cell struct {
	Site      int          `json:"site"`
	Vertices  []mgl64.Vec2 `json:"vertices"`
	Closed    bool         `json:"closed"`
	Elevation float64      `json:"elevation"`
	Biome     uint16       `json:"biome"`
}

// FanIndices returns the triangle list that fills the cell polygon.
func (c Cell) FanIndices() []uint32 { return dual.FanIndices(len(c.Vertices)) }

// Output is an immutable generation result. Elevation and Biomes are indexed by site.
type Output struct {
	Generation uint64        `json:"generation"`
	Config     tuning.MapGen `json:"config"`
	Sites      []mgl64.Vec2  `json:"sites"`
	Cells      []Cell        `json:"cells"`
	Elevation  []float64     `json:"elevation"`
	Biomes     []uint16      `json:"biomes"`
	Digest     string        `json:"digest"`

	// Graph is nil for empty outputs and for outputs restored from snapshots.
	Graph      *dual.Graph       `json:"-"`
	Classifier *biome.Classifier `json:"-"`
}

// Empty is the output exposed before any generation succeeds.
func Empty(cfg tuning.MapGen) (*Output, error) {
	cls, err := biome.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	out := &Output{
		Config:     cfg,
		Sites:      []mgl64.Vec2{},
		Cells:      []Cell{},
		Elevation:  []float64{},
		Biomes:     []uint16{},
		Classifier: cls,
	}
	out.Digest = Digest(out)
	return out, nil
}

func (o *Output) NumTriangles() int {
	if o == nil || o.Graph == nil {
		return 0
	}
	return o.Graph.Triangulation().NumTriangles()
}

// Run generates cfg with a freshly seeded generator.
func Run(cfg tuning.MapGen) (*Output, error) {
	return Generate(cfg, sample.NewRand(cfg.Seed))
}

// Generate runs the pipeline with rng, which the caller seeds. Degenerate site sets return an
// error wrapping mesh.ErrDegenerateInput; a zero grid returns an empty output.
func Generate(cfg tuning.MapGen, rng *rand.Rand) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cls, err := biome.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	sites := sample.Grid(rng, cfg.GridSize, cfg.Jitter)
	if len(sites) == 0 {
		return Empty(cfg)
	}

	for i := 0; i < cfg.RelaxIterations; i++ {
		sites, err = relax(sites)
		if err != nil {
			return nil, fmt.Errorf("relax %d: %w", i, err)
		}
	}

	tri, err := mesh.Triangulate(sites)
	if err != nil {
		return nil, fmt.Errorf("triangulate: %w", err)
	}
	g, err := dual.New(sites, tri)
	if err != nil {
		return nil, fmt.Errorf("dual graph: %w", err)
	}
	dcells, err := g.Cells()
	if err != nil {
		return nil, fmt.Errorf("cells: %w", err)
	}

	field, err := elevation.NewField(cfg.NoiseKind(), mathx.NoiseSeed(cfg.Seed))
	if err != nil {
		return nil, err
	}
	extent := cfg.ElevationExtent
	if extent <= 0 {
		extent = float64(cfg.GridSize)
	}
	elev := elevation.Synthesizer{Field: field, Extent: extent}.Assign(sites)
	biomes := cls.ClassifyAll(elev)

	cells := make([]Cell, 0, len(dcells))
	for _, dc := range dcells {
		cells = append(cells, Cell{
			Site:      dc.Site,
			Vertices:  dc.Vertices,
			Closed:    dc.Closed,
			Elevation: elev[dc.Site],
			Biome:     biomes[dc.Site],
		})
	}

	out := &Output{
		Config:     cfg,
		Sites:      sites,
		Cells:      cells,
		Elevation:  elev,
		Biomes:     biomes,
		Graph:      g,
		Classifier: cls,
	}
	out.Digest = Digest(out)
	return out, nil
}

// Reclassify returns a copy of o with biomes recomputed under cfg, which must share o's
// geometry. Cell polygons are shared with o.
func Reclassify(o *Output, cfg tuning.MapGen) (*Output, error) {
	if o == nil {
		return nil, fmt.Errorf("reclassify: nil output")
	}
	if !tuning.SameGeometry(o.Config, cfg) {
		return nil, fmt.Errorf("reclassify: geometry changed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cls, err := biome.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	biomes := cls.ClassifyAll(o.Elevation)
	cells := make([]Cell, len(o.Cells))
	for i, c := range o.Cells {
		c.Biome = biomes[c.Site]
		cells[i] = c
	}
	out := &Output{
		Generation: o.Generation,
		Config:     cfg,
		Sites:      o.Sites,
		Cells:      cells,
		Elevation:  o.Elevation,
		Biomes:     biomes,
		Graph:      o.Graph,
		Classifier: cls,
	}
	out.Digest = Digest(out)
	return out, nil
}

// relax moves every interior site to the mean of its cell vertices. Hull sites stay fixed so
// the map keeps its extent.
func relax(sites []mgl64.Vec2) ([]mgl64.Vec2, error) {
	if len(sites) < 3 {
		return sites, nil
	}
	tri, err := mesh.Triangulate(sites)
	if err != nil {
		return nil, err
	}
	g, err := dual.New(sites, tri)
	if err != nil {
		return nil, err
	}
	cells, err := g.Cells()
	if err != nil {
		return nil, err
	}
	out := append([]mgl64.Vec2(nil), sites...)
	for _, c := range cells {
		if !c.Closed || len(c.Vertices) == 0 {
			continue
		}
		var sum mgl64.Vec2
		for _, v := range c.Vertices {
			sum = sum.Add(v)
		}
		out[c.Site] = sum.Mul(1 / float64(len(c.Vertices)))
	}
	return out, nil
}
