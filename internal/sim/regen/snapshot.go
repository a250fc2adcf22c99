package regen

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"terracell.ai/internal/persistence/snapshot"
	"terracell.ai/internal/sim/terrain/biome"
	"terracell.ai/internal/sim/terrain/gen"
	"terracell.ai/internal/sim/tuning"
)

func ExportSnapshot(mapID string, out *gen.Output) snapshot.SnapshotV1 {
	cfg := out.Config
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:    snapshot.Version,
			MapID:      mapID,
			Generation: out.Generation,
			Digest:     out.Digest,
		},
		Config: snapshot.ConfigV1{
			Seed:               cfg.Seed,
			GridSize:           cfg.GridSize,
			Jitter:             cfg.Jitter,
			ElevationThreshold: cfg.ElevationThreshold,
			Thresholds:         append([]float64(nil), cfg.Thresholds...),
			Biomes:             append([]string(nil), cfg.Biomes...),
			ElevationExtent:    cfg.ElevationExtent,
			Noise:              cfg.Noise,
			RelaxIterations:    cfg.RelaxIterations,
		},
		Sites:         make([][2]float64, len(out.Sites)),
		Cells:         make([]snapshot.CellV1, len(out.Cells)),
		Elevation:     append([]float64(nil), out.Elevation...),
		Biomes:        append([]uint16(nil), out.Biomes...),
		CreatedUnixMS: time.Now().UnixMilli(),
	}
	for i, p := range out.Sites {
		snap.Sites[i] = [2]float64(p)
	}
	for i, c := range out.Cells {
		vs := make([][2]float64, len(c.Vertices))
		for j, v := range c.Vertices {
			vs[j] = [2]float64(v)
		}
		snap.Cells[i] = snapshot.CellV1{Site: c.Site, Closed: c.Closed, Vertices: vs}
	}
	return snap
}

// ImportSnapshot rebuilds an Output from a snapshot and checks it against the stored digest.
// The result has no Graph.
func ImportSnapshot(snap snapshot.SnapshotV1) (*gen.Output, error) {
	sc := snap.Config
	cfg := tuning.MapGen{
		Seed:               sc.Seed,
		GridSize:           sc.GridSize,
		Jitter:             sc.Jitter,
		ElevationThreshold: sc.ElevationThreshold,
		Thresholds:         sc.Thresholds,
		Biomes:             sc.Biomes,
		ElevationExtent:    sc.ElevationExtent,
		Noise:              sc.Noise,
		RelaxIterations:    sc.RelaxIterations,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot config: %w", err)
	}
	cls, err := biome.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if len(snap.Elevation) != len(snap.Sites) || len(snap.Biomes) != len(snap.Sites) {
		return nil, fmt.Errorf("snapshot: %d sites, %d elevations, %d biomes", len(snap.Sites), len(snap.Elevation), len(snap.Biomes))
	}

	out := &gen.Output{
		Generation: snap.Header.Generation,
		Config:     cfg,
		Sites:      make([]mgl64.Vec2, len(snap.Sites)),
		Cells:      make([]gen.Cell, len(snap.Cells)),
		Elevation:  append([]float64(nil), snap.Elevation...),
		Biomes:     append([]uint16(nil), snap.Biomes...),
		Classifier: cls,
	}
	for i, p := range snap.Sites {
		out.Sites[i] = mgl64.Vec2(p)
	}
	for i, c := range snap.Cells {
		if c.Site < 0 || c.Site >= len(out.Sites) {
			return nil, fmt.Errorf("snapshot: cell %d references site %d", i, c.Site)
		}
		vs := make([]mgl64.Vec2, len(c.Vertices))
		for j, v := range c.Vertices {
			vs[j] = mgl64.Vec2(v)
		}
		out.Cells[i] = gen.Cell{
			Site:      c.Site,
			Vertices:  vs,
			Closed:    c.Closed,
			Elevation: out.Elevation[c.Site],
			Biome:     out.Biomes[c.Site],
		}
	}
	out.Digest = gen.Digest(out)
	if snap.Header.Digest != "" && out.Digest != snap.Header.Digest {
		return nil, fmt.Errorf("snapshot digest mismatch: got=%s want=%s", out.Digest, snap.Header.Digest)
	}
	return out, nil
}

// Restore exposes out as the current map and continues generation numbering after it.
// Call before Run.
func (c *Controller) Restore(out *gen.Output) {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()
	c.mu.Lock()
	c.mapgen = out.Config
	c.mu.Unlock()
	if out.Generation > c.generation {
		c.generation = out.Generation
	}
	c.current.Store(out)
	c.publish(Update{Kind: UpdateMap, Output: out})
}

// Snapshot captures the current map.
func (c *Controller) Snapshot() snapshot.SnapshotV1 {
	return ExportSnapshot(c.cfg.MapID, c.Current())
}
