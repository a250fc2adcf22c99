package protocol

import (
	"terracell.ai/internal/sim/encoding"
	"terracell.ai/internal/sim/terrain/biome"
	"terracell.ai/internal/sim/terrain/gen"
	"terracell.ai/internal/sim/terrain/sample"
	"terracell.ai/internal/sim/tuning"
)

func FromMapGen(m tuning.MapGen) MapGen {
	return MapGen{
		Seed:               m.Seed,
		GridSize:           m.GridSize,
		Jitter:             m.Jitter,
		ElevationThreshold: m.ElevationThreshold,
		Thresholds:         append([]float64(nil), m.Thresholds...),
		Biomes:             append([]string(nil), m.Biomes...),
		ElevationExtent:    m.ElevationExtent,
		Noise:              m.NoiseKind(),
		RelaxIterations:    m.RelaxIterations,
	}
}

// Apply returns base with the patch's fields overwritten. The result is not validated.
func (p MapGenPatch) Apply(base tuning.MapGen) tuning.MapGen {
	out := base
	if p.Seed != nil {
		out.Seed = *p.Seed
	}
	if p.GridSize != nil {
		out.GridSize = *p.GridSize
	}
	if p.Jitter != nil {
		out.Jitter = *p.Jitter
	}
	if p.ElevationThreshold != nil {
		out.ElevationThreshold = *p.ElevationThreshold
	}
	if p.Thresholds != nil {
		out.Thresholds = append([]float64(nil), p.Thresholds...)
	}
	if p.Biomes != nil {
		out.Biomes = append([]string(nil), p.Biomes...)
	}
	if p.ElevationExtent != nil {
		out.ElevationExtent = *p.ElevationExtent
	}
	if p.Noise != nil {
		out.Noise = *p.Noise
	}
	if p.RelaxIterations != nil {
		out.RelaxIterations = *p.RelaxIterations
	}
	return out
}

func BiomeRefs(cls *biome.Classifier) []BiomeRef {
	if cls == nil {
		return []BiomeRef{}
	}
	cats := cls.Categories()
	out := make([]BiomeRef, 0, len(cats))
	for _, c := range cats {
		out = append(out, BiomeRef{ID: c.ID, Name: c.Name, Fill: c.Fill})
	}
	return out
}

func Bounds(out *gen.Output) [4]float64 {
	lo, hi := sample.Bounds(out.Sites)
	return [4]float64{lo[0], lo[1], hi[0], hi[1]}
}

func NewMapMsg(mapID string, out *gen.Output, compact bool) MapMsg {
	m := MapMsg{
		Type:            TypeMap,
		ProtocolVersion: Version,
		MapID:           mapID,
		Generation:      out.Generation,
		Digest:          out.Digest,
		Bounds:          Bounds(out),
		Cells:           make([]CellMsg, 0, len(out.Cells)),
		Biomes:          BiomeRefs(out.Classifier),
	}
	for _, c := range out.Cells {
		vs := make([][2]float64, len(c.Vertices))
		for i, v := range c.Vertices {
			vs[i] = [2]float64(v)
		}
		m.Cells = append(m.Cells, CellMsg{
			Site:      c.Site,
			Vertices:  vs,
			Closed:    c.Closed,
			Elevation: c.Elevation,
			Biome:     c.Biome,
		})
	}
	if compact {
		m.ElevationF32 = encoding.EncodeFloat32(out.Elevation)
	} else {
		m.Elevation = append([]float64{}, out.Elevation...)
	}
	return m
}

func NewBiomesMsg(mapID string, out *gen.Output) BiomesMsg {
	return BiomesMsg{
		Type:            TypeBiomes,
		ProtocolVersion: Version,
		MapID:           mapID,
		Generation:      out.Generation,
		Digest:          out.Digest,
		Encoding:        EncodingRLE,
		Data:            encoding.EncodeRLE(out.Biomes),
		Sites:           len(out.Biomes),
		Biomes:          BiomeRefs(out.Classifier),
	}
}

func NewBootstrap(mapID, state string, out *gen.Output) BootstrapResponse {
	refs := BiomeRefs(out.Classifier)
	hist := make([]int, len(refs))
	for _, b := range out.Biomes {
		if int(b) < len(hist) {
			hist[b]++
		}
	}
	return BootstrapResponse{
		ProtocolVersion: Version,
		MapID:           mapID,
		Generation:      out.Generation,
		Digest:          out.Digest,
		State:           state,
		MapGen:          FromMapGen(out.Config),
		Sites:           len(out.Sites),
		Cells:           len(out.Cells),
		Triangles:       out.NumTriangles(),
		Bounds:          Bounds(out),
		Biomes:          refs,
		Histogram:       hist,
	}
}

func NewAck(ackFor, requestID string, accepted bool, code, message string) AckMsg {
	return AckMsg{
		Type:            TypeAck,
		ProtocolVersion: Version,
		AckFor:          ackFor,
		RequestID:       requestID,
		Accepted:        accepted,
		Code:            code,
		Message:         message,
	}
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
