package gen

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"

	"terracell.ai/internal/sim/mathx"
)

// Digest hashes everything a renderer sees: config, sites, cells, elevation and biomes.
func Digest(o *Output) string {
	h := sha256.New()
	var tmp [8]byte

	cfg := o.Config
	writeU64(h, &tmp, cfg.Seed)
	writeU64(h, &tmp, uint64(cfg.GridSize))
	writeF64(h, &tmp, cfg.Jitter)
	writeF64(h, &tmp, cfg.ElevationExtent)
	writeU64(h, &tmp, uint64(cfg.RelaxIterations))
	h.Write([]byte(cfg.NoiseKind()))
	for _, th := range cfg.ThresholdList() {
		writeF64(h, &tmp, th)
	}

	writeU64(h, &tmp, uint64(len(o.Sites)))
	for _, p := range o.Sites {
		writeF64(h, &tmp, p[0])
		writeF64(h, &tmp, p[1])
	}
	writeU64(h, &tmp, uint64(len(o.Cells)))
	for _, c := range o.Cells {
		writeU64(h, &tmp, uint64(c.Site))
		if c.Closed {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		writeU64(h, &tmp, uint64(len(c.Vertices)))
		for _, v := range c.Vertices {
			writeF64(h, &tmp, v[0])
			writeF64(h, &tmp, v[1])
		}
	}
	for _, e := range o.Elevation {
		writeF64(h, &tmp, e)
	}
	for _, b := range o.Biomes {
		binary.LittleEndian.PutUint16(tmp[:2], b)
		h.Write(tmp[:2])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeF64(h hash.Hash, tmp *[8]byte, v float64) {
	mathx.PutFloat64(tmp[:], v)
	h.Write(tmp[:])
}
