package main

import (
	"encoding/json"
	"strings"
	"testing"

	"terracell.ai/internal/protocol"
	"terracell.ai/internal/sim/terrain/gen"
	"terracell.ai/internal/sim/tuning"
)

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestViewer_MapThenRecolor(t *testing.T) {
	cfg := tuning.DefaultMapGen()
	cfg.GridSize = 4
	out, err := gen.Run(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	out.Generation = 3

	v := &viewer{}
	line, err := v.apply(marshal(t, protocol.NewMapMsg("m", out, true)))
	if err != nil {
		t.Fatalf("MAP: %v", err)
	}
	if !strings.HasPrefix(line, "MAP generation=3 cells=16 ") {
		t.Fatalf("line=%q", line)
	}
	if len(v.biomes) != 16 || v.digest != out.Digest {
		t.Fatalf("viewer sites=%d digest=%s", len(v.biomes), v.digest)
	}

	cfg2 := cfg
	cfg2.ElevationThreshold = -10
	recolored, err := gen.Reclassify(out, cfg2)
	if err != nil {
		t.Fatalf("reclassify: %v", err)
	}
	line, err = v.apply(marshal(t, protocol.NewBiomesMsg("m", recolored)))
	if err != nil {
		t.Fatalf("BIOMES: %v", err)
	}
	if !strings.Contains(line, "low=0 high=16") {
		t.Fatalf("line=%q", line)
	}
	if v.digest != recolored.Digest {
		t.Fatalf("digest not updated")
	}
}

func TestViewer_RejectsBiomesForOtherGeometry(t *testing.T) {
	cfg := tuning.DefaultMapGen()
	cfg.GridSize = 3
	out, err := gen.Run(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	v := &viewer{}
	if _, err := v.apply(marshal(t, protocol.NewBiomesMsg("m", out))); err == nil {
		t.Fatalf("BIOMES accepted before any MAP")
	}
}

func TestViewer_AckAndError(t *testing.T) {
	v := &viewer{}
	line, err := v.apply(marshal(t, protocol.NewAck(protocol.TypeRegen, "R_1", false, protocol.ErrNotAllowed, "control disabled")))
	if err != nil {
		t.Fatalf("ACK: %v", err)
	}
	if line != "ACK REGEN R_1 rejected E_NOT_ALLOWED: control disabled" {
		t.Fatalf("line=%q", line)
	}
	line, err = v.apply(marshal(t, protocol.NewError(protocol.ErrRateLimit, "slow down")))
	if err != nil || line != "ERROR E_RATE_LIMIT: slow down" {
		t.Fatalf("line=%q err=%v", line, err)
	}
}
