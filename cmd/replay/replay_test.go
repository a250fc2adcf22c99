package main

import (
	"testing"

	persistlog "terracell.ai/internal/persistence/log"
	"terracell.ai/internal/sim/regen"
	"terracell.ai/internal/sim/terrain/gen"
	"terracell.ai/internal/sim/tuning"
)

func entryFor(t *testing.T, generation uint64, cfg tuning.MapGen) regen.GenerationLogEntry {
	t.Helper()
	out, err := gen.Run(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return regen.GenerationLogEntry{
		Attempt:    generation,
		Generation: generation,
		Kind:       regen.UpdateMap,
		Config:     cfg,
		Sites:      len(out.Sites),
		Cells:      len(out.Cells),
		Digest:     out.Digest,
	}
}

func TestReplayLog(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewGenerationLogger(dir)

	cfg := tuning.DefaultMapGen()
	cfg.GridSize = 6
	good := entryFor(t, 1, cfg)

	bad := cfg
	bad.GridSize = 1
	failed := regen.GenerationLogEntry{Attempt: 2, Generation: 1, Kind: regen.UpdateMap, Config: bad, Error: "degenerate input"}

	cfg2 := cfg
	cfg2.Seed++
	tampered := entryFor(t, 2, cfg2)
	tampered.Attempt = 3
	tampered.Digest = "0000000000000000000000000000000000000000000000000000000000000000"

	for _, e := range []regen.GenerationLogEntry{good, failed, tampered} {
		if err := l.WriteGeneration(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var ok []uint64
	rep, err := replayLog(dir, 0, 0, func(e regen.GenerationLogEntry, _ string) { ok = append(ok, e.Generation) })
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if rep.Checked != 2 || rep.SkippedFailures != 1 {
		t.Fatalf("report=%+v", rep)
	}
	if len(rep.Mismatches) != 1 || rep.Mismatches[0].Attempt != 3 {
		t.Fatalf("mismatches=%+v", rep.Mismatches)
	}
	if len(ok) != 1 || ok[0] != 1 {
		t.Fatalf("ok=%v", ok)
	}

	rep, err = replayLog(dir, 2, 0, nil)
	if err != nil {
		t.Fatalf("replay from 2: %v", err)
	}
	if rep.Checked != 1 || rep.SkippedFailures != 0 || len(rep.Mismatches) != 1 {
		t.Fatalf("ranged report=%+v", rep)
	}
}
