package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"terracell.ai/internal/persistence/snapshot"
	"terracell.ai/internal/sim/regen"
	"terracell.ai/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqGeneration}

	_ = s.WriteGeneration(regen.GenerationLogEntry{Attempt: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})
	s.RecordSeed(42, 20, 2, "d", "/tmp/archive.snap.zst")
	s.RecordSeed(42, 20, 2, "d", "")

	st := s.Stats()
	if st.DropGenerationTotal != 1 {
		t.Fatalf("DropGenerationTotal=%d want=1", st.DropGenerationTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.DropSeedTotal != 1 {
		t.Fatalf("DropSeedTotal=%d want=1", st.DropSeedTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteGeneration(regen.GenerationLogEntry{}); err != nil {
		t.Fatalf("nil WriteGeneration: %v", err)
	}
	s.RecordSnapshot("x", snapshot.SnapshotV1{})
	if st := s.Stats(); st.QueueCapacity != 0 {
		t.Fatalf("nil stats=%+v", st)
	}
}

func TestSQLiteIndex_WritesRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index", "map.sqlite")

	idx, err := OpenSQLite(path, "map_1")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	cfg := tuning.DefaultMapGen()
	cfg.Seed = 1<<63 + 5
	if err := idx.WriteGeneration(regen.GenerationLogEntry{
		Attempt: 1, Generation: 1, Kind: regen.UpdateMap, Config: cfg, Sites: 400, Cells: 400, Digest: "abc",
	}); err != nil {
		t.Fatalf("WriteGeneration: %v", err)
	}
	_ = idx.WriteGeneration(regen.GenerationLogEntry{Attempt: 2, Generation: 1, Kind: regen.UpdateMap, Config: cfg, Error: "boom"})
	idx.RecordSnapshot("/abs/1.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, MapID: "map_1", Generation: 1, Digest: "abc"},
		Config: snapshot.ConfigV1{Seed: cfg.Seed, GridSize: 20},
	})
	idx.RecordSeed(cfg.Seed, 20, 1, "abc", "/abs/archives/seed/1.snap.zst")
	idx.RecordSeed(cfg.Seed, 20, 7, "zzz", "/abs/other.snap.zst")
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := idx.Stats(); st.WriteErrorTotal != 0 {
		t.Fatalf("write errors: %+v", st)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	gens, err := QueryGenerations(context.Background(), db, 10)
	if err != nil {
		t.Fatalf("QueryGenerations: %v", err)
	}
	if len(gens) != 2 {
		t.Fatalf("generations=%d want 2", len(gens))
	}
	if gens[0].Attempt != 2 || gens[0].Error != "boom" {
		t.Fatalf("newest row=%+v", gens[0])
	}
	if gens[1].Digest != "abc" || gens[1].Seed != "8000000000000005" || gens[1].Cells != 400 {
		t.Fatalf("oldest row=%+v", gens[1])
	}

	var snapPath string
	if err := db.QueryRow(`SELECT path FROM snapshots WHERE map_id='map_1' AND generation=1`).Scan(&snapPath); err != nil {
		t.Fatalf("snapshot row: %v", err)
	}
	if snapPath != "/abs/1.snap.zst" {
		t.Fatalf("snapshot path=%q", snapPath)
	}

	var archived string
	var generation int64
	if err := db.QueryRow(`SELECT archive_path,generation FROM seeds WHERE seed=? AND grid_size=20`, "8000000000000005").Scan(&archived, &generation); err != nil {
		t.Fatalf("seed row: %v", err)
	}
	if archived != "/abs/archives/seed/1.snap.zst" || generation != 1 {
		t.Fatalf("first archive should win: path=%q generation=%d", archived, generation)
	}

	var version string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&version); err != nil || version != schemaVersion {
		t.Fatalf("schema_version=%q err=%v", version, err)
	}
}
