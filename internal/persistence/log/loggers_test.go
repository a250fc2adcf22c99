package log

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"terracell.ai/internal/sim/regen"
	"terracell.ai/internal/sim/tuning"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	ts := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return ts }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ts = ts.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(dir, "x")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v want 2", files)
	}
	if filepath.Base(files[0]) != "x-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first file=%s", files[0])
	}

	var got []int
	for _, f := range files {
		err := ScanFile(f, func(line []byte) error {
			var v map[string]int
			if err := json.Unmarshal(line, &v); err != nil {
				return err
			}
			got = append(got, v["n"])
			return nil
		})
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got=%v", got)
	}
	if w.Lines() != 2 {
		t.Fatalf("lines=%d", w.Lines())
	}
}

func TestJSONLZstdWriter_ReadableBeforeClose(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "tail")
	defer w.Close()
	if err := w.Write("hello"); err != nil {
		t.Fatalf("write: %v", err)
	}
	files, err := ListFiles(dir, "tail")
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	n := 0
	_ = ScanFile(files[0], func(line []byte) error {
		if string(line) == `"hello"` {
			n++
		}
		return nil
	})
	if n != 1 {
		t.Fatalf("flushed line not visible to reader")
	}
}

func TestGenerationLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewGenerationLogger(dir)
	var _ regen.GenerationLogger = l

	cfg := tuning.DefaultMapGen()
	want := []regen.GenerationLogEntry{
		{Attempt: 1, Generation: 1, Kind: regen.UpdateMap, Config: cfg, Sites: 400, Digest: "aa"},
		{Attempt: 2, Generation: 1, Kind: regen.UpdateMap, Config: cfg, Error: "degenerate"},
	}
	for _, e := range want {
		if err := l.WriteGeneration(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []regen.GenerationLogEntry
	if err := ReadGenerations(dir, func(e regen.GenerationLogEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries=%d", len(got))
	}
	if got[0].Digest != "aa" || got[0].Config.Seed != cfg.Seed || got[1].Error != "degenerate" {
		t.Fatalf("got=%+v", got)
	}
}

func TestAuditLogger_StampsTime(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	if err := l.WriteAudit(AuditEntry{MapID: "m", Actor: "admin", Action: "regen"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = l.Close()
	files, _ := ListFiles(filepath.Join(dir, "audit"), "audit")
	if len(files) != 1 {
		t.Fatalf("files=%v", files)
	}
	var e AuditEntry
	_ = ScanFile(files[0], func(line []byte) error { return json.Unmarshal(line, &e) })
	if e.UnixMS == 0 || e.Action != "regen" {
		t.Fatalf("entry=%+v", e)
	}
}
