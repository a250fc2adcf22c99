package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"terracell.ai/internal/persistence/snapshot"
)

func TestDescribeLatest_ReadsHeader(t *testing.T) {
	dir := t.TempDir()
	if got, err := describeLatest(dir); err != nil || got != "no snapshots" {
		t.Fatalf("empty map: %q err=%v", got, err)
	}

	for _, g := range []uint64{2, 7} {
		path := filepath.Join(dir, "snapshots", strconv.FormatUint(g, 10)+".snap.zst")
		snap := snapshot.SnapshotV1{Header: snapshot.Header{
			Version: snapshot.Version, MapID: "m1", Generation: g, Digest: "0123456789abcdef" + strconv.FormatUint(g, 10),
		}}
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got, err := describeLatest(dir)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if !strings.HasPrefix(got, "latest=7.snap.zst generation=7 digest=0123456789ab ") {
		t.Fatalf("line=%q", got)
	}
}

func TestDescribeLatest_CorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(snaps, "1.snap.zst"), []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := describeLatest(dir); err == nil {
		t.Fatalf("expected error for corrupt snapshot")
	}
}

