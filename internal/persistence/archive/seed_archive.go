// Package archive keeps the first snapshot generated for each (seed, grid size) pair so a
// map can be recovered after the live snapshot directory rotates.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"terracell.ai/internal/persistence/snapshot"
)

type SeedArchiveMeta struct {
	Seed       string  `json:"seed"`
	GridSize   int     `json:"grid_size"`
	Jitter     float64 `json:"jitter"`
	Noise      string  `json:"noise,omitempty"`
	Generation uint64  `json:"generation"`
	Digest     string  `json:"digest"`
	Snapshot   string  `json:"snapshot"`
	CreatedAt  string  `json:"created_at"`
}

// Dir returns mapDir/archives/seed_<hex>_g<grid>.
func Dir(mapDir string, seed uint64, gridSize int) string {
	return filepath.Join(mapDir, "archives", fmt.Sprintf("seed_%016x_g%d", seed, gridSize))
}

// ArchiveSeedSnapshot copies snapshotPath into the seed's archive directory unless that
// directory already holds one. It returns (archivedPath, archived=true) on a new copy.
func ArchiveSeedSnapshot(mapDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if snap.Header.Digest == "" || len(snap.Cells) == 0 {
		return "", false, nil
	}
	dir := Dir(mapDir, snap.Config.Seed, snap.Config.GridSize)
	metaPath := filepath.Join(dir, "meta.json")
	if _, err := os.Stat(metaPath); err == nil {
		return "", false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := SeedArchiveMeta{
		Seed:       fmt.Sprintf("%#x", snap.Config.Seed),
		GridSize:   snap.Config.GridSize,
		Jitter:     snap.Config.Jitter,
		Noise:      snap.Config.Noise,
		Generation: snap.Header.Generation,
		Digest:     snap.Header.Digest,
		Snapshot:   filepath.Base(dst),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return "", false, err
	}
	return dst, true, nil
}

// ReadMeta loads the meta.json of an archive directory.
func ReadMeta(dir string) (SeedArchiveMeta, error) {
	var m SeedArchiveMeta
	b, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
