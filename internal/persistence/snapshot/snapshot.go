package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version    int    `json:"version"`
	MapID      string `json:"map_id"`
	Generation uint64 `json:"generation"`
	Digest     string `json:"digest"`
}

// SnapshotV1 stores what a renderer needs to redraw a map without regenerating it.
// Triangle and half-edge tables are not stored; they are rebuilt from Sites when needed.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Config ConfigV1 `json:"config"`

	Sites     [][2]float64 `json:"sites"`
	Cells     []CellV1     `json:"cells"`
	Elevation []float64    `json:"elevation"`
	Biomes    []uint16     `json:"biomes"`

	CreatedUnixMS int64 `json:"created_unix_ms"`
}

type ConfigV1 struct {
	Seed               uint64    `json:"seed"`
	GridSize           int       `json:"grid_size"`
	Jitter             float64   `json:"jitter"`
	ElevationThreshold float64   `json:"elevation_threshold"`
	Thresholds         []float64 `json:"thresholds,omitempty"`
	Biomes             []string  `json:"biomes,omitempty"`
	ElevationExtent    float64   `json:"elevation_extent"`
	Noise              string    `json:"noise"`
	RelaxIterations    int       `json:"relax_iterations"`
}

type CellV1 struct {
	Site     int          `json:"site"`
	Closed   bool         `json:"closed"`
	Vertices [][2]float64 `json:"vertices"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header is repeated inside the gob body.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
