package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"terracell.ai/internal/persistence/indexdb"
	"terracell.ai/internal/persistence/snapshot"
	"terracell.ai/internal/sim/regen"
	"terracell.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	regen.GenerationLogger
	Close() error
	Stats() indexdb.Stats
	UpsertTuning(tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordSeed(seed uint64, gridSize int, generation uint64, digest, archivedPath string)
}

func openRuntimeIndex(mapDir, mapID string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(mapDir, "index", "map.sqlite"), mapID)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported TC_INDEX_BACKEND: %s", backend)
	}
}
