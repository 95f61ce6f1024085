package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelfluid/internal/persistence/indexdb"
	"voxelfluid/internal/persistence/snapshot"
	"voxelfluid/internal/sim/area"
	"voxelfluid/internal/sim/catalogs"
	"voxelfluid/internal/sim/tuning"
)

type runtimeIndex interface {
	area.TickLogger
	Close() error
	Stats() indexdb.Stats
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordSnapshotState(snap snapshot.SnapshotV1)
}

func openRuntimeIndex(areaDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("FLUIDSIM_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(areaDir, "index", "area.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported FLUIDSIM_INDEX_BACKEND: %s", backend)
	}
}
