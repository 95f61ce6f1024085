package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"voxelfluid/internal/persistence/snapshot"
	"voxelfluid/internal/sim/area"
	"voxelfluid/internal/sim/catalogs"
	"voxelfluid/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: area.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(area.TickLogEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})
	s.RecordSnapshotState(snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropSnapshotTotal != 1 || st.DropSnapshotStateTotal != 1 {
		t.Fatalf("drop stats: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesTicksEditsAndSnapshots(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index", "area.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_ = idx.WriteTick(area.TickLogEntry{
		Tick:   7,
		Digest: "abc",
		Groups: 2,
		Totals: map[string]int64{"WATER": 500, "OIL": 40},
		Edits: []area.RecordedEdit{
			{Op: area.EditAddFluid, Pos: [3]int{1, 2, 3}, Fluid: "WATER", Volume: 10, Moved: 10},
			{Op: area.EditSetSolid, Pos: [3]int{9, 9, 9}, Volume: 100, Error: "position out of bounds"},
		},
	})
	snap := snapshot.SnapshotV1{
		Header:  snapshot.Header{Version: snapshot.Version, AreaID: "basin", Tick: 7},
		Size:    [3]int{4, 3, 2},
		Fluids:  []snapshot.FluidTypeV1{{Name: "WATER", Density: 100}},
		Records: []snapshot.RecordV1{{Point: 0, Volume: 10}},
		Registry: snapshot.RegistryV1{Groups: []snapshot.GroupV1{
			{ID: 1, Type: 0, Points: []int32{0}, Excess: 2},
		}},
	}
	idx.RecordSnapshot("/tmp/7.snap.zst", snap)
	idx.RecordSnapshotState(snap)
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	count := func(q string, args ...any) int {
		t.Helper()
		var n int
		if err := db.QueryRow(q, args...).Scan(&n); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		return n
	}
	if n := count(`SELECT COUNT(*) FROM ticks WHERE tick=7 AND digest='abc' AND edits=2`); n != 1 {
		t.Fatalf("ticks rows=%d", n)
	}
	if n := count(`SELECT COUNT(*) FROM totals WHERE tick=7`); n != 2 {
		t.Fatalf("totals rows=%d", n)
	}
	if n := count(`SELECT COUNT(*) FROM edits WHERE tick=7 AND error != ''`); n != 1 {
		t.Fatalf("failed edits rows=%d", n)
	}
	if n := count(`SELECT records FROM snapshots WHERE tick=7 AND area_id='basin'`); n != 1 {
		t.Fatalf("snapshot records=%d", n)
	}
	if n := count(`SELECT excess FROM snapshot_groups WHERE tick=7 AND fluid='WATER'`); n != 2 {
		t.Fatalf("group excess=%d", n)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	configDir := filepath.Join("..", "..", "..", "configs")
	cats, err := catalogs.Load(configDir)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	dbPath := filepath.Join(t.TempDir(), "area.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()
	if err := idx.UpsertCatalogs(configDir, cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	var digest string
	if err := idx.db.QueryRow(`SELECT digest FROM catalogs WHERE name='fluids_defs'`).Scan(&digest); err != nil {
		t.Fatalf("query: %v", err)
	}
	if digest != cats.Fluids.DefsDigest {
		t.Fatalf("digest: got %s want %s", digest, cats.Fluids.DefsDigest)
	}
}
