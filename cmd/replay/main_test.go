package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	persistlog "voxelfluid/internal/persistence/log"
	"voxelfluid/internal/persistence/snapshot"
	"voxelfluid/internal/sim/area"
	"voxelfluid/internal/sim/catalogs"
	"voxelfluid/internal/sim/voxel"
)

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not find repo root from %s", dir)
		}
		dir = parent
	}
}

// recordRun steps a small area for a few ticks with a tick log attached and returns
// the snapshot taken at tick 3 together with the area dir holding the log.
func recordRun(t *testing.T, cats *catalogs.Catalogs) (snapshot.SnapshotV1, string) {
	t.Helper()
	water, _ := cats.Fluids.Lookup("WATER")
	oil, _ := cats.Fluids.Lookup("OIL")

	grid, err := voxel.New(voxel.Vec3i{X: 6, Y: 3, Z: 2}, 100, cats.Fluids.Types())
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	a, err := area.New(area.Config{ID: "replay_test", Temperature: 20, FreezeEveryTicks: 2}, grid, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("area: %v", err)
	}
	areaDir := t.TempDir()
	tl := persistlog.NewTickLogger(areaDir)
	a.SetTickLogger(tl)

	at := func(x, y, z int) voxel.Vec3i { return voxel.Vec3i{X: x, Y: y, Z: z} }
	a.StepOnce([]area.Edit{{Op: area.EditAddFluid, Pos: at(0, 2, 0), Fluid: water, Volume: 100}})
	a.StepOnce([]area.Edit{{Op: area.EditAddFluid, Pos: at(5, 2, 1), Fluid: oil, Volume: 70}})
	a.StepOnce(nil)

	path := filepath.Join(t.TempDir(), "3.snap.zst")
	if err := snapshot.WriteSnapshot(path, a.ExportSnapshot()); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	a.StepOnce([]area.Edit{
		{Op: area.EditSetSolid, Pos: at(1, 0, 0), Volume: 100},
		{Op: area.EditAddFluid, Pos: at(9, 0, 0), Fluid: water, Volume: 10},
	})
	a.SetTemperature(-5)
	a.StepOnce([]area.Edit{{Op: area.EditAddFluid, Pos: at(3, 1, 1), Fluid: water, Volume: 100}})
	a.StepOnce([]area.Edit{{Op: area.EditRemoveFluid, Pos: at(0, 0, 0), Fluid: water, Volume: 20}})
	a.SetTemperature(20)
	a.StepOnce(nil)
	a.StepOnce([]area.Edit{{Op: area.EditRemoveFluidSync, Pos: at(5, 0, 1), Fluid: oil, Volume: 5}})

	if err := tl.Close(); err != nil {
		t.Fatalf("close tick log: %v", err)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return snap, areaDir
}

func TestReplayMatchesRecordedDigests(t *testing.T) {
	cats, err := catalogs.Load(filepath.Join(findRepoRoot(t), "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	snap, areaDir := recordRun(t, cats)
	if snap.Header.Tick != 3 {
		t.Fatalf("snapshot tick: %d", snap.Header.Tick)
	}
	files, err := persistlog.ListTickFiles(areaDir)
	if err != nil || len(files) == 0 {
		t.Fatalf("tick files: %v %v", files, err)
	}

	for _, parallel := range []bool{false, true} {
		a, err := area.NewFromSnapshot(area.Config{ParallelRead: parallel, Validate: true}, cats.Fluids.Types(), snap, log.New(io.Discard, "", 0))
		if err != nil {
			t.Fatalf("resume: %v", err)
		}
		checked, err := replay(a, files, 0, 0)
		if err != nil {
			t.Fatalf("replay (parallel=%v): %v", parallel, err)
		}
		if checked != 5 {
			t.Fatalf("checked: got %d want 5", checked)
		}
	}

	a, err := area.NewFromSnapshot(area.Config{}, cats.Fluids.Types(), snap, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	checked, err := replay(a, files, 5, 6)
	if err != nil {
		t.Fatalf("bounded replay: %v", err)
	}
	if checked != 2 || a.CurrentTick() != 6 {
		t.Fatalf("bounded replay: checked=%d tick=%d", checked, a.CurrentTick())
	}
}

func TestReplayDetectsDivergence(t *testing.T) {
	cats, err := catalogs.Load(filepath.Join(findRepoRoot(t), "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	snap, areaDir := recordRun(t, cats)
	files, err := persistlog.ListTickFiles(areaDir)
	if err != nil {
		t.Fatalf("tick files: %v", err)
	}
	a, err := area.NewFromSnapshot(area.Config{}, cats.Fluids.Types(), snap, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	water, _ := cats.Fluids.Lookup("WATER")
	a.ApplyEdit(area.Edit{Op: area.EditAddFluid, Pos: voxel.Vec3i{X: 2, Y: 2, Z: 0}, Fluid: water, Volume: 1})
	if _, err := replay(a, files, 0, 0); err == nil {
		t.Fatalf("expected a digest mismatch after tampering with the state")
	}
}
