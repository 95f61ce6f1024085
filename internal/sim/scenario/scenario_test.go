package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"voxelfluid/internal/sim/voxel"
)

type names map[string]voxel.FluidTypeID

func (n names) Lookup(id string) (voxel.FluidTypeID, bool) {
	t, ok := n[id]
	return t, ok
}

func testGrid(t *testing.T) *voxel.Grid {
	t.Helper()
	g, err := voxel.New(voxel.Vec3i{X: 4, Y: 3, Z: 4}, 100, []voxel.FluidType{{ID: 0, Name: "WATER", Density: 100}})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestApplyClipsAndSkipsSolid(t *testing.T) {
	cfg := Config{
		Solids: []SolidSpec{{Min: [3]int{0, 0, 0}, Max: [3]int{3, 0, 3}}},
		Fluids: []FluidSpec{{Fluid: "WATER", Min: [3]int{-5, 0, 0}, Max: [3]int{1, 1, 0}, Volume: 40}},
	}
	g := testGrid(t)
	n, err := cfg.Apply(g, names{"WATER": 0})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// 16 floor points plus (0,1,0) and (1,1,0).
	if n != 18 {
		t.Fatalf("points written: got %d want 18", n)
	}
	if g.FluidAny(g.Index(voxel.Vec3i{})) {
		t.Fatalf("fluid written into solid floor")
	}
	rec, ok := g.FluidGetData(g.Index(voxel.Vec3i{X: 1, Y: 1}), 0)
	if !ok || rec.Volume != 40 || rec.Group != voxel.NoGroup {
		t.Fatalf("unexpected record %+v %v", rec, ok)
	}
}

func TestApplyUnknownFluid(t *testing.T) {
	cfg := Config{Fluids: []FluidSpec{{Fluid: "TAR", Max: [3]int{0, 0, 0}, Volume: 1}}}
	if _, err := cfg.Apply(testGrid(t), names{}); err == nil {
		t.Fatalf("expected unknown fluid error")
	}
}

func TestLoadRepoScenario(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "scenario.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Solids) == 0 || len(cfg.Fluids) == 0 {
		t.Fatalf("empty scenario: %+v", cfg)
	}
}

func TestLoadRejectsZeroVolume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte("fluids:\n  - fluid: WATER\n    max: [1, 1, 1]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}
