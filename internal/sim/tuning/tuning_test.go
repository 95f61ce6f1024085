package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRepoConfig(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.TickRateHz <= 0 || len(tu.GridSize) != 3 || tu.PointCapacity <= 0 {
		t.Fatalf("unexpected tuning: %+v", tu)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: 4\nfluid:\n  workers: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.TickRateHz != 4 || tu.Fluid.Workers != 2 {
		t.Fatalf("overrides not applied: %+v", tu)
	}
	if tu.PointCapacity != Defaults().PointCapacity || len(tu.GridSize) != 3 {
		t.Fatalf("defaults lost: %+v", tu)
	}
}

func TestLoadRejectsBadGrid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("grid_size: [4, 4]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}
