package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"voxelfluid/internal/sim/voxel"
)

// Config seeds an area: solids first, then fluids, in file order.
type Config struct {
	Name   string      `yaml:"name"`
	Solids []SolidSpec `yaml:"solids"`
	Fluids []FluidSpec `yaml:"fluids"`
}

type SolidSpec struct {
	Min [3]int `yaml:"min"`
	Max [3]int `yaml:"max"`
	// Volume per point; 0 means fully solid.
	Volume uint32 `yaml:"volume"`
}

type FluidSpec struct {
	Fluid  string `yaml:"fluid"`
	Min    [3]int `yaml:"min"`
	Max    [3]int `yaml:"max"`
	Volume uint32 `yaml:"volume"`
}

// Lookup resolves a fluid id to its type.
type Lookup interface {
	Lookup(id string) (voxel.FluidTypeID, bool)
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("scenario.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("scenario.yaml: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for i, f := range c.Fluids {
		if strings.TrimSpace(f.Fluid) == "" {
			return fmt.Errorf("fluids[%d]: missing fluid", i)
		}
		if f.Volume == 0 {
			return fmt.Errorf("fluids[%d]: volume must be > 0", i)
		}
	}
	return nil
}

func cuboid(min, max [3]int) voxel.Cuboid {
	return voxel.NewCuboid(voxel.Vec3i{X: min[0], Y: min[1], Z: min[2]}, voxel.Vec3i{X: max[0], Y: max[1], Z: max[2]})
}

// Apply writes the scenario straight into grid. Fluid records are left without a
// group; the registry adopts them afterwards. Parts of a cuboid outside the grid are
// clipped. It returns the number of points written.
func (c Config) Apply(grid *voxel.Grid, fluids Lookup) (int, error) {
	var n int
	for _, s := range c.Solids {
		v := voxel.Volume(s.Volume)
		if v == 0 || v > grid.Capacity() {
			v = grid.Capacity()
		}
		for _, p := range grid.QueryCuboidWithCondition(cuboid(s.Min, s.Max), nil) {
			grid.SetSolid(p, v)
			n++
		}
	}
	for i, f := range c.Fluids {
		t, ok := fluids.Lookup(f.Fluid)
		if !ok {
			return n, fmt.Errorf("fluids[%d]: unknown fluid %q", i, f.Fluid)
		}
		open := grid.QueryCuboidWithCondition(cuboid(f.Min, f.Max), grid.FluidCanEnterEver)
		for _, p := range open {
			grid.FluidAdd(p, voxel.Volume(f.Volume), t)
			n++
		}
	}
	return n, nil
}
