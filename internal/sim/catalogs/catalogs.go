package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelfluid/internal/sim/voxel"
)

type Catalogs struct {
	Fluids FluidCatalog
}

// FluidCatalog keeps the file order: a fluid's position is its FluidTypeID, so
// reordering fluids.json changes the meaning of every stored record.
type FluidCatalog struct {
	Palette       []string
	Index         map[string]voxel.FluidTypeID
	Defs          map[string]FluidDef
	PaletteDigest string
	DefsDigest    string
}

type FluidDef struct {
	ID            string `json:"id"`
	Density       int    `json:"density"`
	Viscosity     uint32 `json:"viscosity,omitempty"`
	MistDuration  int    `json:"mist_duration,omitempty"`
	MaxMistSpread int    `json:"max_mist_spread,omitempty"`
	FreezesInto   string `json:"freezes_into,omitempty"`
	FreezingPoint int    `json:"freezing_point,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadFluids(filepath.Join(configDir, "fluids.json"), &c.Fluids); err != nil {
		return nil, fmt.Errorf("load fluids: %w", err)
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadFluids(path string, out *FluidCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var file struct {
		Fluids []FluidDef `json:"fluids"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return err
	}
	if len(file.Fluids) == 0 {
		return fmt.Errorf("no fluids defined")
	}
	if len(file.Fluids) > 256 {
		return fmt.Errorf("too many fluids: %d", len(file.Fluids))
	}
	out.Defs = map[string]FluidDef{}
	out.Index = map[string]voxel.FluidTypeID{}
	out.Palette = nil
	for i, d := range file.Fluids {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return fmt.Errorf("fluid %d: missing id", i)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("duplicate fluid id: %s", d.ID)
		}
		if d.Density <= 0 {
			return fmt.Errorf("fluid %s: density must be > 0", d.ID)
		}
		if d.MistDuration < 0 || d.MaxMistSpread < 0 {
			return fmt.Errorf("fluid %s: mist settings must be >= 0", d.ID)
		}
		out.Defs[d.ID] = d
		out.Index[d.ID] = voxel.FluidTypeID(i)
		out.Palette = append(out.Palette, d.ID)
	}
	palJSON, _ := json.Marshal(out.Palette)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

// Types converts the catalog into the grid's fluid type table.
func (c FluidCatalog) Types() []voxel.FluidType {
	out := make([]voxel.FluidType, 0, len(c.Palette))
	for i, id := range c.Palette {
		d := c.Defs[id]
		out = append(out, voxel.FluidType{
			ID:            voxel.FluidTypeID(i),
			Name:          d.ID,
			Density:       d.Density,
			Viscosity:     voxel.Volume(d.Viscosity),
			MistDuration:  d.MistDuration,
			MaxMistSpread: d.MaxMistSpread,
			FreezesInto:   d.FreezesInto,
			FreezingPoint: d.FreezingPoint,
		})
	}
	return out
}

func (c FluidCatalog) Lookup(id string) (voxel.FluidTypeID, bool) {
	t, ok := c.Index[id]
	return t, ok
}
