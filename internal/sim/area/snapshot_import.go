package area

import (
	"fmt"
	"log"

	"voxelfluid/internal/persistence/snapshot"
	"voxelfluid/internal/sim/encoding"
	"voxelfluid/internal/sim/fluid"
	"voxelfluid/internal/sim/voxel"
)

// NewFromSnapshot resumes an area. types must describe the same fluids, in the same
// order, as the area that wrote the snapshot. Operational parameters stored in the
// snapshot override cfg so a replay runs the same way as the original.
func NewFromSnapshot(cfg Config, types []voxel.FluidType, snap snapshot.SnapshotV1, logger *log.Logger) (*Area, error) {
	if err := checkFluids(types, snap.Fluids); err != nil {
		return nil, err
	}
	if snap.Header.AreaID != "" {
		cfg.ID = snap.Header.AreaID
	}
	if snap.TickRate > 0 {
		cfg.TickRateHz = snap.TickRate
	}
	cfg.SnapshotEveryTicks = snap.SnapshotEveryTicks
	cfg.Temperature = snap.Temperature
	cfg.FreezeEveryTicks = snap.FreezeEveryTicks
	if snap.FluidsDigest != "" {
		cfg.FluidsDigest = snap.FluidsDigest
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	grid, err := gridFromSnapshot(types, snap)
	if err != nil {
		return nil, fmt.Errorf("import grid: %w", err)
	}
	a := newArea(cfg, grid, logger)
	reg, err := fluid.Import(grid, registryFromV1(snap.Registry), a.registryOptions())
	if err != nil {
		return nil, fmt.Errorf("import registry: %w", err)
	}
	a.reg = reg
	a.tick.Store(snap.Header.Tick)
	if cfg.Validate {
		a.reg.Validate()
	}
	return a, nil
}

func checkFluids(types []voxel.FluidType, stored []snapshot.FluidTypeV1) error {
	if len(stored) != len(types) {
		return fmt.Errorf("snapshot has %d fluids, catalog has %d", len(stored), len(types))
	}
	for i, s := range stored {
		t := types[i]
		if s.Name != t.Name || s.Density != t.Density {
			return fmt.Errorf("fluid %d: snapshot %s/%d, catalog %s/%d", i, s.Name, s.Density, t.Name, t.Density)
		}
	}
	return nil
}

func gridFromSnapshot(types []voxel.FluidType, snap snapshot.SnapshotV1) (*voxel.Grid, error) {
	size := voxel.Vec3i{X: snap.Size[0], Y: snap.Size[1], Z: snap.Size[2]}
	n := size.X * size.Y * size.Z
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return nil, fmt.Errorf("bad size %v", snap.Size)
	}
	solid, err := encoding.DecodeRLE(snap.Solid, n)
	if err != nil {
		return nil, fmt.Errorf("solid layer: %w", err)
	}
	l := voxel.Layers{
		Size:     size,
		Capacity: voxel.Volume(snap.Capacity),
		Solid:    make([]voxel.Volume, n),
	}
	for i, v := range solid {
		l.Solid[i] = voxel.Volume(v)
	}
	for _, r := range snap.Records {
		rec := voxel.FluidRecord{Type: voxel.FluidTypeID(r.Type), Volume: voxel.Volume(r.Volume)}
		k := len(l.Fluids)
		if k > 0 && l.Fluids[k-1].Point == voxel.Point(r.Point) {
			l.Fluids[k-1].Records = append(l.Fluids[k-1].Records, rec)
			continue
		}
		l.Fluids = append(l.Fluids, voxel.PointFluids{Point: voxel.Point(r.Point), Records: []voxel.FluidRecord{rec}})
	}
	for _, m := range snap.Mist {
		if m.Point < 0 || int(m.Point) >= n {
			return nil, fmt.Errorf("mist point %d out of range", m.Point)
		}
		l.Mist = append(l.Mist, voxel.PointMist{Point: voxel.Point(m.Point), Mist: voxel.Mist{Type: voxel.FluidTypeID(m.Type), Ticks: m.Ticks, Spread: m.Spread}})
	}
	for _, f := range snap.Frozen {
		if f.Point < 0 || int(f.Point) >= n {
			return nil, fmt.Errorf("frozen point %d out of range", f.Point)
		}
		l.Frozen = append(l.Frozen, voxel.PointFrozen{Point: voxel.Point(f.Point), Type: voxel.FluidTypeID(f.Type)})
	}
	return voxel.Import(l, types)
}

func registryFromV1(r snapshot.RegistryV1) fluid.State {
	st := fluid.State{
		NextID: voxel.GroupID(r.NextGroup),
		Tick:   r.Tick,
		Stats: fluid.Stats{
			Tick:       r.Tick,
			Created:    r.Stats.Created,
			Merged:     r.Stats.Merged,
			Split:      r.Stats.Split,
			Dissolved:  r.Stats.Dissolved,
			Reabsorbed: r.Stats.Reabsorbed,
			Destroyed:  r.Stats.Destroyed,
			Moved:      r.Stats.Moved,
		},
	}
	for _, g := range r.Groups {
		gs := fluid.GroupState{
			ID:              voxel.GroupID(g.ID),
			Type:            voxel.FluidTypeID(g.Type),
			State:           fluid.LifecycleState(g.State),
			Points:          pointsFromV1(g.Points),
			Fill:            pointsFromV1(g.Fill),
			Excess:          g.Excess,
			Stable:          g.Stable,
			AboveGround:     g.AboveGround,
			Removed:         pointsFromV1(g.Removed),
			SplitStale:      g.SplitStale,
			LastDisplacedAt: voxel.Point(g.LastDisplacedAt),
		}
		if len(g.Dissolved) > 0 {
			gs.Dissolved = map[voxel.FluidTypeID]voxel.GroupID{}
			for t, id := range g.Dissolved {
				gs.Dissolved[voxel.FluidTypeID(t)] = voxel.GroupID(id)
			}
		}
		st.Groups = append(st.Groups, gs)
		if gs.State == fluid.StateActive {
			st.Stats.Groups++
		}
	}
	return st
}

func pointsFromV1(ps []int32) []voxel.Point {
	out := make([]voxel.Point, len(ps))
	for i, p := range ps {
		out[i] = voxel.Point(p)
	}
	return out
}
