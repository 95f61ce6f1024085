package area

import (
	"voxelfluid/internal/persistence/snapshot"
	"voxelfluid/internal/sim/encoding"
	"voxelfluid/internal/sim/fluid"
	"voxelfluid/internal/sim/voxel"
)

// ExportSnapshot captures the area at the current tick boundary.
func (a *Area) ExportSnapshot() snapshot.SnapshotV1 {
	tick := a.tick.Load()
	layers := a.grid.Export()

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			AreaID:  a.cfg.ID,
			Tick:    tick,
		},
		TickRate:           a.cfg.TickRateHz,
		SnapshotEveryTicks: a.cfg.SnapshotEveryTicks,
		Size:               toArr(layers.Size),
		Capacity:           uint32(layers.Capacity),
		Temperature:        a.cfg.Temperature,
		FreezeEveryTicks:   a.cfg.FreezeEveryTicks,
		FluidsDigest:       a.cfg.FluidsDigest,
	}
	for _, t := range a.grid.FluidTypes() {
		snap.Fluids = append(snap.Fluids, snapshot.FluidTypeV1{
			Name:          t.Name,
			Density:       t.Density,
			Viscosity:     uint32(t.Viscosity),
			MistDuration:  t.MistDuration,
			MaxMistSpread: t.MaxMistSpread,
			FreezesInto:   t.FreezesInto,
			FreezingPoint: t.FreezingPoint,
		})
	}

	solid := make([]uint32, len(layers.Solid))
	for i, v := range layers.Solid {
		solid[i] = uint32(v)
	}
	snap.Solid = encoding.EncodeRLE(solid)
	for _, pf := range layers.Fluids {
		for _, r := range pf.Records {
			snap.Records = append(snap.Records, snapshot.RecordV1{Point: int32(pf.Point), Type: uint8(r.Type), Volume: uint32(r.Volume)})
		}
	}
	for _, pm := range layers.Mist {
		snap.Mist = append(snap.Mist, snapshot.MistV1{Point: int32(pm.Point), Type: uint8(pm.Mist.Type), Ticks: pm.Mist.Ticks, Spread: pm.Mist.Spread})
	}
	for _, pf := range layers.Frozen {
		snap.Frozen = append(snap.Frozen, snapshot.FrozenV1{Point: int32(pf.Point), Type: uint8(pf.Type)})
	}

	snap.Registry = registryToV1(a.reg.Export())
	return snap
}

func registryToV1(st fluid.State) snapshot.RegistryV1 {
	out := snapshot.RegistryV1{
		NextGroup: uint32(st.NextID),
		Tick:      st.Tick,
		Stats: snapshot.StatsV1{
			Created:    st.Stats.Created,
			Merged:     st.Stats.Merged,
			Split:      st.Stats.Split,
			Dissolved:  st.Stats.Dissolved,
			Reabsorbed: st.Stats.Reabsorbed,
			Destroyed:  st.Stats.Destroyed,
			Moved:      st.Stats.Moved,
		},
	}
	for _, g := range st.Groups {
		gv := snapshot.GroupV1{
			ID:              uint32(g.ID),
			Type:            uint8(g.Type),
			State:           uint8(g.State),
			Points:          pointsToV1(g.Points),
			Fill:            pointsToV1(g.Fill),
			Excess:          g.Excess,
			Stable:          g.Stable,
			AboveGround:     g.AboveGround,
			Removed:         pointsToV1(g.Removed),
			SplitStale:      g.SplitStale,
			LastDisplacedAt: int32(g.LastDisplacedAt),
		}
		if len(g.Dissolved) > 0 {
			gv.Dissolved = map[uint8]uint32{}
			for t, id := range g.Dissolved {
				gv.Dissolved[uint8(t)] = uint32(id)
			}
		}
		out.Groups = append(out.Groups, gv)
	}
	return out
}

func pointsToV1(ps []voxel.Point) []int32 {
	if len(ps) == 0 {
		return nil
	}
	out := make([]int32, len(ps))
	for i, p := range ps {
		out[i] = int32(p)
	}
	return out
}
