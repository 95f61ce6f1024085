package voxel

import "fmt"

// Fluid records at a point are kept densest first; ties by type id.

func (g *Grid) FluidRecords(p Point) []FluidRecord { return g.fluids[p] }

func (g *Grid) findFluid(p Point, t FluidTypeID) int {
	for i, r := range g.fluids[p] {
		if r.Type == t {
			return i
		}
	}
	return -1
}

func (g *Grid) FluidGetData(p Point, t FluidTypeID) (FluidRecord, bool) {
	if i := g.findFluid(p, t); i >= 0 {
		return g.fluids[p][i], true
	}
	return FluidRecord{}, false
}

func (g *Grid) FluidContains(p Point, t FluidTypeID) bool { return g.findFluid(p, t) >= 0 }

func (g *Grid) FluidAny(p Point) bool { return len(g.fluids[p]) > 0 }

func (g *Grid) FluidVolumeOfTypeContains(p Point, t FluidTypeID) Volume {
	if i := g.findFluid(p, t); i >= 0 {
		return g.fluids[p][i].Volume
	}
	return 0
}

func (g *Grid) FluidTotalVolume(p Point) Volume {
	var total Volume
	for _, r := range g.fluids[p] {
		total += r.Volume
	}
	return total
}

// FluidLevelForType is the occupancy of p as seen by fluid type t: solids plus every
// fluid at least as dense as t (t included). Lighter fluids do not count, t pushes
// them out.
func (g *Grid) FluidLevelForType(p Point, t FluidTypeID) Volume {
	density := g.FluidType(t).Density
	level := g.solid[p]
	for _, r := range g.fluids[p] {
		if r.Type == t || g.types[r.Type].Density >= density {
			level += r.Volume
		}
	}
	return level
}

func (g *Grid) FluidVolumeOfTypeCanEnter(p Point, t FluidTypeID) Volume {
	level := g.FluidLevelForType(p, t)
	if level >= g.capacity {
		return 0
	}
	return g.capacity - level
}

func (g *Grid) FluidCanEnterEver(p Point) bool { return g.solid[p] < g.capacity }

func (g *Grid) FluidCanEnterCurrently(p Point, t FluidTypeID) bool {
	return g.FluidVolumeOfTypeCanEnter(p, t) > 0
}

func (g *Grid) FluidIsOverfull(p Point) bool {
	return g.solid[p]+g.FluidTotalVolume(p) > g.capacity
}

// FluidAdd adds volume of type t at p, creating an unowned record when needed.
func (g *Grid) FluidAdd(p Point, v Volume, t FluidTypeID) {
	if v == 0 {
		return
	}
	g.markDirty(p)
	if i := g.findFluid(p, t); i >= 0 {
		g.fluids[p][i].Volume += v
		return
	}
	density := g.FluidType(t).Density
	recs := g.fluids[p]
	at := len(recs)
	for i, r := range recs {
		d := g.types[r.Type].Density
		if d < density || (d == density && r.Type > t) {
			at = i
			break
		}
	}
	recs = append(recs, FluidRecord{})
	copy(recs[at+1:], recs[at:])
	recs[at] = FluidRecord{Type: t, Volume: v}
	g.fluids[p] = recs
}

// FluidRemove removes volume of type t from p and returns what is left. The record is
// dropped when it reaches zero. Removing more than is present is an engine defect.
func (g *Grid) FluidRemove(p Point, v Volume, t FluidTypeID) Volume {
	i := g.findFluid(p, t)
	if i < 0 {
		panic(fmt.Sprintf("voxel: remove %d of fluid %d at %v: no record", v, t, g.Coords(p)))
	}
	r := &g.fluids[p][i]
	if r.Volume < v {
		panic(fmt.Sprintf("voxel: remove %d of fluid %d at %v: only %d present", v, t, g.Coords(p), r.Volume))
	}
	if v == 0 {
		return r.Volume
	}
	g.markDirty(p)
	r.Volume -= v
	left := r.Volume
	if left == 0 {
		g.fluids[p] = append(g.fluids[p][:i], g.fluids[p][i+1:]...)
	}
	return left
}

// FluidSetGroup records the owning group of the (p, t) record.
func (g *Grid) FluidSetGroup(p Point, t FluidTypeID, id GroupID) {
	i := g.findFluid(p, t)
	if i < 0 {
		panic(fmt.Sprintf("voxel: set group %d for fluid %d at %v: no record", id, t, g.Coords(p)))
	}
	if g.fluids[p][i].Group != id {
		g.fluids[p][i].Group = id
		g.markDirty(p)
	}
}

func (g *Grid) FluidUnsetGroup(p Point, t FluidTypeID) {
	if i := g.findFluid(p, t); i >= 0 && g.fluids[p][i].Group != NoGroup {
		g.fluids[p][i].Group = NoGroup
		g.markDirty(p)
	}
}

// FluidDisplaceOverfull pushes fluid out of p, lightest first, until p fits its
// capacity. The removed amounts are returned so the caller can credit each owning
// group's excess volume.
func (g *Grid) FluidDisplaceOverfull(p Point) []Displacement {
	total := g.solid[p] + g.FluidTotalVolume(p)
	if total <= g.capacity {
		return nil
	}
	over := total - g.capacity
	var out []Displacement
	recs := g.fluids[p]
	for i := len(recs) - 1; i >= 0 && over > 0; i-- {
		take := min(over, recs[i].Volume)
		recs[i].Volume -= take
		over -= take
		out = append(out, Displacement{
			Type:    recs[i].Type,
			Group:   recs[i].Group,
			Volume:  take,
			Emptied: recs[i].Volume == 0,
		})
	}
	kept := recs[:0]
	for _, r := range recs {
		if r.Volume > 0 {
			kept = append(kept, r)
		}
	}
	g.fluids[p] = kept
	g.markDirty(p)
	return out
}
