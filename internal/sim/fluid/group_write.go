package fluid

import (
	"voxelfluid/internal/sim/voxel"
)

// writeStep commits the staged deltas to the grid, removals first, and brings the
// queue sets in line with the new membership.
func (g *Group) writeStep() {
	if g.state != StateActive {
		return
	}
	f := &g.future
	clear(g.removed)

	predictedEmpty := make(map[voxel.Point]struct{}, len(f.empty))
	for _, p := range f.empty {
		predictedEmpty[p] = struct{}{}
	}

	for _, d := range f.deltas {
		if d.delta >= 0 {
			continue
		}
		p := d.point
		rec, ok := g.grid.FluidGetData(p, g.fluid)
		g.assertf(ok && rec.Group == g.id, p, "drain of point not owned (record=%v group=%d)", ok, rec.Group)
		g.assertf(int64(rec.Volume) >= -d.delta, p, "drain %d exceeds volume %d", -d.delta, rec.Volume)
		if g.grid.FluidRemove(p, voxel.Volume(-d.delta), g.fluid) == 0 {
			g.drain.remove(p)
			if _, ok := predictedEmpty[p]; !ok {
				g.splitStale = true
			}
		} else if _, ok := predictedEmpty[p]; ok {
			g.splitStale = true
		}
	}

	for _, d := range f.deltas {
		if d.delta <= 0 {
			continue
		}
		p := d.point
		g.grid.FluidAdd(p, voxel.Volume(d.delta), g.fluid)
		rec, _ := g.grid.FluidGetData(p, g.fluid)
		switch rec.Group {
		case g.id:
		case voxel.NoGroup:
			g.claim(p)
			f.claimed = append(f.claimed, p)
			g.mergeCandidates[p] = struct{}{}
		default:
			// Another group of this fluid got there first this tick; the volume is
			// theirs now and the two groups merge later in the tick.
			if other := g.registry.groups[rec.Group]; other != nil {
				other.markUnstable()
			}
			g.mergeCandidates[p] = struct{}{}
			g.splitStale = true
		}
	}

	g.fill.addAll(f.newAdjacent)
	for _, p := range f.noLongerAdjacent {
		if !g.drain.contains(p) {
			g.fill.remove(p)
		}
	}
	if len(f.deltas) > 0 {
		g.registry.stats.Moved++
	}
}

// afterWriteStep settles points left overfull by the writes and wets the air above
// newly occupied points.
func (g *Group) afterWriteStep() {
	if g.state != StateActive && g.state != StateDissolved {
		return
	}
	for _, d := range g.future.deltas {
		if g.grid.FluidIsOverfull(d.point) {
			g.registry.ResolveOverfull(d.point)
		}
	}
	for _, p := range g.future.claimed {
		if g.drain.contains(p) {
			g.spawnMistAbove(p)
		}
	}
	if len(g.future.claimed) > 0 || len(g.future.empty) > 0 {
		g.refreshAboveGround()
	}
}

func (g *Group) refreshAboveGround() {
	g.aboveGround = false
	for p := range g.drain.set {
		if g.grid.IsExposedToSky(p) {
			g.aboveGround = true
			return
		}
	}
}

// canDissolve reports whether the group has been squeezed off the grid: no members, a
// positive excess and no fill point with room for its fluid.
func (g *Group) canDissolve() bool {
	if g.state != StateActive || g.drain.len() > 0 || g.excessVolume <= 0 || g.lastDisplacedAt == voxel.NoPoint {
		return false
	}
	open := g.grid.QueryPointsWithCondition(g.fill.points(), func(p voxel.Point) bool {
		return g.grid.FluidCanEnterCurrently(p, g.fluid)
	})
	return len(open) == 0
}

// dissolveInto hands the group's volume to the denser group that displaced it.
func (g *Group) dissolveInto(absorber *Group) {
	g.state = StateDissolved
	g.stable = true
	for _, t := range sortedTypes(g.dissolved) {
		absorber.carryDissolved(t, g.dissolved[t])
	}
	g.dissolved = map[voxel.FluidTypeID]voxel.GroupID{}
	absorber.carryDissolved(g.fluid, g.id)
	absorber.markUnstable()
	delete(g.registry.unstable, g.id)
	g.registry.stats.Dissolved++
}
