package fluid

import (
	"voxelfluid/internal/sim/voxel"
)

// splitStep breaks the group into its connected components. The largest keeps the
// group; every other component becomes a new group.
func (g *Group) splitStep() {
	if g.state != StateActive {
		return
	}
	splits := g.future.splits
	if g.splitStale {
		members := make(map[voxel.Point]struct{}, g.drain.len())
		for p := range g.drain.set {
			members[p] = struct{}{}
		}
		splits = components(g.grid, members)
		g.splitStale = false
	}
	g.future.splits = nil
	if len(splits) < 2 {
		return
	}

	kept := splits[0]
	g.drain = newDrainQueue()
	g.drain.addAll(kept.members)
	g.fill = newFillQueue()
	g.fill.addAll(kept.members)
	g.fill.addAll(kept.futureAdjacent)
	for _, s := range splits[1:] {
		ng := g.registry.createSplit(g.fluid, s)
		for _, p := range s.members {
			if _, ok := g.mergeCandidates[p]; ok {
				delete(g.mergeCandidates, p)
				ng.mergeCandidates[p] = struct{}{}
			}
		}
	}
	clear(g.removed)
	g.refreshAboveGround()
	g.markUnstable()
	g.registry.logf("tick=%d group=%d split into %d parts (kept %d points)", g.registry.tick, g.id, len(splits), len(kept.members))
}

// reabsorbDissolved puts each carried fluid back on the highest point around the group
// that has room for it.
func (g *Group) reabsorbDissolved() {
	if g.state != StateActive {
		return
	}
	for _, t := range sortedTypes(g.dissolved) {
		id := g.dissolved[t]
		d := g.registry.groups[id]
		g.assertf(d != nil && d.state == StateDissolved, voxel.NoPoint, "dissolved group %d missing or not dissolved", id)

		target := voxel.NoPoint
		targetZ := 0
		open := g.grid.QueryPointsWithCondition(g.fill.points(), func(p voxel.Point) bool {
			return g.grid.FluidCanEnterCurrently(p, t)
		})
		for _, p := range open {
			if z := g.grid.Elevation(p); target == voxel.NoPoint || z > targetZ {
				target, targetZ = p, z
			}
		}
		if target == voxel.NoPoint {
			continue
		}

		room := int64(g.grid.FluidVolumeOfTypeCanEnter(target, t))
		v := min(d.excessVolume, room)
		rest := d.excessVolume - v
		d.excessVolume = 0
		d.state = StateDestroyed
		delete(g.dissolved, t)

		holder := g.registry.AddFluid(target, voxel.Volume(v), t)
		if holder != nil {
			holder.excessVolume += rest
			holder.markUnstable()
		}
		g.registry.stats.Reabsorbed++
		g.markUnstable()
	}
}

// mergeStep merges with every other group of the same fluid touching a point this
// group occupied this tick. When this group is absorbed the survivor continues.
func (g *Group) mergeStep() {
	for g.state == StateActive && len(g.mergeCandidates) > 0 {
		candidates := sortedSet(g.mergeCandidates)
		clear(g.mergeCandidates)
		if survivor := g.mergeAround(candidates); survivor != g {
			survivor.mergeStep()
			return
		}
	}
}

// mergeAround merges g with the groups touching candidates. If g is absorbed along the
// way the survivor inherits the unprocessed candidates and is returned.
func (g *Group) mergeAround(candidates []voxel.Point) *Group {
	var nbuf [6]voxel.Point
	for i, p := range candidates {
		rec, ok := g.grid.FluidGetData(p, g.fluid)
		if !ok || rec.Group == voxel.NoGroup {
			continue
		}
		var others []voxel.GroupID
		switch {
		case rec.Group == g.id:
			for _, q := range g.grid.Neighbors(p, nbuf[:0]) {
				if qr, ok := g.grid.FluidGetData(q, g.fluid); ok && qr.Group != voxel.NoGroup && qr.Group != g.id {
					others = append(others, qr.Group)
				}
			}
		case touchesAny(g.grid, p, g.drain.set):
			// Lost the point to another group during the write step.
			others = append(others, rec.Group)
		}
		for _, id := range others {
			other := g.registry.groups[id]
			if other == nil || other.state != StateActive || other == g {
				continue
			}
			if survivor := g.merge(other); survivor != g {
				for _, rest := range candidates[i:] {
					survivor.mergeCandidates[rest] = struct{}{}
				}
				return survivor
			}
		}
	}
	return g
}
