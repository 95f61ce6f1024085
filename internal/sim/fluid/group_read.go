package fluid

import (
	"sort"

	"voxelfluid/internal/sim/voxel"
)

// readStep computes one tick of flow for the group. It only reads the grid and writes
// into the group's own queues and future, so several groups may run it concurrently.
func (g *Group) readStep() {
	g.future = future{}
	if g.state != StateActive {
		return
	}

	if g.drain.len() == 0 && g.excessVolume == 0 && len(g.dissolved) == 0 {
		g.state = StateDestroyed
		return
	}
	if g.drain.len() == 0 && g.excessVolume < 0 {
		// Nothing left to drain the debt from.
		g.excessVolume = 0
	}

	g.drain.initializeForStep(g.grid, g.fluid)
	g.fill.initializeForStep(g.grid, g.fluid)

	g.disperseExcess()
	g.flow()
	g.placeRemainder()
	g.describeFuture()

	g.stable = len(g.future.deltas) == 0 && len(g.removed) == 0
}

// disperseExcess spreads whole units of excess volume evenly over the fill front (or
// takes a debt evenly from the drain front).
func (g *Group) disperseExcess() {
	for g.excessVolume > 0 && !g.fill.empty() {
		n := int64(g.fill.frontSize())
		each := g.excessVolume / n
		if each < 1 {
			return
		}
		per := min(each, int64(g.fill.frontLimitPerPoint()))
		g.fill.recordDelta(voxel.Volume(per))
		g.excessVolume -= per * n
	}
	for g.excessVolume < 0 && !g.drain.empty() {
		n := int64(g.drain.frontSize())
		each := -g.excessVolume / n
		if each < 1 {
			return
		}
		per := min(each, int64(g.drain.frontLimitPerPoint()))
		g.drain.recordDelta(voxel.Volume(per))
		g.excessVolume += per * n
	}
}

// settled reports whether no volume should move from the drain front to the fill
// front. A drain front one unit above a fill front on the same elevation counts as
// settled, the empty fill level included.
func settled(dz, fz int, dl, fl voxel.Volume) bool {
	return dz < fz || (dz == fz && dl <= fl+1)
}

// flow moves volume from the drain front to the fill front until the fronts settle,
// a queue is exhausted or the viscosity budget runs out.
func (g *Group) flow() {
	budget := int64(g.viscosity)
	capped := budget > 0

	for !g.drain.empty() && !g.fill.empty() {
		dz, fz := g.drain.frontElevation(), g.fill.frontElevation()
		dl, fl := g.drain.frontLevel(), g.fill.frontLevel()
		if settled(dz, fz, dl, fl) {
			return
		}
		nd, nf := int64(g.drain.frontSize()), int64(g.fill.frontSize())
		drainPer := int64(g.drain.frontLimitPerPoint())
		fillPer := int64(g.fill.frontLimitPerPoint())

		amount := min(drainPer*nd, fillPer*nf)
		if dz == fz {
			// Level both fronts, never overshoot.
			amount = min(amount, int64(dl-fl)*nd*nf/(nd+nf))
		}
		if capped {
			amount = min(amount, budget)
		}
		if amount <= 0 {
			return
		}

		dEach, fEach := amount/nd, amount/nf
		if dEach == 0 || fEach == 0 {
			g.flowPartial(amount, dEach, fEach, nd, nf)
			return
		}
		g.drain.recordDelta(voxel.Volume(dEach))
		g.fill.recordDelta(voxel.Volume(fEach))
		g.excessVolume += dEach*nd - fEach*nf
		budget -= fEach * nf
	}
}

// flowPartial moves an amount too small to be spread evenly over both fronts. It is
// always the last movement of a read step.
func (g *Group) flowPartial(amount, dEach, fEach, nd, nf int64) {
	var drained, filled int64
	if dEach > 0 {
		g.drain.recordDelta(voxel.Volume(dEach))
		drained = dEach * nd
		drained += g.drain.recordPartial(amount - drained)
	} else {
		drained = g.drain.recordPartial(amount)
	}
	if fEach > 0 {
		g.fill.recordDelta(voxel.Volume(fEach))
		filled = fEach * nf
		filled += g.fill.recordPartial(amount - filled)
	} else {
		filled = g.fill.recordPartial(amount)
	}
	g.excessVolume += drained - filled
}

// placeRemainder puts an excess smaller than the front one unit at a time, lowest
// point ids first.
func (g *Group) placeRemainder() {
	switch {
	case g.excessVolume > 0 && !g.fill.empty() && g.excessVolume < int64(g.fill.frontSize()):
		g.excessVolume -= g.fill.recordPartial(g.excessVolume)
	case g.excessVolume < 0 && !g.drain.empty() && -g.excessVolume < int64(g.drain.frontSize()):
		g.excessVolume += g.drain.recordPartial(-g.excessVolume)
	}
}

// describeFuture turns the staged queue deltas into the net per-point changes and the
// membership consequences the write, split and merge steps act on.
func (g *Group) describeFuture() {
	net := map[voxel.Point]int64{}
	for _, e := range g.drain.deltas() {
		net[e.point] -= int64(e.delta)
	}
	for _, e := range g.fill.deltas() {
		net[e.point] += int64(e.delta)
	}
	f := &g.future
	for p, d := range net {
		if d != 0 {
			f.deltas = append(f.deltas, pointDelta{point: p, delta: d})
		}
	}
	sort.Slice(f.deltas, func(i, j int) bool { return f.deltas[i].point < f.deltas[j].point })

	for _, d := range f.deltas {
		if g.drain.contains(d.point) {
			if int64(g.grid.FluidVolumeOfTypeContains(d.point, g.fluid))+d.delta == 0 {
				f.empty = append(f.empty, d.point)
			}
		} else if d.delta > 0 {
			f.newlyOccupied = append(f.newlyOccupied, d.point)
		}
	}
	if len(f.empty) == 0 && len(f.newlyOccupied) == 0 && len(g.removed) == 0 {
		return
	}

	members := make(map[voxel.Point]struct{}, g.drain.len()+len(f.newlyOccupied))
	for p := range g.drain.set {
		members[p] = struct{}{}
	}
	for _, p := range f.empty {
		delete(members, p)
	}
	// A point filled without touching a staying member may not connect to the group.
	detached := false
	for _, p := range f.newlyOccupied {
		if !touchesAny(g.grid, p, members) {
			detached = true
			break
		}
	}
	for _, p := range f.newlyOccupied {
		members[p] = struct{}{}
	}

	var nbuf [6]voxel.Point
	seen := map[voxel.Point]struct{}{}
	for _, p := range f.newlyOccupied {
		for _, q := range g.grid.Neighbors(p, nbuf[:0]) {
			if _, ok := seen[q]; ok || g.fill.contains(q) || !g.grid.FluidCanEnterEver(q) {
				continue
			}
			seen[q] = struct{}{}
			f.newAdjacent = append(f.newAdjacent, q)
		}
	}
	sort.Slice(f.newAdjacent, func(i, j int) bool { return f.newAdjacent[i] < f.newAdjacent[j] })

	if len(members) == 0 {
		return
	}

	// Points that left the membership, and their fill neighbours, stay fill candidates
	// only while they touch a future member.
	vacated := append(sortedSet(g.removed), f.empty...)
	clear(seen)
	for _, p := range vacated {
		candidates := append([]voxel.Point{p}, g.grid.Neighbors(p, nbuf[:0])...)
		for _, c := range candidates {
			if _, ok := seen[c]; ok || !g.fill.contains(c) {
				continue
			}
			seen[c] = struct{}{}
			if _, ok := members[c]; ok || touchesAny(g.grid, c, members) {
				continue
			}
			f.noLongerAdjacent = append(f.noLongerAdjacent, c)
		}
	}
	sort.Slice(f.noLongerAdjacent, func(i, j int) bool { return f.noLongerAdjacent[i] < f.noLongerAdjacent[j] })

	if len(vacated) > 0 || detached {
		f.splits = components(g.grid, members)
		if len(f.splits) < 2 {
			f.splits = nil
		}
	}
}

func touchesAny(grid Grid, p voxel.Point, set map[voxel.Point]struct{}) bool {
	var nbuf [6]voxel.Point
	for _, q := range grid.Neighbors(p, nbuf[:0]) {
		if _, ok := set[q]; ok {
			return true
		}
	}
	return false
}

// components flood-fills members into connected components, largest first (ties by
// smallest point). Each component carries the enterable points bordering it.
func components(grid Grid, members map[voxel.Point]struct{}) []splitData {
	visited := make(map[voxel.Point]struct{}, len(members))
	var out []splitData
	var nbuf [6]voxel.Point
	for _, start := range sortedSet(members) {
		if _, ok := visited[start]; ok {
			continue
		}
		visited[start] = struct{}{}
		comp := []voxel.Point{start}
		adjacent := map[voxel.Point]struct{}{}
		for i := 0; i < len(comp); i++ {
			for _, q := range grid.Neighbors(comp[i], nbuf[:0]) {
				if _, ok := members[q]; ok {
					if _, done := visited[q]; !done {
						visited[q] = struct{}{}
						comp = append(comp, q)
					}
					continue
				}
				if grid.FluidCanEnterEver(q) {
					adjacent[q] = struct{}{}
				}
			}
		}
		sort.Slice(comp, func(i, j int) bool { return comp[i] < comp[j] })
		out = append(out, splitData{members: comp, futureAdjacent: sortedSet(adjacent)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].members) != len(out[j].members) {
			return len(out[i].members) > len(out[j].members)
		}
		return out[i].members[0] < out[j].members[0]
	})
	return out
}
