package fluid

import (
	"voxelfluid/internal/sim/voxel"
)

// AddFluid puts v units of fluid t at p and returns the group that holds them. The
// point joins an existing group when one owns it or touches it, otherwise a new group
// is created. Overfull points are resolved straight away.
func (r *Registry) AddFluid(p voxel.Point, v voxel.Volume, t voxel.FluidTypeID) *Group {
	if v == 0 {
		return nil
	}
	r.grid.FluidAdd(p, v, t)
	rec, _ := r.grid.FluidGetData(p, t)

	var g *Group
	if rec.Group != voxel.NoGroup {
		g = r.groups[rec.Group]
		if g == nil || g.state != StateActive {
			r.fail(rec.Group, p, "fluid %d owned by inactive group", t)
		}
		g.markUnstable()
	} else {
		g = r.largestAdjacent(p, t)
		if g == nil {
			g = r.createGroup(t)
		}
		g = g.addPoint(p, true)
	}
	if r.grid.FluidIsOverfull(p) {
		r.ResolveOverfull(p)
	}
	return g
}

func (r *Registry) largestAdjacent(p voxel.Point, t voxel.FluidTypeID) *Group {
	var best *Group
	var nbuf [6]voxel.Point
	for _, q := range r.grid.Neighbors(p, nbuf[:0]) {
		rec, ok := r.grid.FluidGetData(q, t)
		if !ok || rec.Group == voxel.NoGroup {
			continue
		}
		g := r.groups[rec.Group]
		if g == nil || g.state != StateActive {
			continue
		}
		if best == nil || g.drain.len() > best.drain.len() || (g.drain.len() == best.drain.len() && g.id < best.id) {
			best = g
		}
	}
	return best
}

// RemoveFluid debits up to v units of fluid t from the group owning p and returns the
// amount debited, which is capped at what the group holds. The volume leaves the
// group's highest points on its next step.
func (r *Registry) RemoveFluid(p voxel.Point, v voxel.Volume, t voxel.FluidTypeID) voxel.Volume {
	rec, ok := r.grid.FluidGetData(p, t)
	if !ok || rec.Group == voxel.NoGroup || v == 0 {
		return 0
	}
	g := r.groups[rec.Group]
	if g == nil || g.state != StateActive {
		return 0
	}
	avail := g.heldVolume() + g.excessVolume
	if avail <= 0 {
		return 0
	}
	debit := min(int64(v), avail)
	g.excessVolume -= debit
	g.markUnstable()
	return voxel.Volume(debit)
}

// RemoveFluidSynchronous takes up to v units of fluid t out of p right now and
// returns how much was removed.
func (r *Registry) RemoveFluidSynchronous(p voxel.Point, v voxel.Volume, t voxel.FluidTypeID) voxel.Volume {
	rec, ok := r.grid.FluidGetData(p, t)
	if !ok || v == 0 {
		return 0
	}
	v = min(v, rec.Volume)
	left := r.grid.FluidRemove(p, v, t)
	if g := r.groups[rec.Group]; g != nil {
		if left == 0 {
			g.removePoint(p)
		} else {
			g.markUnstable()
		}
	}
	r.wakeAround(p)
	return v
}

// OnSolidChanged reacts to a change of solid occupancy at p: fluid that no longer fits
// is displaced into its groups' excess, and groups next to a point that opened up may
// flow into it.
func (r *Registry) OnSolidChanged(p voxel.Point) {
	if r.grid.FluidIsOverfull(p) {
		r.ResolveOverfull(p)
	}
	if r.grid.FluidCanEnterEver(p) {
		var nbuf [7]voxel.Point
		for _, q := range append(r.grid.Neighbors(p, nbuf[:0]), p) {
			for _, rec := range r.grid.FluidRecords(q) {
				if g := r.groups[rec.Group]; g != nil && g.state == StateActive {
					g.fill.add(p)
				}
			}
		}
	}
	r.wakeAround(p)
}

// ResolveOverfull displaces fluid out of p, lightest first, into the excess volume of
// the owning groups.
func (r *Registry) ResolveOverfull(p voxel.Point) {
	for _, d := range r.grid.FluidDisplaceOverfull(p) {
		g := r.groups[d.Group]
		if g == nil || g.state != StateActive {
			g = r.orphanGroup(p, d.Type)
		}
		g.excessVolume += int64(d.Volume)
		g.lastDisplacedAt = p
		if d.Emptied {
			g.removePoint(p)
		}
		g.markUnstable()
	}
}

// orphanGroup creates a memberless group around p to carry displaced volume that has
// no live owner.
func (r *Registry) orphanGroup(p voxel.Point, t voxel.FluidTypeID) *Group {
	g := r.createGroup(t)
	var nbuf [6]voxel.Point
	if r.grid.FluidCanEnterEver(p) {
		g.fill.add(p)
	}
	for _, q := range r.grid.Neighbors(p, nbuf[:0]) {
		if r.grid.FluidCanEnterEver(q) {
			g.fill.add(q)
		}
	}
	return g
}

func (r *Registry) wakeAround(p voxel.Point) {
	var nbuf [7]voxel.Point
	for _, q := range append(r.grid.Neighbors(p, nbuf[:0]), p) {
		for _, rec := range r.grid.FluidRecords(q) {
			if g := r.groups[rec.Group]; g != nil {
				g.markUnstable()
			}
		}
	}
}
