package fluid

import (
	"sort"

	"voxelfluid/internal/sim/voxel"
)

type LifecycleState uint8

const (
	StateActive LifecycleState = iota
	StateMerged
	StateDissolved
	StateDestroyed
)

func (s LifecycleState) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateMerged:
		return "MERGED"
	case StateDissolved:
		return "DISSOLVED"
	case StateDestroyed:
		return "DESTROYED"
	}
	return "UNKNOWN"
}

// splitData is one connected component of a group's future membership.
type splitData struct {
	members        []voxel.Point
	futureAdjacent []voxel.Point
}

// future is what a read step decided; the write, split and merge steps carry it out.
type future struct {
	deltas           []pointDelta
	empty            []voxel.Point
	newlyOccupied    []voxel.Point
	newAdjacent      []voxel.Point
	noLongerAdjacent []voxel.Point
	splits           []splitData
	claimed          []voxel.Point
}

type pointDelta struct {
	point voxel.Point
	delta int64
}

// Group is a maximal connected set of points holding one fluid type.
type Group struct {
	id       voxel.GroupID
	fluid    voxel.FluidTypeID
	registry *Registry
	grid     Grid

	drain drainQueue
	fill  fillQueue

	excessVolume int64
	viscosity    voxel.Volume

	state       LifecycleState
	stable      bool
	aboveGround bool

	// Lighter fluids squeezed off the grid and carried by this group, by type.
	dissolved map[voxel.FluidTypeID]voxel.GroupID

	removed         map[voxel.Point]struct{}
	mergeCandidates map[voxel.Point]struct{}
	splitStale      bool
	lastDisplacedAt voxel.Point

	future future
}

func newGroup(r *Registry, id voxel.GroupID, t voxel.FluidTypeID) *Group {
	return &Group{
		id:              id,
		fluid:           t,
		registry:        r,
		grid:            r.grid,
		drain:           newDrainQueue(),
		fill:            newFillQueue(),
		viscosity:       r.grid.FluidType(t).Viscosity,
		dissolved:       map[voxel.FluidTypeID]voxel.GroupID{},
		removed:         map[voxel.Point]struct{}{},
		mergeCandidates: map[voxel.Point]struct{}{},
		lastDisplacedAt: voxel.NoPoint,
	}
}

func (g *Group) ID() voxel.GroupID            { return g.id }
func (g *Group) FluidType() voxel.FluidTypeID { return g.fluid }
func (g *Group) State() LifecycleState        { return g.state }
func (g *Group) Stable() bool                 { return g.stable }
func (g *Group) AboveGround() bool            { return g.aboveGround }
func (g *Group) ExcessVolume() int64          { return g.excessVolume }
func (g *Group) Size() int                    { return g.drain.len() }
func (g *Group) Points() []voxel.Point        { return g.drain.points() }
func (g *Group) Contains(p voxel.Point) bool  { return g.drain.contains(p) }
func (g *Group) Active() bool                 { return g.state == StateActive }

// heldVolume is the fluid the group's points hold on the grid, excess not included.
func (g *Group) heldVolume() int64 {
	var n int64
	for p := range g.drain.set {
		n += int64(g.grid.FluidVolumeOfTypeContains(p, g.fluid))
	}
	return n
}

// Dissolved returns the groups of other fluid types this group is carrying.
func (g *Group) Dissolved() map[voxel.FluidTypeID]voxel.GroupID {
	out := make(map[voxel.FluidTypeID]voxel.GroupID, len(g.dissolved))
	for t, id := range g.dissolved {
		out[t] = id
	}
	return out
}

func (g *Group) markUnstable() {
	if g.state != StateActive {
		return
	}
	g.stable = false
	g.registry.unstable[g.id] = struct{}{}
}

// claim links p to this group and widens the fill set around it.
func (g *Group) claim(p voxel.Point) {
	g.grid.FluidSetGroup(p, g.fluid, g.id)
	g.drain.add(p)
	g.fill.add(p)
	var nbuf [6]voxel.Point
	for _, q := range g.grid.Neighbors(p, nbuf[:0]) {
		if g.grid.FluidCanEnterEver(q) {
			g.fill.add(q)
		}
	}
	if !g.aboveGround && g.grid.IsExposedToSky(p) {
		g.aboveGround = true
	}
}

// addPoint registers p, whose record of this fluid already exists on the grid, as a
// member. A previous owner loses the point. With checkMerge the group immediately
// merges with any same-type group now touching p; the surviving group is returned.
func (g *Group) addPoint(p voxel.Point, checkMerge bool) *Group {
	rec, ok := g.grid.FluidGetData(p, g.fluid)
	g.assertf(ok && rec.Volume > 0, p, "addPoint without fluid record")
	if rec.Group != voxel.NoGroup && rec.Group != g.id {
		prev := g.registry.groups[rec.Group]
		g.assertf(prev != nil, p, "record owned by unknown group %d", rec.Group)
		prev.drain.remove(p)
		prev.noteRemoved(p)
	}
	g.claim(p)
	g.markUnstable()
	g.spawnMistAbove(p)
	if !checkMerge {
		g.mergeCandidates[p] = struct{}{}
		return g
	}
	return g.mergeAdjacent([]voxel.Point{p})
}

// removePoint drops p from the membership. Structural consequences (split, pruning of
// the fill set) are deferred to the next read step.
func (g *Group) removePoint(p voxel.Point) {
	if rec, ok := g.grid.FluidGetData(p, g.fluid); ok && rec.Group == g.id {
		g.grid.FluidUnsetGroup(p, g.fluid)
	}
	g.drain.remove(p)
	g.noteRemoved(p)
}

func (g *Group) noteRemoved(p voxel.Point) {
	g.removed[p] = struct{}{}
	g.splitStale = true
	g.markUnstable()
}

func (g *Group) spawnMistAbove(p voxel.Point) {
	if g.grid.FluidType(g.fluid).MistDuration <= 0 {
		return
	}
	above := g.grid.Above(p)
	if above == voxel.NoPoint || !g.grid.FluidCanEnterEver(above) || g.grid.FluidAny(above) {
		return
	}
	g.grid.FluidSpawnMist(above, g.fluid)
}

// merge combines two groups of the same fluid. The larger (by member count, lower id
// on ties) survives and is returned; the other is tombstoned as merged.
func (g *Group) merge(other *Group) *Group {
	g.assertf(other != g, voxel.NoPoint, "merge with self")
	g.assertf(other.fluid == g.fluid, voxel.NoPoint, "merge across fluid types %d/%d", g.fluid, other.fluid)
	g.assertf(g.state == StateActive && other.state == StateActive, voxel.NoPoint, "merge of inactive group %d (%s/%s)", other.id, g.state, other.state)

	big, small := g, other
	if small.drain.len() > big.drain.len() || (small.drain.len() == big.drain.len() && small.id < big.id) {
		big, small = small, big
	}

	for _, p := range small.drain.points() {
		big.grid.FluidSetGroup(p, big.fluid, big.id)
		big.drain.add(p)
	}
	big.fill.merge(&small.fill.flowQueue)
	big.excessVolume += small.excessVolume
	small.excessVolume = 0
	for _, t := range sortedTypes(small.dissolved) {
		big.carryDissolved(t, small.dissolved[t])
	}
	for p := range small.mergeCandidates {
		big.mergeCandidates[p] = struct{}{}
	}
	for p := range small.removed {
		big.removed[p] = struct{}{}
	}
	big.splitStale = big.splitStale || small.splitStale
	big.aboveGround = big.aboveGround || small.aboveGround
	if big.lastDisplacedAt == voxel.NoPoint {
		big.lastDisplacedAt = small.lastDisplacedAt
	}

	small.drain = newDrainQueue()
	small.fill = newFillQueue()
	small.dissolved = map[voxel.FluidTypeID]voxel.GroupID{}
	small.mergeCandidates = map[voxel.Point]struct{}{}
	small.state = StateMerged
	delete(big.registry.unstable, small.id)
	big.registry.stats.Merged++
	big.markUnstable()
	return big
}

// carryDissolved records a dissolved group of type t. A second dissolved group of the
// same type folds its volume into the first.
func (g *Group) carryDissolved(t voxel.FluidTypeID, id voxel.GroupID) {
	cur, ok := g.dissolved[t]
	if !ok || cur == id {
		g.dissolved[t] = id
		return
	}
	kept := g.registry.groups[cur]
	extra := g.registry.groups[id]
	g.assertf(kept != nil && extra != nil, voxel.NoPoint, "dissolved group missing (%d, %d)", cur, id)
	kept.excessVolume += extra.excessVolume
	extra.excessVolume = 0
	extra.state = StateDestroyed
}

// mergeAdjacent merges with every other same-type group touching any of points and
// returns the group that survives.
func (g *Group) mergeAdjacent(points []voxel.Point) *Group {
	cur := g
	var nbuf [7]voxel.Point
	for _, p := range points {
		for _, q := range append(cur.grid.Neighbors(p, nbuf[:0]), p) {
			rec, ok := cur.grid.FluidGetData(q, cur.fluid)
			if !ok || rec.Group == voxel.NoGroup || rec.Group == cur.id {
				continue
			}
			other := cur.registry.groups[rec.Group]
			cur.assertf(other != nil && other.state == StateActive, q, "adjacent record owned by dead group %d", rec.Group)
			cur = cur.merge(other)
		}
	}
	return cur
}

func sortedTypes(m map[voxel.FluidTypeID]voxel.GroupID) []voxel.FluidTypeID {
	out := make([]voxel.FluidTypeID, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedSet(m map[voxel.Point]struct{}) []voxel.Point {
	out := make([]voxel.Point, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// validate checks that every member's record points back at this group.
func (g *Group) validate() {
	if g.state != StateActive {
		return
	}
	for _, p := range g.drain.points() {
		rec, ok := g.grid.FluidGetData(p, g.fluid)
		g.assertf(ok, p, "member without fluid record")
		g.assertf(rec.Group == g.id, p, "member owned by group %d", rec.Group)
		g.assertf(rec.Volume > 0, p, "member with zero volume")
	}
}
