package fluid

import (
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"voxelfluid/internal/sim/voxel"
)

type Options struct {
	// Workers bounds the goroutines used by a parallel read phase. 0 means GOMAXPROCS.
	Workers int
	// Validate runs the full ownership check at the end of every step.
	Validate bool
	Logger   *log.Logger
}

// Stats are cumulative counters plus the current group census.
type Stats struct {
	Tick       uint64 `json:"tick"`
	Groups     int    `json:"groups"`
	Unstable   int    `json:"unstable"`
	Created    uint64 `json:"created"`
	Merged     uint64 `json:"merged"`
	Split      uint64 `json:"split"`
	Dissolved  uint64 `json:"dissolved"`
	Reabsorbed uint64 `json:"reabsorbed"`
	Destroyed  uint64 `json:"destroyed"`
	Moved      uint64 `json:"moved"`
}

// Registry owns every fluid group of one area and advances them one tick at a time.
// It is not safe for concurrent use; DoStep fans out internally.
type Registry struct {
	grid   Grid
	opts   Options
	logger *log.Logger

	groups   map[voxel.GroupID]*Group
	nextID   voxel.GroupID
	tick     uint64
	unstable map[voxel.GroupID]struct{}

	stats Stats
}

func NewRegistry(grid Grid, opts Options) *Registry {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Registry{
		grid:     grid,
		opts:     opts,
		logger:   opts.Logger,
		groups:   map[voxel.GroupID]*Group{},
		nextID:   1,
		unstable: map[voxel.GroupID]struct{}{},
	}
}

func (r *Registry) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

func (r *Registry) Tick() uint64 { return r.tick }

// DoStep advances every unstable group by one tick. With parallel set the read phase
// runs on up to Options.Workers goroutines; every later phase runs on the caller's
// goroutine in group id order.
func (r *Registry) DoStep(parallel bool) {
	r.tick++
	r.stats.Tick = r.tick
	if len(r.unstable) == 0 {
		return
	}

	batch := r.snapshotUnstable()
	r.readAll(batch, parallel)

	for _, g := range batch {
		if g.state == StateDestroyed {
			r.drop(g)
		}
	}
	for _, g := range batch {
		g.writeStep()
	}
	for _, g := range batch {
		g.afterWriteStep()
	}
	r.dissolveSqueezed()

	for _, g := range batch {
		if g.state == StateMerged || g.state == StateDissolved || g.state == StateDestroyed {
			delete(r.unstable, g.id)
		}
	}
	for _, g := range r.snapshotUnstable() {
		g.reabsorbDissolved()
	}
	for _, g := range r.snapshotUnstable() {
		g.splitStep()
	}
	for _, g := range r.snapshotUnstable() {
		g.mergeStep()
	}
	r.collect()

	if r.opts.Validate {
		r.Validate()
	}
}

func (r *Registry) snapshotUnstable() []*Group {
	ids := make([]voxel.GroupID, 0, len(r.unstable))
	for id := range r.unstable {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*Group, 0, len(ids))
	for _, id := range ids {
		if g := r.groups[id]; g != nil && g.state == StateActive {
			out = append(out, g)
		}
	}
	return out
}

// readAll runs readStep over batch. A panic on a worker is re-raised on the calling
// goroutine once every worker has returned.
func (r *Registry) readAll(batch []*Group, parallel bool) {
	if !parallel || len(batch) < 2 {
		for _, g := range batch {
			g.readStep()
		}
		return
	}

	var (
		eg       errgroup.Group
		mu       sync.Mutex
		panicked any
	)
	eg.SetLimit(r.opts.Workers)
	for _, g := range batch {
		g := g
		eg.Go(func() error {
			defer func() {
				if v := recover(); v != nil {
					mu.Lock()
					if panicked == nil {
						panicked = v
					}
					mu.Unlock()
				}
			}()
			g.readStep()
			return nil
		})
	}
	_ = eg.Wait()
	if panicked != nil {
		panic(panicked)
	}
}

// dissolveSqueezed hands every group that lost its last point to a denser fluid, and
// has nowhere to go, to the group that displaced it.
func (r *Registry) dissolveSqueezed() {
	for _, g := range r.snapshotUnstable() {
		if !g.canDissolve() {
			continue
		}
		absorber := r.displacer(g)
		if absorber == nil {
			continue
		}
		r.logf("tick=%d group=%d (%s) dissolved into group=%d", r.tick, g.id, r.grid.FluidType(g.fluid).Name, absorber.id)
		g.dissolveInto(absorber)
	}
}

func (r *Registry) displacer(g *Group) *Group {
	for _, rec := range r.grid.FluidRecords(g.lastDisplacedAt) {
		if rec.Type == g.fluid || rec.Group == voxel.NoGroup {
			continue
		}
		if a := r.groups[rec.Group]; a != nil && a.state == StateActive {
			return a
		}
	}
	return nil
}

// collect destroys empty groups, drops tombstones from the arena and rebuilds the
// unstable set.
func (r *Registry) collect() {
	for _, id := range r.ids() {
		g := r.groups[id]
		if g.state == StateActive && g.drain.len() == 0 && g.excessVolume == 0 && len(g.dissolved) == 0 {
			g.state = StateDestroyed
		}
		switch g.state {
		case StateMerged:
			delete(r.groups, id)
			delete(r.unstable, id)
		case StateDestroyed:
			r.drop(g)
		case StateDissolved:
			delete(r.unstable, id)
		case StateActive:
			if g.stable {
				delete(r.unstable, id)
			} else {
				r.unstable[id] = struct{}{}
			}
		}
	}
	r.stats.Groups = 0
	for _, g := range r.groups {
		if g.state == StateActive {
			r.stats.Groups++
		}
	}
	r.stats.Unstable = len(r.unstable)
}

func (r *Registry) drop(g *Group) {
	g.state = StateDestroyed
	if _, ok := r.groups[g.id]; ok {
		r.stats.Destroyed++
	}
	delete(r.groups, g.id)
	delete(r.unstable, g.id)
}

func (r *Registry) ids() []voxel.GroupID {
	ids := make([]voxel.GroupID, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) createGroup(t voxel.FluidTypeID) *Group {
	id := r.nextID
	r.nextID++
	g := newGroup(r, id, t)
	r.groups[id] = g
	r.stats.Created++
	g.markUnstable()
	return g
}

// createSplit materialises a component cut off from its group as a new group.
func (r *Registry) createSplit(t voxel.FluidTypeID, s splitData) *Group {
	g := r.createGroup(t)
	for _, p := range s.members {
		g.claim(p)
	}
	g.fill.addAll(s.futureAdjacent)
	r.stats.Split++
	return g
}

// Group returns the group with the given id, tombstones included, or nil.
func (r *Registry) Group(id voxel.GroupID) *Group { return r.groups[id] }

// Groups returns the active groups in id order.
func (r *Registry) Groups() []*Group {
	out := make([]*Group, 0, len(r.groups))
	for _, id := range r.ids() {
		if g := r.groups[id]; g.state == StateActive {
			out = append(out, g)
		}
	}
	return out
}

// Unstable returns the ids of the groups the next DoStep will read.
func (r *Registry) Unstable() []voxel.GroupID {
	ids := make([]voxel.GroupID, 0, len(r.unstable))
	for id := range r.unstable {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) Stats() Stats {
	s := r.stats
	s.Unstable = len(r.unstable)
	return s
}

// TotalVolume is the amount of fluid t in the area: every record on the grid plus the
// excess carried by its groups, dissolved ones included.
func (r *Registry) TotalVolume(t voxel.FluidTypeID) int64 {
	var total int64
	for p := 0; p < r.grid.PointCount(); p++ {
		total += int64(r.grid.FluidVolumeOfTypeContains(voxel.Point(p), t))
	}
	for _, g := range r.groups {
		if g.fluid == t && (g.state == StateActive || g.state == StateDissolved) {
			total += g.excessVolume
		}
	}
	return total
}

// Validate panics with an *InvariantError when point ownership, group connectivity or
// group adjacency is inconsistent.
func (r *Registry) Validate() {
	for _, id := range r.ids() {
		g := r.groups[id]
		g.validate()
		if g.state != StateActive || g.drain.len() == 0 {
			continue
		}
		if comps := components(r.grid, g.drain.set); len(comps) > 1 {
			r.fail(id, comps[1].members[0], "group is split into %d components", len(comps))
		}
		for t, d := range g.dissolved {
			dg := r.groups[d]
			if dg == nil || dg.state != StateDissolved || dg.fluid != t {
				r.fail(id, voxel.NoPoint, "dissolved relation to %d is stale", d)
			}
		}
	}

	var nbuf [6]voxel.Point
	for i := 0; i < r.grid.PointCount(); i++ {
		p := voxel.Point(i)
		for _, rec := range r.grid.FluidRecords(p) {
			if rec.Group == voxel.NoGroup {
				r.fail(voxel.NoGroup, p, "fluid %d has no group", rec.Type)
			}
			g := r.groups[rec.Group]
			if g == nil || g.state != StateActive || !g.drain.contains(p) {
				r.fail(rec.Group, p, "record of fluid %d points at a group that does not hold it", rec.Type)
			}
			for _, q := range r.grid.Neighbors(p, nbuf[:0]) {
				if other, ok := r.grid.FluidGetData(q, rec.Type); ok && other.Group != rec.Group {
					r.fail(rec.Group, p, "adjacent group %d holds the same fluid at %d", other.Group, q)
				}
			}
		}
	}
}

func (r *Registry) String() string {
	return fmt.Sprintf("fluid.Registry{tick=%d groups=%d unstable=%d}", r.tick, len(r.groups), len(r.unstable))
}
