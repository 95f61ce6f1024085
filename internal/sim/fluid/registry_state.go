package fluid

import (
	"fmt"

	"voxelfluid/internal/sim/voxel"
)

// State is the persisted form of a registry. Grid contents are stored separately; the
// point to group relations are re-linked from Points on import.
type State struct {
	NextID voxel.GroupID `json:"next_id"`
	Tick   uint64        `json:"tick"`
	Groups []GroupState  `json:"groups"`
	Stats  Stats         `json:"stats"`
}

type GroupState struct {
	ID              voxel.GroupID                       `json:"id"`
	Type            voxel.FluidTypeID                   `json:"type"`
	State           LifecycleState                      `json:"state"`
	Points          []voxel.Point                       `json:"points,omitempty"`
	Fill            []voxel.Point                       `json:"fill,omitempty"`
	Excess          int64                               `json:"excess"`
	Stable          bool                                `json:"stable"`
	AboveGround     bool                                `json:"above_ground"`
	Dissolved       map[voxel.FluidTypeID]voxel.GroupID `json:"dissolved,omitempty"`
	Removed         []voxel.Point                       `json:"removed,omitempty"`
	SplitStale      bool                                `json:"split_stale,omitempty"`
	LastDisplacedAt voxel.Point                         `json:"last_displaced_at"`
}

// Export captures every live group, dissolved ones included.
func (r *Registry) Export() State {
	s := State{NextID: r.nextID, Tick: r.tick, Stats: r.Stats()}
	for _, id := range r.ids() {
		g := r.groups[id]
		if g.state != StateActive && g.state != StateDissolved {
			continue
		}
		gs := GroupState{
			ID:              g.id,
			Type:            g.fluid,
			State:           g.state,
			Points:          g.drain.points(),
			Fill:            g.fill.points(),
			Excess:          g.excessVolume,
			Stable:          g.stable,
			AboveGround:     g.aboveGround,
			Removed:         sortedSet(g.removed),
			SplitStale:      g.splitStale,
			LastDisplacedAt: g.lastDisplacedAt,
		}
		if len(g.dissolved) > 0 {
			gs.Dissolved = g.Dissolved()
		}
		s.Groups = append(s.Groups, gs)
	}
	return s
}

// Import rebuilds a registry over grid, whose fluid records must already hold the
// volumes the state was exported with.
func Import(grid Grid, s State, opts Options) (*Registry, error) {
	r := NewRegistry(grid, opts)
	r.tick = s.Tick
	r.stats = s.Stats
	if s.NextID > r.nextID {
		r.nextID = s.NextID
	}
	n := voxel.Point(grid.PointCount())
	types := len(grid.FluidTypes())
	for _, gs := range s.Groups {
		if gs.ID == voxel.NoGroup || gs.ID >= r.nextID {
			return nil, fmt.Errorf("fluid: group id %d out of range (next %d)", gs.ID, r.nextID)
		}
		if _, dup := r.groups[gs.ID]; dup {
			return nil, fmt.Errorf("fluid: duplicate group %d", gs.ID)
		}
		if gs.State != StateActive && gs.State != StateDissolved {
			return nil, fmt.Errorf("fluid: group %d has terminal state %s", gs.ID, gs.State)
		}
		if int(gs.Type) >= types {
			return nil, fmt.Errorf("fluid: group %d has unknown fluid %d", gs.ID, gs.Type)
		}
		for t := range gs.Dissolved {
			if int(t) >= types {
				return nil, fmt.Errorf("fluid: group %d carries unknown fluid %d", gs.ID, t)
			}
		}
		g := newGroup(r, gs.ID, gs.Type)
		g.state = gs.State
		g.excessVolume = gs.Excess
		g.stable = gs.Stable
		g.aboveGround = gs.AboveGround
		g.splitStale = gs.SplitStale
		g.lastDisplacedAt = gs.LastDisplacedAt
		for t, id := range gs.Dissolved {
			g.dissolved[t] = id
		}
		for _, p := range gs.Removed {
			g.removed[p] = struct{}{}
		}
		for _, p := range gs.Points {
			if p < 0 || p >= n {
				return nil, fmt.Errorf("fluid: group %d point %d out of range", gs.ID, p)
			}
			rec, ok := grid.FluidGetData(p, gs.Type)
			if !ok || rec.Volume == 0 {
				return nil, fmt.Errorf("fluid: group %d point %d holds no fluid %d", gs.ID, p, gs.Type)
			}
			if rec.Group != voxel.NoGroup {
				return nil, fmt.Errorf("fluid: point %d fluid %d claimed by groups %d and %d", p, gs.Type, rec.Group, gs.ID)
			}
			grid.FluidSetGroup(p, gs.Type, gs.ID)
			g.drain.add(p)
		}
		for _, p := range gs.Fill {
			if p < 0 || p >= n {
				return nil, fmt.Errorf("fluid: group %d fill point %d out of range", gs.ID, p)
			}
			g.fill.add(p)
		}
		r.groups[gs.ID] = g
		if g.state == StateActive && !g.stable {
			r.unstable[g.id] = struct{}{}
		}
	}
	for _, g := range r.groups {
		for t, id := range g.dissolved {
			if d := r.groups[id]; d == nil || d.state != StateDissolved || d.fluid != t {
				return nil, fmt.Errorf("fluid: group %d carries unknown dissolved group %d", g.id, id)
			}
		}
	}
	for i := 0; i < grid.PointCount(); i++ {
		for _, rec := range grid.FluidRecords(voxel.Point(i)) {
			if rec.Group == voxel.NoGroup {
				return nil, fmt.Errorf("fluid: point %d holds fluid %d outside any group", i, rec.Type)
			}
		}
	}
	return r, nil
}

// Adopt groups every unowned fluid record on the grid, as after loading a scenario
// that wrote fluids straight into the grid.
func (r *Registry) Adopt() int {
	var adopted int
	for i := 0; i < r.grid.PointCount(); i++ {
		p := voxel.Point(i)
		for _, rec := range r.grid.FluidRecords(p) {
			if rec.Group != voxel.NoGroup {
				continue
			}
			g := r.largestAdjacent(p, rec.Type)
			if g == nil {
				g = r.createGroup(rec.Type)
			}
			g.addPoint(p, true)
			adopted++
		}
	}
	for i := 0; i < r.grid.PointCount(); i++ {
		if r.grid.FluidIsOverfull(voxel.Point(i)) {
			r.ResolveOverfull(voxel.Point(i))
		}
	}
	return adopted
}
