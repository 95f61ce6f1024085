package area

import (
	"encoding/json"

	"voxelfluid/internal/observerproto"
	"voxelfluid/internal/sim/encoding"
	"voxelfluid/internal/sim/voxel"
)

// ObserverJoinRequest registers a read-only observer session that receives:
// - per-tick area state (TickOut)
// - optional layer slices (DataOut)
//
// All observer state is maintained by the area loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
	DataOut   chan []byte

	Groups     bool
	SliceY     int
	SliceEvery int
}

// ObserverSubscribeRequest updates an existing observer session subscription settings.
type ObserverSubscribeRequest struct {
	SessionID  string
	Groups     bool
	SliceY     int
	SliceEvery int
}

type observerClient struct {
	id      string
	tickOut chan []byte
	dataOut chan []byte

	groups     bool
	sliceY     int
	sliceEvery int
}

func (a *Area) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	a.observers[req.SessionID] = &observerClient{
		id:         req.SessionID,
		tickOut:    req.TickOut,
		dataOut:    req.DataOut,
		groups:     req.Groups,
		sliceY:     req.SliceY,
		sliceEvery: max(1, req.SliceEvery),
	}
}

func (a *Area) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := a.observers[req.SessionID]
	if c == nil {
		return
	}
	c.groups = req.Groups
	c.sliceY = req.SliceY
	c.sliceEvery = max(1, req.SliceEvery)
}

func (a *Area) handleObserverLeave(id string) {
	delete(a.observers, id)
}

func (a *Area) stepObservers(tick uint64, edits []RecordedEdit, digest string, totals map[string]int64) {
	if len(a.observers) == 0 {
		return
	}
	stats := a.reg.Stats()
	base := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Digest:          digest,
		Groups:          stats.Groups,
		Unstable:        stats.Unstable,
		Totals:          totals,
		Frozen:          len(a.grid.FrozenPoints()),
		Mist:            a.grid.MistCount(),
	}
	for _, e := range edits {
		base.Edits = append(base.Edits, observerproto.EditInfo{
			Op: string(e.Op), Pos: e.Pos, Fluid: e.Fluid, Volume: e.Volume, Error: e.Error,
		})
	}

	var plain, withGroups []byte
	slices := map[int][]byte{}
	for _, id := range sortedKeys(a.observers) {
		c := a.observers[id]
		var b []byte
		if c.groups {
			if withGroups == nil {
				msg := base
				msg.GroupSummaries = a.groupSummaries()
				withGroups, _ = json.Marshal(msg)
			}
			b = withGroups
		} else {
			if plain == nil {
				plain, _ = json.Marshal(base)
			}
			b = plain
		}
		sendLatest(c.tickOut, b)

		if c.dataOut == nil || c.sliceY < 0 || c.sliceY >= a.grid.Size().Y || tick%uint64(c.sliceEvery) != 0 {
			continue
		}
		sb, ok := slices[c.sliceY]
		if !ok {
			sb, _ = json.Marshal(a.buildSlice(tick, c.sliceY))
			slices[c.sliceY] = sb
		}
		sendLatest(c.dataOut, sb)
	}
}

func (a *Area) groupSummaries() []observerproto.GroupSummary {
	groups := a.reg.Groups()
	out := make([]observerproto.GroupSummary, 0, len(groups))
	for _, g := range groups {
		s := observerproto.GroupSummary{
			ID:          uint32(g.ID()),
			Fluid:       a.grid.FluidType(g.FluidType()).Name,
			Points:      g.Size(),
			Excess:      g.ExcessVolume(),
			Stable:      g.Stable(),
			AboveGround: g.AboveGround(),
		}
		for i, p := range g.Points() {
			c := a.grid.Coords(p)
			if i == 0 {
				s.Min, s.Max = toArr(c), toArr(c)
				continue
			}
			s.Min = [3]int{min(s.Min[0], c.X), min(s.Min[1], c.Y), min(s.Min[2], c.Z)}
			s.Max = [3]int{max(s.Max[0], c.X), max(s.Max[1], c.Y), max(s.Max[2], c.Z)}
		}
		out = append(out, s)
	}
	return out
}

func (a *Area) buildSlice(tick uint64, y int) observerproto.SliceMsg {
	size := a.grid.Size()
	layer := voxel.Cuboid{Min: voxel.Vec3i{Y: y}, Max: voxel.Vec3i{X: size.X - 1, Y: y, Z: size.Z - 1}}
	points := a.grid.QueryCuboidWithCondition(layer, nil)

	solid := make([]uint32, len(points))
	fluids := make([][]uint32, len(a.grid.FluidTypes()))
	for i, p := range points {
		solid[i] = uint32(a.grid.Solid(p))
		for _, rec := range a.grid.FluidRecords(p) {
			if fluids[rec.Type] == nil {
				fluids[rec.Type] = make([]uint32, len(points))
			}
			fluids[rec.Type][i] = uint32(rec.Volume)
		}
	}
	msg := observerproto.SliceMsg{
		Type:            observerproto.TypeSlice,
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Y:               y,
		Encoding:        "RLE_U32",
		Solid:           encoding.EncodeRLE(solid),
		Fluids:          map[string]string{},
	}
	for t, l := range fluids {
		if l != nil {
			msg.Fluids[a.grid.FluidType(voxel.FluidTypeID(t)).Name] = encoding.EncodeRLE(l)
		}
	}
	return msg
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
