package voxel

import "fmt"

type PointFluids struct {
	Point   Point
	Records []FluidRecord
}

type PointMist struct {
	Point Point
	Mist  Mist
}

type PointFrozen struct {
	Point Point
	Type  FluidTypeID
}

// Layers is a detached copy of the grid state, used by snapshots.
type Layers struct {
	Size     Vec3i
	Capacity Volume
	Solid    []Volume
	Fluids   []PointFluids
	Mist     []PointMist
	Frozen   []PointFrozen
}

func (g *Grid) Export() Layers {
	l := Layers{
		Size:     g.size,
		Capacity: g.capacity,
		Solid:    append([]Volume(nil), g.solid...),
	}
	for p, recs := range g.fluids {
		if len(recs) == 0 {
			continue
		}
		l.Fluids = append(l.Fluids, PointFluids{Point: Point(p), Records: append([]FluidRecord(nil), recs...)})
	}
	for _, p := range sortedPoints(g.mist) {
		l.Mist = append(l.Mist, PointMist{Point: p, Mist: g.mist[p]})
	}
	for _, p := range sortedPoints(g.frozen) {
		l.Frozen = append(l.Frozen, PointFrozen{Point: p, Type: g.frozen[p]})
	}
	return l
}

// Import rebuilds a grid from exported layers. Group relations in the records are
// cleared; the fluid registry re-links them when it imports its own state.
func Import(l Layers, types []FluidType) (*Grid, error) {
	g, err := New(l.Size, l.Capacity, types)
	if err != nil {
		return nil, err
	}
	if len(l.Solid) != len(g.solid) {
		return nil, fmt.Errorf("solid layer length mismatch: got %d want %d", len(l.Solid), len(g.solid))
	}
	copy(g.solid, l.Solid)
	for _, pf := range l.Fluids {
		if int(pf.Point) < 0 || int(pf.Point) >= len(g.fluids) {
			return nil, fmt.Errorf("fluid record out of bounds: %d", pf.Point)
		}
		for _, r := range pf.Records {
			if int(r.Type) >= len(types) {
				return nil, fmt.Errorf("unknown fluid type %d at %v", r.Type, g.Coords(pf.Point))
			}
			g.FluidAdd(pf.Point, r.Volume, r.Type)
		}
	}
	for _, pm := range l.Mist {
		g.mist[pm.Point] = pm.Mist
	}
	for _, pf := range l.Frozen {
		g.frozen[pf.Point] = pf.Type
	}
	return g, nil
}
