package voxel

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

const chunkEdge = 16

type chunkDigest struct {
	dirty bool
	hash  [32]byte
}

// Grid is a fixed-size 3-D point space. All per-point state lives in flat slices so
// reads never mutate anything; fluid groups read it concurrently during the read phase.
type Grid struct {
	size     Vec3i
	capacity Volume
	types    []FluidType

	solid  []Volume
	fluids [][]FluidRecord
	mist   map[Point]Mist
	frozen map[Point]FluidTypeID

	chunksX, chunksY, chunksZ int
	chunks                    []chunkDigest
}

func New(size Vec3i, capacity Volume, types []FluidType) (*Grid, error) {
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return nil, fmt.Errorf("grid size must be positive: %v", size)
	}
	if capacity == 0 {
		return nil, fmt.Errorf("point capacity must be positive")
	}
	n := size.X * size.Y * size.Z
	if n > 1<<30 {
		return nil, fmt.Errorf("grid too large: %d points", n)
	}
	for i, t := range types {
		if int(t.ID) != i {
			return nil, fmt.Errorf("fluid type %q has id %d at index %d", t.Name, t.ID, i)
		}
	}
	g := &Grid{
		size:     size,
		capacity: capacity,
		types:    append([]FluidType(nil), types...),
		solid:    make([]Volume, n),
		fluids:   make([][]FluidRecord, n),
		mist:     map[Point]Mist{},
		frozen:   map[Point]FluidTypeID{},
		chunksX:  (size.X + chunkEdge - 1) / chunkEdge,
		chunksY:  (size.Y + chunkEdge - 1) / chunkEdge,
		chunksZ:  (size.Z + chunkEdge - 1) / chunkEdge,
	}
	g.chunks = make([]chunkDigest, g.chunksX*g.chunksY*g.chunksZ)
	for i := range g.chunks {
		g.chunks[i].dirty = true
	}
	return g, nil
}

func (g *Grid) Size() Vec3i      { return g.size }
func (g *Grid) Capacity() Volume { return g.capacity }
func (g *Grid) PointCount() int  { return len(g.solid) }

func (g *Grid) FluidTypes() []FluidType { return g.types }

func (g *Grid) FluidType(t FluidTypeID) FluidType {
	if int(t) >= len(g.types) {
		panic(fmt.Sprintf("voxel: unknown fluid type %d", t))
	}
	return g.types[t]
}

func (g *Grid) InBounds(v Vec3i) bool {
	return v.X >= 0 && v.X < g.size.X && v.Y >= 0 && v.Y < g.size.Y && v.Z >= 0 && v.Z < g.size.Z
}

// Index maps coordinates to a Point, or NoPoint when out of bounds.
func (g *Grid) Index(v Vec3i) Point {
	if !g.InBounds(v) {
		return NoPoint
	}
	return Point(v.X + v.Z*g.size.X + v.Y*g.size.X*g.size.Z)
}

func (g *Grid) Coords(p Point) Vec3i {
	i := int(p)
	layer := g.size.X * g.size.Z
	y := i / layer
	r := i % layer
	return Vec3i{X: r % g.size.X, Y: y, Z: r / g.size.X}
}

func (g *Grid) Elevation(p Point) int {
	return int(p) / (g.size.X * g.size.Z)
}

func (g *Grid) Above(p Point) Point {
	return g.Index(g.Coords(p).Add(Vec3i{Y: 1}))
}

// Fixed neighbour order (down first, up last) keeps every traversal deterministic.
var neighborDirs = [6]Vec3i{{Y: -1}, {X: -1}, {X: 1}, {Z: -1}, {Z: 1}, {Y: 1}}

// Neighbors appends the in-bounds face neighbours of p to buf.
func (g *Grid) Neighbors(p Point, buf []Point) []Point {
	c := g.Coords(p)
	for _, d := range neighborDirs {
		if q := g.Index(c.Add(d)); q != NoPoint {
			buf = append(buf, q)
		}
	}
	return buf
}

func (g *Grid) Solid(p Point) Volume { return g.solid[p] }

// SetSolid sets the solid occupancy of p. Callers owning fluid groups must notify them
// afterwards; the grid only stores the value.
func (g *Grid) SetSolid(p Point, v Volume) {
	if v > g.capacity {
		v = g.capacity
	}
	if g.solid[p] == v {
		return
	}
	g.solid[p] = v
	g.markDirty(p)
}

func (g *Grid) IsSolid(p Point) bool { return g.solid[p] >= g.capacity }

// IsExposedToSky reports whether no fully solid point sits anywhere above p. Frozen
// fluid does not count as a roof.
func (g *Grid) IsExposedToSky(p Point) bool {
	layer := Point(g.size.X * g.size.Z)
	for q := p + layer; int(q) < len(g.solid); q += layer {
		if g.solid[q] < g.capacity {
			continue
		}
		if _, ice := g.frozen[q]; !ice {
			return false
		}
	}
	return true
}

// QueryPointsWithCondition returns the members of points satisfying pred, in input order.
func (g *Grid) QueryPointsWithCondition(points []Point, pred func(Point) bool) []Point {
	var out []Point
	for _, p := range points {
		if pred(p) {
			out = append(out, p)
		}
	}
	return out
}

// QueryCuboidWithCondition returns points inside c (clipped to the grid) satisfying
// pred, ordered by ascending Point.
func (g *Grid) QueryCuboidWithCondition(c Cuboid, pred func(Point) bool) []Point {
	c, ok := c.Intersect(Cuboid{Max: Vec3i{X: g.size.X - 1, Y: g.size.Y - 1, Z: g.size.Z - 1}})
	if !ok {
		return nil
	}
	var out []Point
	for y := c.Min.Y; y <= c.Max.Y; y++ {
		for z := c.Min.Z; z <= c.Max.Z; z++ {
			for x := c.Min.X; x <= c.Max.X; x++ {
				p := g.Index(Vec3i{X: x, Y: y, Z: z})
				if pred == nil || pred(p) {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

func (g *Grid) chunkIndex(p Point) int {
	c := g.Coords(p)
	return c.X/chunkEdge + (c.Z/chunkEdge)*g.chunksX + (c.Y/chunkEdge)*g.chunksX*g.chunksZ
}

func (g *Grid) markDirty(p Point) {
	g.chunks[g.chunkIndex(p)].dirty = true
}

// Digest hashes the full grid state. Per-chunk hashes are cached until the chunk is
// touched again.
func (g *Grid) Digest() [32]byte {
	h := sha256.New()
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(g.capacity))
	h.Write(tmp[:])
	for i := range g.chunks {
		d := g.chunkDigest(i)
		h.Write(d[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (g *Grid) chunkDigest(i int) [32]byte {
	ch := &g.chunks[i]
	if !ch.dirty && ch.hash != ([32]byte{}) {
		return ch.hash
	}
	cx := i % g.chunksX
	cz := (i / g.chunksX) % g.chunksZ
	cy := i / (g.chunksX * g.chunksZ)
	box := Cuboid{
		Min: Vec3i{X: cx * chunkEdge, Y: cy * chunkEdge, Z: cz * chunkEdge},
		Max: Vec3i{X: cx*chunkEdge + chunkEdge - 1, Y: cy*chunkEdge + chunkEdge - 1, Z: cz*chunkEdge + chunkEdge - 1},
	}
	h := sha256.New()
	var tmp [4]byte
	for _, p := range g.QueryCuboidWithCondition(box, nil) {
		binary.LittleEndian.PutUint32(tmp[:], uint32(g.solid[p]))
		h.Write(tmp[:])
		for _, r := range g.fluids[p] {
			h.Write([]byte{byte(r.Type)})
			binary.LittleEndian.PutUint32(tmp[:], uint32(r.Volume))
			h.Write(tmp[:])
			binary.LittleEndian.PutUint32(tmp[:], uint32(r.Group))
			h.Write(tmp[:])
		}
		if m, ok := g.mist[p]; ok {
			h.Write([]byte{'m', byte(m.Type), byte(m.Ticks), byte(m.Spread)})
		}
		if t, ok := g.frozen[p]; ok {
			h.Write([]byte{'f', byte(t)})
		}
		h.Write([]byte{0xff})
	}
	copy(ch.hash[:], h.Sum(nil))
	ch.dirty = false
	return ch.hash
}

func sortedPoints[V any](m map[Point]V) []Point {
	out := make([]Point, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
