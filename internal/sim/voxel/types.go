package voxel

import "fmt"

// Point is a dense index into a Grid. Points are plain values; the grid owns all
// per-point state.
type Point int32

const NoPoint Point = -1

type Vec3i struct {
	X int
	Y int // elevation
	Z int
}

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3i) String() string { return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z) }

// Volume is a capacity-bounded amount of fluid or solid occupancy at one point.
type Volume uint32

type FluidTypeID uint8

// GroupID is an arena handle for a fluid group. Zero means "no group".
type GroupID uint32

const NoGroup GroupID = 0

type FluidType struct {
	ID   FluidTypeID
	Name string

	// Denser fluids displace lighter ones from overfull points.
	Density int
	// Viscosity caps the volume a group may move per tick. 0 disables the cap.
	Viscosity Volume

	MistDuration  int
	MaxMistSpread int

	FreezesInto   string
	FreezingPoint int
}

func (t FluidType) CanFreeze() bool { return t.FreezesInto != "" }

type FluidRecord struct {
	Type   FluidTypeID
	Volume Volume
	Group  GroupID
}

// Displacement describes fluid pushed out of an overfull point.
type Displacement struct {
	Type    FluidTypeID
	Group   GroupID
	Volume  Volume
	Emptied bool
}

type Mist struct {
	Type   FluidTypeID
	Ticks  int
	Spread int
}

// Cuboid is an inclusive axis-aligned box.
type Cuboid struct {
	Min Vec3i
	Max Vec3i
}

func NewCuboid(a, b Vec3i) Cuboid {
	c := Cuboid{Min: a, Max: b}
	if c.Min.X > c.Max.X {
		c.Min.X, c.Max.X = c.Max.X, c.Min.X
	}
	if c.Min.Y > c.Max.Y {
		c.Min.Y, c.Max.Y = c.Max.Y, c.Min.Y
	}
	if c.Min.Z > c.Max.Z {
		c.Min.Z, c.Max.Z = c.Max.Z, c.Min.Z
	}
	return c
}

func (c Cuboid) Contains(v Vec3i) bool {
	return v.X >= c.Min.X && v.X <= c.Max.X &&
		v.Y >= c.Min.Y && v.Y <= c.Max.Y &&
		v.Z >= c.Min.Z && v.Z <= c.Max.Z
}

func (c Cuboid) Size() int {
	return (c.Max.X - c.Min.X + 1) * (c.Max.Y - c.Min.Y + 1) * (c.Max.Z - c.Min.Z + 1)
}

// Intersect clips c to o. ok is false when they do not overlap.
func (c Cuboid) Intersect(o Cuboid) (Cuboid, bool) {
	out := Cuboid{
		Min: Vec3i{X: max(c.Min.X, o.Min.X), Y: max(c.Min.Y, o.Min.Y), Z: max(c.Min.Z, o.Min.Z)},
		Max: Vec3i{X: min(c.Max.X, o.Max.X), Y: min(c.Max.Y, o.Max.Y), Z: min(c.Max.Z, o.Max.Z)},
	}
	if out.Min.X > out.Max.X || out.Min.Y > out.Max.Y || out.Min.Z > out.Max.Z {
		return Cuboid{}, false
	}
	return out, true
}
