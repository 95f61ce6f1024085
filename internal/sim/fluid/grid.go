package fluid

import "voxelfluid/internal/sim/voxel"

// Grid is the point-level contract the fluid engine needs. *voxel.Grid satisfies it.
// Read methods must be free of side effects: they are called from several goroutines
// during the read phase.
type Grid interface {
	Capacity() voxel.Volume
	PointCount() int
	FluidTypes() []voxel.FluidType
	FluidType(t voxel.FluidTypeID) voxel.FluidType

	Elevation(p voxel.Point) int
	Above(p voxel.Point) voxel.Point
	Neighbors(p voxel.Point, buf []voxel.Point) []voxel.Point
	IsExposedToSky(p voxel.Point) bool

	FluidRecords(p voxel.Point) []voxel.FluidRecord
	FluidGetData(p voxel.Point, t voxel.FluidTypeID) (voxel.FluidRecord, bool)
	FluidContains(p voxel.Point, t voxel.FluidTypeID) bool
	FluidAny(p voxel.Point) bool
	FluidTotalVolume(p voxel.Point) voxel.Volume
	FluidVolumeOfTypeContains(p voxel.Point, t voxel.FluidTypeID) voxel.Volume
	FluidVolumeOfTypeCanEnter(p voxel.Point, t voxel.FluidTypeID) voxel.Volume
	FluidLevelForType(p voxel.Point, t voxel.FluidTypeID) voxel.Volume
	FluidCanEnterEver(p voxel.Point) bool
	FluidCanEnterCurrently(p voxel.Point, t voxel.FluidTypeID) bool
	FluidIsOverfull(p voxel.Point) bool

	FluidAdd(p voxel.Point, v voxel.Volume, t voxel.FluidTypeID)
	FluidRemove(p voxel.Point, v voxel.Volume, t voxel.FluidTypeID) voxel.Volume
	FluidSetGroup(p voxel.Point, t voxel.FluidTypeID, id voxel.GroupID)
	FluidUnsetGroup(p voxel.Point, t voxel.FluidTypeID)
	FluidDisplaceOverfull(p voxel.Point) []voxel.Displacement
	FluidSpawnMist(p voxel.Point, t voxel.FluidTypeID)

	QueryPointsWithCondition(points []voxel.Point, pred func(voxel.Point) bool) []voxel.Point
}

var _ Grid = (*voxel.Grid)(nil)
