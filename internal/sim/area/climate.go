package area

import (
	"voxelfluid/internal/sim/voxel"
)

// SetTemperature changes the ambient temperature used by the next freeze pass.
func (a *Area) SetTemperature(t int) { a.cfg.Temperature = t }

func (a *Area) Temperature() int { return a.cfg.Temperature }

// systemClimate freezes exposed surfaces of cold fluids and thaws frozen points that
// have warmed up. It runs every FreezeEveryTicks ticks, before the fluid step.
func (a *Area) systemClimate(tick uint64) (frozen, thawed int) {
	every := uint64(a.cfg.FreezeEveryTicks)
	if every == 0 || tick%every != 0 {
		return 0, 0
	}
	thawed = a.thaw()
	frozen = a.freeze()
	if frozen > 0 || thawed > 0 {
		a.logf("tick=%d climate froze=%d thawed=%d temperature=%d", tick, frozen, thawed, a.cfg.Temperature)
	}
	return frozen, thawed
}

// freeze turns every full, sky-exposed surface point of an above-ground group into
// solid when the fluid is colder than its freezing point. A point with fluid above it
// waits for that fluid to freeze first, so ice grows down one layer per pass. Only
// points holding nothing but the one fluid freeze, so a thaw can give back exactly one
// point of capacity.
func (a *Area) freeze() int {
	capacity := a.grid.Capacity()
	var targets []voxel.Point
	var types []voxel.FluidTypeID
	for _, g := range a.reg.Groups() {
		ft := a.grid.FluidType(g.FluidType())
		if !ft.CanFreeze() || a.cfg.Temperature >= ft.FreezingPoint || !g.AboveGround() {
			continue
		}
		for _, p := range g.Points() {
			if a.grid.Solid(p) != 0 || !a.grid.IsExposedToSky(p) {
				continue
			}
			if above := a.grid.Above(p); above != voxel.NoPoint && a.grid.FluidAny(above) {
				continue
			}
			if a.grid.FluidVolumeOfTypeContains(p, ft.ID) != capacity {
				continue
			}
			targets = append(targets, p)
			types = append(types, ft.ID)
		}
	}
	for i, p := range targets {
		if a.reg.RemoveFluidSynchronous(p, capacity, types[i]) != capacity {
			continue
		}
		a.grid.Freeze(p, types[i])
		a.reg.OnSolidChanged(p)
	}
	return len(targets)
}

func (a *Area) thaw() int {
	var n int
	for _, p := range a.grid.FrozenPoints() {
		t, _ := a.grid.FrozenAt(p)
		if a.cfg.Temperature < a.grid.FluidType(t).FreezingPoint {
			continue
		}
		a.grid.Thaw(p)
		a.reg.OnSolidChanged(p)
		a.reg.AddFluid(p, a.grid.Capacity(), t)
		n++
	}
	return n
}

// FrozenVolume is the volume of fluid t locked in frozen points.
func (a *Area) FrozenVolume(t voxel.FluidTypeID) int64 {
	var n int64
	for _, p := range a.grid.FrozenPoints() {
		if ft, _ := a.grid.FrozenAt(p); ft == t {
			n += int64(a.grid.Capacity())
		}
	}
	return n
}
