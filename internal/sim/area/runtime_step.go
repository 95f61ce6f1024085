package area

import (
	"time"

	"voxelfluid/internal/sim/voxel"
)

// step runs one tick: edits, climate, the fluid step, then mist. Tick numbers count
// completed steps, so the first step is tick 1.
func (a *Area) step(edits []EditRequest) {
	stepStart := time.Now()
	nowTick := a.tick.Load() + 1

	// Edits apply at the tick boundary in submission order.
	recorded := a.applyEdits(nowTick, edits)

	frozen, thawed := a.systemClimate(nowTick)

	a.reg.DoStep(a.cfg.ParallelRead)
	a.grid.TickMist()

	a.tick.Store(nowTick)

	digest := a.stateDigest(nowTick)
	totals := a.Totals()
	stats := a.reg.Stats()
	if a.tickLogger != nil {
		if err := a.tickLogger.WriteTick(TickLogEntry{
			Tick:        nowTick,
			Temperature: a.cfg.Temperature,
			Edits:       recorded,
			Frozen:      frozen,
			Thawed:      thawed,
			Groups:      stats.Groups,
			Unstable:    stats.Unstable,
			Totals:      totals,
			Stats:       stats,
			Digest:      digest,
		}); err != nil {
			a.logf("tick log: %v", err)
		}
	}

	a.stepObservers(nowTick, recorded, digest, totals)

	if a.snapshotSink != nil && a.cfg.SnapshotEveryTicks > 0 && nowTick%uint64(a.cfg.SnapshotEveryTicks) == 0 {
		snap := a.ExportSnapshot()
		select {
		case a.snapshotSink <- snap:
		default:
			// Drop snapshot if sink is backed up.
			a.logf("tick=%d snapshot dropped: sink busy", nowTick)
		}
	}

	var frozenPoints int
	frozenVolume := map[string]int64{}
	for _, t := range a.grid.FluidTypes() {
		if v := a.FrozenVolume(t.ID); v > 0 {
			frozenVolume[t.Name] = v
			frozenPoints += int(v / int64(a.grid.Capacity()))
		}
	}
	a.metrics.Store(AreaMetrics{
		Tick:         nowTick,
		Groups:       stats.Groups,
		Unstable:     stats.Unstable,
		Observers:    len(a.observers),
		EditQueue:    len(a.edits),
		EditsApplied: len(recorded),
		Mist:         a.grid.MistCount(),
		FrozenPoints: frozenPoints,
		Totals:       totals,
		FrozenVolume: frozenVolume,
		Fluid:        stats,
		StepMS:       float64(time.Since(stepStart).Microseconds()) / 1000.0,
		Temperature:  a.cfg.Temperature,
	})
}

// Volume reports the total volume at a coordinate, for tools and tests.
func (a *Area) Volume(v voxel.Vec3i, t voxel.FluidTypeID) voxel.Volume {
	p := a.grid.Index(v)
	if p == voxel.NoPoint {
		return 0
	}
	return a.grid.FluidVolumeOfTypeContains(p, t)
}
