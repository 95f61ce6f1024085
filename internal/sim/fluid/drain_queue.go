package fluid

import "voxelfluid/internal/sim/voxel"

// drainQueue holds the group's member points. Highest and fullest points drain first.
type drainQueue struct {
	flowQueue
}

func newDrainQueue() drainQueue { return drainQueue{flowQueue: newFlowQueue(true)} }

func (q *drainQueue) initializeForStep(g Grid, t voxel.FluidTypeID) {
	q.entries = q.entries[:0]
	for p := range q.set {
		v := g.FluidVolumeOfTypeContains(p, t)
		if v == 0 {
			continue
		}
		q.entries = append(q.entries, queueEntry{
			point:     p,
			elevation: g.Elevation(p),
			level:     g.FluidLevelForType(p, t),
			capacity:  v,
		})
	}
	q.beginStep()
}
