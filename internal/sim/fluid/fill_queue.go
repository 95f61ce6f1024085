package fluid

import "voxelfluid/internal/sim/voxel"

// fillQueue holds the member points plus every neighbouring point fluid could ever
// enter. Lowest and emptiest points fill first.
type fillQueue struct {
	flowQueue
}

func newFillQueue() fillQueue { return fillQueue{flowQueue: newFlowQueue(false)} }

func (q *fillQueue) initializeForStep(g Grid, t voxel.FluidTypeID) {
	q.entries = q.entries[:0]
	for p := range q.set {
		if !g.FluidCanEnterEver(p) {
			continue
		}
		room := g.FluidVolumeOfTypeCanEnter(p, t)
		if room == 0 {
			continue
		}
		q.entries = append(q.entries, queueEntry{
			point:     p,
			elevation: g.Elevation(p),
			level:     g.FluidLevelForType(p, t),
			capacity:  room,
		})
	}
	q.beginStep()
}
