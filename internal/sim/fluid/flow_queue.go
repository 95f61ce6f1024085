package fluid

import (
	"sort"

	"voxelfluid/internal/sim/voxel"
)

type queueEntry struct {
	point     voxel.Point
	elevation int
	// Occupancy of the point as seen by the group's fluid type, staged delta included.
	level voxel.Volume
	// Volume this entry can still give (drain) or take (fill) this step.
	capacity voxel.Volume
	delta    voxel.Volume
}

// flowQueue is the staging structure shared by the drain and fill queues: a point set
// plus, during a step, the ordered entries built from it. The front is the run
// entries[start:end] sharing the extremal (elevation, level) key.
type flowQueue struct {
	set      map[voxel.Point]struct{}
	entries  []queueEntry
	start    int
	end      int
	draining bool
	// closed is set once uneven deltas were recorded; the front may not move after.
	closed bool
}

func newFlowQueue(draining bool) flowQueue {
	return flowQueue{set: map[voxel.Point]struct{}{}, draining: draining}
}

func (q *flowQueue) add(p voxel.Point) { q.set[p] = struct{}{} }

func (q *flowQueue) addAll(points []voxel.Point) {
	for _, p := range points {
		q.set[p] = struct{}{}
	}
}

func (q *flowQueue) remove(p voxel.Point) { delete(q.set, p) }

func (q *flowQueue) removeAll(points []voxel.Point) {
	for _, p := range points {
		delete(q.set, p)
	}
}

func (q *flowQueue) contains(p voxel.Point) bool {
	_, ok := q.set[p]
	return ok
}

func (q *flowQueue) len() int { return len(q.set) }

// merge absorbs another queue's point set.
func (q *flowQueue) merge(o *flowQueue) {
	for p := range o.set {
		q.set[p] = struct{}{}
	}
}

// points returns the set in ascending order.
func (q *flowQueue) points() []voxel.Point {
	out := make([]voxel.Point, 0, len(q.set))
	for p := range q.set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (q *flowQueue) less(a, b queueEntry) bool {
	if a.elevation != b.elevation {
		if q.draining {
			return a.elevation > b.elevation
		}
		return a.elevation < b.elevation
	}
	if a.level != b.level {
		if q.draining {
			return a.level > b.level
		}
		return a.level < b.level
	}
	return a.point < b.point
}

func sameTier(a, b queueEntry) bool {
	return a.elevation == b.elevation && a.level == b.level
}

// beginStep sorts the freshly built entries and positions the front on the first tier.
func (q *flowQueue) beginStep() {
	sort.Slice(q.entries, func(i, j int) bool { return q.less(q.entries[i], q.entries[j]) })
	q.start, q.end = 0, 0
	q.closed = false
	q.extendFront()
}

func (q *flowQueue) extendFront() {
	if q.start >= len(q.entries) {
		q.end = q.start
		return
	}
	if q.end <= q.start {
		q.end = q.start + 1
	}
	head := q.entries[q.start]
	for q.end < len(q.entries) && sameTier(head, q.entries[q.end]) {
		q.end++
	}
}

func (q *flowQueue) empty() bool { return q.closed || q.start >= len(q.entries) }

func (q *flowQueue) frontSize() int { return q.end - q.start }

func (q *flowQueue) frontElevation() int { return q.entries[q.start].elevation }

func (q *flowQueue) frontLevel() voxel.Volume { return q.entries[q.start].level }

func (q *flowQueue) frontCapacityPerPoint() voxel.Volume {
	c := q.entries[q.start].capacity
	for i := q.start + 1; i < q.end; i++ {
		c = min(c, q.entries[i].capacity)
	}
	return c
}

// frontFlowTillNextStepPerPoint is how far the front can move before it reaches the
// next tier at the same elevation. ok is false when no such tier exists.
func (q *flowQueue) frontFlowTillNextStepPerPoint() (voxel.Volume, bool) {
	if q.end >= len(q.entries) {
		return 0, false
	}
	head, next := q.entries[q.start], q.entries[q.end]
	if head.elevation != next.elevation {
		return 0, false
	}
	if q.draining {
		return head.level - next.level, true
	}
	return next.level - head.level, true
}

// frontLimitPerPoint is the most a single uniform delta may move per front point.
func (q *flowQueue) frontLimitPerPoint() voxel.Volume {
	c := q.frontCapacityPerPoint()
	if f, ok := q.frontFlowTillNextStepPerPoint(); ok {
		c = min(c, f)
	}
	return c
}

// recordDelta stages v on every front entry, drops exhausted entries and widens the
// front when it reaches the next tier.
func (q *flowQueue) recordDelta(v voxel.Volume) {
	for i := q.start; i < q.end; i++ {
		e := &q.entries[i]
		e.delta += v
		e.capacity -= v
		if q.draining {
			e.level -= v
		} else {
			e.level += v
		}
	}
	for i := q.start; i < q.end; i++ {
		if q.entries[i].capacity == 0 {
			q.entries[i], q.entries[q.start] = q.entries[q.start], q.entries[i]
			q.start++
		}
	}
	q.extendFront()
}

// recordPartial stages one unit on each of the first n front entries (by point) that
// still have room and returns how many units were staged. The queue is closed after.
func (q *flowQueue) recordPartial(n int64) int64 {
	if q.start >= len(q.entries) || n <= 0 {
		q.closed = true
		return 0
	}
	front := q.entries[q.start:q.end]
	sort.Slice(front, func(i, j int) bool { return front[i].point < front[j].point })
	var staged int64
	for i := range front {
		if staged == n {
			break
		}
		e := &front[i]
		if e.capacity == 0 {
			continue
		}
		e.delta++
		e.capacity--
		if q.draining {
			e.level--
		} else {
			e.level++
		}
		staged++
	}
	q.closed = true
	return staged
}

// deltas returns the staged non-zero deltas.
func (q *flowQueue) deltas() []queueEntry {
	var out []queueEntry
	for _, e := range q.entries {
		if e.delta > 0 {
			out = append(out, e)
		}
	}
	return out
}
