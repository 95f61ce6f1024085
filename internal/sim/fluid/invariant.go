package fluid

import (
	"fmt"

	"voxelfluid/internal/sim/voxel"
)

// InvariantError is the panic value raised when the engine finds its own state
// inconsistent. It is never returned as an error: a broken ownership graph cannot be
// stepped any further.
type InvariantError struct {
	Tick  uint64
	Group voxel.GroupID
	Point voxel.Point
	Msg   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("fluid invariant violated at tick %d (group=%d point=%d): %s", e.Tick, e.Group, e.Point, e.Msg)
}

func (r *Registry) fail(id voxel.GroupID, p voxel.Point, format string, args ...any) {
	panic(&InvariantError{Tick: r.tick, Group: id, Point: p, Msg: fmt.Sprintf(format, args...)})
}

func (g *Group) assertf(cond bool, p voxel.Point, format string, args ...any) {
	if !cond {
		g.registry.fail(g.id, p, format, args...)
	}
}
