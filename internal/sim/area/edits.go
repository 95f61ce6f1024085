package area

import (
	"errors"
	"fmt"

	"voxelfluid/internal/sim/voxel"
)

type EditOp string

const (
	EditAddFluid        EditOp = "ADD_FLUID"
	EditRemoveFluid     EditOp = "REMOVE_FLUID"
	EditRemoveFluidSync EditOp = "REMOVE_FLUID_SYNC"
	EditSetSolid        EditOp = "SET_SOLID"
)

var (
	ErrBusy         = errors.New("edit queue full")
	ErrStopped      = errors.New("area stopped")
	ErrOutOfBounds  = errors.New("position out of bounds")
	ErrUnknownFluid = errors.New("unknown fluid")
	ErrBadVolume    = errors.New("bad volume")
	ErrBlocked      = errors.New("point is solid")
	ErrFrozen       = errors.New("point is frozen")
	ErrUnknownOp    = errors.New("unknown edit op")
)

// Edit is an external perturbation applied at the next tick boundary.
type Edit struct {
	Op     EditOp
	Pos    voxel.Vec3i
	Fluid  voxel.FluidTypeID
	Volume voxel.Volume
}

type EditResult struct {
	Tick uint64
	// Moved is the volume added or removed. For REMOVE_FLUID it is the amount debited
	// from the owning group, at most what the group holds, which leaves the grid over
	// the next ticks.
	Moved voxel.Volume
	Err   error
}

type EditRequest struct {
	Edit Edit
	// Resp is optional; when set it must have room for one result.
	Resp chan EditResult
}

// Submit queues e for the next tick. The returned channel receives exactly one result.
func (a *Area) Submit(e Edit) (<-chan EditResult, error) {
	if a.stopOnce.Load() {
		return nil, ErrStopped
	}
	resp := make(chan EditResult, 1)
	select {
	case a.edits <- EditRequest{Edit: e, Resp: resp}:
		return resp, nil
	default:
		return nil, ErrBusy
	}
}

func (a *Area) applyEdits(tick uint64, reqs []EditRequest) []RecordedEdit {
	if len(reqs) == 0 {
		return nil
	}
	recorded := make([]RecordedEdit, 0, len(reqs))
	for _, req := range reqs {
		res := a.ApplyEdit(req.Edit)
		res.Tick = tick
		if req.Resp != nil {
			req.Resp <- res
		}
		rec := RecordedEdit{
			Op:     req.Edit.Op,
			Pos:    toArr(req.Edit.Pos),
			Volume: uint32(req.Edit.Volume),
			Moved:  uint32(res.Moved),
		}
		if req.Edit.Op != EditSetSolid {
			rec.Fluid = a.fluidName(req.Edit.Fluid)
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		recorded = append(recorded, rec)
	}
	return recorded
}

// ApplyEdit applies e immediately. Run calls it at tick boundaries; offline tools may
// call it directly between StepOnce calls.
func (a *Area) ApplyEdit(e Edit) EditResult {
	if !a.grid.InBounds(e.Pos) {
		return EditResult{Err: fmt.Errorf("%w: %v", ErrOutOfBounds, e.Pos)}
	}
	p := a.grid.Index(e.Pos)

	switch e.Op {
	case EditAddFluid, EditRemoveFluid, EditRemoveFluidSync:
		if int(e.Fluid) >= len(a.grid.FluidTypes()) {
			return EditResult{Err: fmt.Errorf("%w: %d", ErrUnknownFluid, e.Fluid)}
		}
		if e.Volume == 0 {
			return EditResult{Err: fmt.Errorf("%w: 0", ErrBadVolume)}
		}
	}

	switch e.Op {
	case EditAddFluid:
		if !a.grid.FluidCanEnterEver(p) {
			return EditResult{Err: fmt.Errorf("%w: %v", ErrBlocked, e.Pos)}
		}
		a.reg.AddFluid(p, e.Volume, e.Fluid)
		return EditResult{Moved: e.Volume}
	case EditRemoveFluid:
		return EditResult{Moved: a.reg.RemoveFluid(p, e.Volume, e.Fluid)}
	case EditRemoveFluidSync:
		return EditResult{Moved: a.reg.RemoveFluidSynchronous(p, e.Volume, e.Fluid)}
	case EditSetSolid:
		if e.Volume > a.grid.Capacity() {
			return EditResult{Err: fmt.Errorf("%w: %d exceeds capacity %d", ErrBadVolume, e.Volume, a.grid.Capacity())}
		}
		if _, frozen := a.grid.FrozenAt(p); frozen {
			return EditResult{Err: fmt.Errorf("%w: %v", ErrFrozen, e.Pos)}
		}
		a.grid.SetSolid(p, e.Volume)
		a.reg.OnSolidChanged(p)
		return EditResult{Moved: e.Volume}
	default:
		return EditResult{Err: fmt.Errorf("%w: %q", ErrUnknownOp, e.Op)}
	}
}

// EditFromRecord rebuilds the edit a tick log entry recorded, for replays.
func (a *Area) EditFromRecord(r RecordedEdit) (Edit, error) {
	e := Edit{
		Op:     r.Op,
		Pos:    voxel.Vec3i{X: r.Pos[0], Y: r.Pos[1], Z: r.Pos[2]},
		Volume: voxel.Volume(r.Volume),
	}
	if r.Fluid == "" {
		return e, nil
	}
	for _, t := range a.grid.FluidTypes() {
		if t.Name == r.Fluid {
			e.Fluid = t.ID
			return e, nil
		}
	}
	var id int
	if _, err := fmt.Sscanf(r.Fluid, "#%d", &id); err == nil && id >= 0 && id < 256 {
		e.Fluid = voxel.FluidTypeID(id)
		return e, nil
	}
	return e, fmt.Errorf("%w: %q", ErrUnknownFluid, r.Fluid)
}

// fluidName names t for logs; ids outside the catalog are written as "#<id>".
func (a *Area) fluidName(t voxel.FluidTypeID) string {
	if int(t) < len(a.grid.FluidTypes()) {
		return a.grid.FluidType(t).Name
	}
	return fmt.Sprintf("#%d", t)
}
