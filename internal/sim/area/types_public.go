package area

import (
	"voxelfluid/internal/sim/fluid"
	"voxelfluid/internal/sim/voxel"
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick        uint64           `json:"tick"`
	Temperature int              `json:"temperature"`
	Edits       []RecordedEdit   `json:"edits,omitempty"`
	Frozen      int              `json:"frozen,omitempty"`
	Thawed      int              `json:"thawed,omitempty"`
	Groups      int              `json:"groups"`
	Unstable    int              `json:"unstable"`
	Totals      map[string]int64 `json:"totals"`
	Stats       fluid.Stats      `json:"stats"`
	Digest      string           `json:"digest"`
}

// RecordedEdit is an applied (or refused) edit as it went into the tick.
type RecordedEdit struct {
	Op     EditOp `json:"op"`
	Pos    [3]int `json:"pos"`
	Fluid  string `json:"fluid,omitempty"`
	Volume uint32 `json:"volume"`
	Moved  uint32 `json:"moved"`
	Error  string `json:"error,omitempty"`
}

func toArr(v voxel.Vec3i) [3]int { return [3]int{v.X, v.Y, v.Z} }
