package protocol

// Edit ops.
const (
	OpAddFluid        = "ADD_FLUID"
	OpRemoveFluid     = "REMOVE_FLUID"
	OpRemoveFluidSync = "REMOVE_FLUID_SYNC"
	OpSetSolid        = "SET_SOLID"
)

// EDIT (client -> server)
type EditMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Op              string `json:"op"`
	Pos             [3]int `json:"pos"`
	Fluid           string `json:"fluid,omitempty"`
	Volume          uint32 `json:"volume"`
}

// EDIT_RESULT (server -> client)
type EditResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Tick            uint64 `json:"tick"`
	OK              bool   `json:"ok"`
	Moved           uint32 `json:"moved"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

func IsKnownOp(op string) bool {
	switch op {
	case OpAddFluid, OpRemoveFluid, OpRemoveFluidSync, OpSetSolid:
		return true
	}
	return false
}

// NeedsFluid reports whether op addresses a fluid type.
func NeedsFluid(op string) bool { return op != OpSetSolid }
