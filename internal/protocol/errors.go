package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Area routing/state.
	ErrAreaBusy    = "E_AREA_BUSY"
	ErrAreaStopped = "E_AREA_STOPPED"

	// Edit layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrUnknownFluid  = "E_UNKNOWN_FLUID"
	ErrBlocked       = "E_BLOCKED"
	ErrTimeout       = "E_TIMEOUT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrAreaBusy:        {},
	ErrAreaStopped:     {},
	ErrBadRequest:      {},
	ErrInvalidTarget:   {},
	ErrUnknownFluid:    {},
	ErrBlocked:         {},
	ErrTimeout:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
