package observerproto

// Version is the observer protocol version (separate from the edit protocol).
const Version = "1.0"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
	TypeSlice     = "SLICE"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Groups asks for one summary per active group in every TICK.
	Groups bool `json:"groups,omitempty"`

	// Optional: stream one horizontal layer of the grid. -1 disables the slice.
	SliceY     int `json:"slice_y"`
	SliceEvery int `json:"slice_every,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string     `json:"protocol_version"`
	AreaID          string     `json:"area_id"`
	Tick            uint64     `json:"tick"`
	AreaParams      AreaParams `json:"area_params"`
	FluidPalette    []string   `json:"fluid_palette"`
	FluidsDigest    string     `json:"fluids_digest,omitempty"`
}

type AreaParams struct {
	TickRateHz  int    `json:"tick_rate_hz"`
	Size        [3]int `json:"size"`
	Capacity    uint32 `json:"capacity"`
	Temperature int    `json:"temperature"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`

	Groups   int              `json:"groups"`
	Unstable int              `json:"unstable"`
	Totals   map[string]int64 `json:"totals"`
	Frozen   int              `json:"frozen"`
	Mist     int              `json:"mist"`

	GroupSummaries []GroupSummary `json:"group_summaries,omitempty"`
	Edits          []EditInfo     `json:"edits,omitempty"`
}

type GroupSummary struct {
	ID          uint32 `json:"id"`
	Fluid       string `json:"fluid"`
	Points      int    `json:"points"`
	Excess      int64  `json:"excess"`
	Stable      bool   `json:"stable"`
	AboveGround bool   `json:"above_ground"`
	Min         [3]int `json:"min"`
	Max         [3]int `json:"max"`
}

type EditInfo struct {
	Op     string `json:"op"`
	Pos    [3]int `json:"pos"`
	Fluid  string `json:"fluid,omitempty"`
	Volume uint32 `json:"volume"`
	Error  string `json:"error,omitempty"`
}

// Server -> Client. One horizontal layer of the grid.
// Encoding "RLE_U32" means: base64 of (value, run) uvarint pairs, x fastest then z,
// sx*sz values per layer. Fluids holds one layer per fluid in the palette that has
// any volume on the slice.
type SliceMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Tick            uint64            `json:"tick"`
	Y               int               `json:"y"`
	Encoding        string            `json:"encoding"`
	Solid           string            `json:"solid"`
	Fluids          map[string]string `json:"fluids"`
}
