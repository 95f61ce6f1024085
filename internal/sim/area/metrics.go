package area

import "voxelfluid/internal/sim/fluid"

// AreaMetrics is a thread-safe read-only view of key area runtime signals.
// It is updated from the area loop goroutine and read from HTTP handlers/tests.
type AreaMetrics struct {
	Tick uint64 `json:"tick"`

	Groups       int `json:"groups"`
	Unstable     int `json:"unstable"`
	Observers    int `json:"observers"`
	EditQueue    int `json:"edit_queue"`
	EditsApplied int `json:"edits_applied"`
	Mist         int `json:"mist"`
	FrozenPoints int `json:"frozen_points"`
	Temperature  int `json:"temperature"`

	Totals       map[string]int64 `json:"totals"`
	FrozenVolume map[string]int64 `json:"frozen_volume,omitempty"`

	Fluid fluid.Stats `json:"fluid"`

	StepMS float64 `json:"step_ms"`
}

func (a *Area) Metrics() AreaMetrics {
	if a == nil {
		return AreaMetrics{}
	}
	v := a.metrics.Load()
	if v == nil {
		return AreaMetrics{}
	}
	m, ok := v.(AreaMetrics)
	if !ok {
		return AreaMetrics{}
	}
	return m
}
