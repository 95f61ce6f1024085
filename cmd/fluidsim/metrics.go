package main

import (
	"fmt"
	"net/http"
	"sort"

	"voxelfluid/internal/sim/area"
)

// metricsHandler writes the area metrics in the Prometheus text format.
func metricsHandler(a *area.Area, idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := a.Metrics()
		id := a.ID()
		tick := a.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		fmt.Fprintf(rw, "# HELP fluidsim_area_tick Current area tick.\n")
		fmt.Fprintf(rw, "# TYPE fluidsim_area_tick gauge\n")
		fmt.Fprintf(rw, "fluidsim_area_tick{area=%q} %d\n", id, tick)

		fmt.Fprintf(rw, "# HELP fluidsim_groups Fluid groups by stability.\n")
		fmt.Fprintf(rw, "# TYPE fluidsim_groups gauge\n")
		fmt.Fprintf(rw, "fluidsim_groups{area=%q,state=%q} %d\n", id, "active", m.Groups)
		fmt.Fprintf(rw, "fluidsim_groups{area=%q,state=%q} %d\n", id, "unstable", m.Unstable)

		fmt.Fprintf(rw, "# HELP fluidsim_group_events_total Group lifecycle events.\n")
		fmt.Fprintf(rw, "# TYPE fluidsim_group_events_total counter\n")
		for _, ev := range []struct {
			name string
			n    uint64
		}{
			{"created", m.Fluid.Created},
			{"merged", m.Fluid.Merged},
			{"split", m.Fluid.Split},
			{"dissolved", m.Fluid.Dissolved},
			{"reabsorbed", m.Fluid.Reabsorbed},
			{"destroyed", m.Fluid.Destroyed},
		} {
			fmt.Fprintf(rw, "fluidsim_group_events_total{area=%q,event=%q} %d\n", id, ev.name, ev.n)
		}

		fmt.Fprintf(rw, "# HELP fluidsim_fluid_volume Fluid volume by type (frozen excluded).\n")
		fmt.Fprintf(rw, "# TYPE fluidsim_fluid_volume gauge\n")
		for _, name := range sortedKeys(m.Totals) {
			fmt.Fprintf(rw, "fluidsim_fluid_volume{area=%q,fluid=%q} %d\n", id, name, m.Totals[name])
		}
		fmt.Fprintf(rw, "# HELP fluidsim_frozen_volume Fluid volume locked in frozen points.\n")
		fmt.Fprintf(rw, "# TYPE fluidsim_frozen_volume gauge\n")
		for _, name := range sortedKeys(m.FrozenVolume) {
			fmt.Fprintf(rw, "fluidsim_frozen_volume{area=%q,fluid=%q} %d\n", id, name, m.FrozenVolume[name])
		}

		fmt.Fprintf(rw, "# HELP fluidsim_mist_points Points holding mist.\n")
		fmt.Fprintf(rw, "# TYPE fluidsim_mist_points gauge\n")
		fmt.Fprintf(rw, "fluidsim_mist_points{area=%q} %d\n", id, m.Mist)

		fmt.Fprintf(rw, "# HELP fluidsim_temperature Ambient temperature.\n")
		fmt.Fprintf(rw, "# TYPE fluidsim_temperature gauge\n")
		fmt.Fprintf(rw, "fluidsim_temperature{area=%q} %d\n", id, m.Temperature)

		fmt.Fprintf(rw, "# HELP fluidsim_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE fluidsim_queue_depth gauge\n")
		fmt.Fprintf(rw, "fluidsim_queue_depth{area=%q,queue=%q} %d\n", id, "edits", m.EditQueue)

		fmt.Fprintf(rw, "# HELP fluidsim_observers Connected observers.\n")
		fmt.Fprintf(rw, "# TYPE fluidsim_observers gauge\n")
		fmt.Fprintf(rw, "fluidsim_observers{area=%q} %d\n", id, m.Observers)

		fmt.Fprintf(rw, "# HELP fluidsim_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE fluidsim_step_ms gauge\n")
		fmt.Fprintf(rw, "fluidsim_step_ms{area=%q} %.3f\n", id, m.StepMS)

		if idx == nil {
			return
		}
		s := idx.Stats()
		fmt.Fprintf(rw, "# HELP fluidsim_index_queue_depth Index writer queue depth.\n")
		fmt.Fprintf(rw, "# TYPE fluidsim_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "fluidsim_index_queue_depth %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP fluidsim_index_dropped_total Index requests dropped because the writer fell behind.\n")
		fmt.Fprintf(rw, "# TYPE fluidsim_index_dropped_total counter\n")
		fmt.Fprintf(rw, "fluidsim_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
		fmt.Fprintf(rw, "fluidsim_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
		fmt.Fprintf(rw, "fluidsim_index_dropped_total{kind=%q} %d\n", "snapshot_state", s.DropSnapshotStateTotal)
	}
}

func sortedKeys(m map[string]int64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
