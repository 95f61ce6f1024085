package area

import (
	"encoding/json"
	"testing"

	"voxelfluid/internal/observerproto"
	"voxelfluid/internal/sim/encoding"
)

func TestObserverReceivesTickAndSlice(t *testing.T) {
	a := newTestArea(t, at(3, 2, 2), Config{Temperature: 20})
	tickOut := make(chan []byte, 1)
	dataOut := make(chan []byte, 1)
	plainOut := make(chan []byte, 1)
	a.handleObserverJoin(ObserverJoinRequest{SessionID: "O1", TickOut: tickOut, DataOut: dataOut, Groups: true, SliceY: 0, SliceEvery: 2})
	a.handleObserverJoin(ObserverJoinRequest{SessionID: "O2", TickOut: plainOut, SliceY: -1})
	a.handleObserverJoin(ObserverJoinRequest{SessionID: "", TickOut: plainOut})
	if len(a.observers) != 2 {
		t.Fatalf("observers: %d", len(a.observers))
	}

	a.StepOnce([]Edit{add(at(1, 0, 1), water, 80)})

	var tm observerproto.TickMsg
	if err := json.Unmarshal(<-tickOut, &tm); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if tm.Type != observerproto.TypeTick || tm.Tick != 1 || tm.Totals["WATER"] != 80 || len(tm.Edits) != 1 {
		t.Fatalf("tick msg: %+v", tm)
	}
	if len(tm.GroupSummaries) != 1 || tm.GroupSummaries[0].Fluid != "WATER" || tm.GroupSummaries[0].Min[1] != 0 {
		t.Fatalf("group summaries: %+v", tm.GroupSummaries)
	}
	var plain observerproto.TickMsg
	if err := json.Unmarshal(<-plainOut, &plain); err != nil {
		t.Fatalf("plain tick: %v", err)
	}
	if plain.GroupSummaries != nil || plain.Digest != tm.Digest {
		t.Fatalf("plain observer should get the same tick without summaries: %+v", plain)
	}
	select {
	case <-dataOut:
		t.Fatalf("slice sent on tick 1 with slice_every=2")
	default:
	}

	a.StepOnce(nil)
	<-tickOut
	<-plainOut
	var sm observerproto.SliceMsg
	if err := json.Unmarshal(<-dataOut, &sm); err != nil {
		t.Fatalf("slice: %v", err)
	}
	if sm.Tick != 2 || sm.Y != 0 || sm.Encoding != "RLE_U32" {
		t.Fatalf("slice msg: %+v", sm)
	}
	layer, err := encoding.DecodeRLE(sm.Fluids["WATER"], 6)
	if err != nil {
		t.Fatalf("decode slice: %v", err)
	}
	var sum uint32
	for _, v := range layer {
		sum += v
	}
	if sum != 80 {
		t.Fatalf("slice water: got %d want 80 (%v)", sum, layer)
	}
	if _, ok := sm.Fluids["OIL"]; ok {
		t.Fatalf("slice should omit fluids absent from the layer")
	}

	a.handleObserverSubscribe(ObserverSubscribeRequest{SessionID: "O1", SliceY: -1})
	a.handleObserverLeave("O2")
	a.StepOnce(nil)
	var after observerproto.TickMsg
	if err := json.Unmarshal(<-tickOut, &after); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if after.GroupSummaries != nil {
		t.Fatalf("groups were unsubscribed")
	}
	select {
	case <-dataOut:
		t.Fatalf("slice after unsubscribe")
	case <-plainOut:
		t.Fatalf("tick after leave")
	default:
	}
}

func TestSendLatestKeepsNewest(t *testing.T) {
	ch := make(chan []byte, 1)
	sendLatest(ch, []byte("a"))
	sendLatest(ch, []byte("b"))
	if got := string(<-ch); got != "b" {
		t.Fatalf("got %q want b", got)
	}
}

func TestMetricsAfterStep(t *testing.T) {
	a := newTestArea(t, at(4, 2, 1), Config{Temperature: 3})
	if m := a.Metrics(); m.Tick != 0 {
		t.Fatalf("metrics before the first step: %+v", m)
	}
	a.StepOnce([]Edit{add(at(0, 1, 0), water, 100), add(at(3, 0, 0), oil, 50)})
	m := a.Metrics()
	if m.Tick != 1 || m.EditsApplied != 2 || m.Temperature != 3 {
		t.Fatalf("metrics: %+v", m)
	}
	if m.Totals["WATER"] != 100 || m.Totals["OIL"] != 50 {
		t.Fatalf("totals: %v", m.Totals)
	}
	if m.Fluid.Created < 2 || m.Groups < 1 {
		t.Fatalf("fluid stats: %+v", m.Fluid)
	}
	var nilArea *Area
	if nilArea.Metrics().Tick != 0 {
		t.Fatalf("nil area metrics")
	}
}
