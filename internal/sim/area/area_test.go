package area

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"voxelfluid/internal/persistence/snapshot"
	"voxelfluid/internal/sim/voxel"
)

const (
	water voxel.FluidTypeID = 0
	oil   voxel.FluidTypeID = 1
)

func testTypes() []voxel.FluidType {
	return []voxel.FluidType{
		{ID: water, Name: "WATER", Density: 100, MistDuration: 2, MaxMistSpread: 1, FreezesInto: "ICE", FreezingPoint: 0},
		{ID: oil, Name: "OIL", Density: 80},
	}
}

func newTestArea(t *testing.T, size voxel.Vec3i, cfg Config) *Area {
	t.Helper()
	grid, err := voxel.New(size, 100, testTypes())
	if err != nil {
		t.Fatalf("voxel.New: %v", err)
	}
	if cfg.ID == "" {
		cfg.ID = "test"
	}
	a, err := New(cfg, grid, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func at(x, y, z int) voxel.Vec3i { return voxel.Vec3i{X: x, Y: y, Z: z} }

func add(pos voxel.Vec3i, t voxel.FluidTypeID, v voxel.Volume) Edit {
	return Edit{Op: EditAddFluid, Pos: pos, Fluid: t, Volume: v}
}

func TestApplyEditErrors(t *testing.T) {
	a := newTestArea(t, at(3, 2, 1), Config{Temperature: 20})
	a.Grid().SetSolid(a.Grid().Index(at(2, 0, 0)), 100)
	a.Grid().Freeze(a.Grid().Index(at(1, 0, 0)), water)

	cases := []struct {
		name string
		edit Edit
		want error
	}{
		{"out of bounds", add(at(3, 0, 0), water, 10), ErrOutOfBounds},
		{"unknown fluid", add(at(0, 0, 0), 7, 10), ErrUnknownFluid},
		{"zero volume", add(at(0, 0, 0), water, 0), ErrBadVolume},
		{"solid", add(at(2, 0, 0), water, 10), ErrBlocked},
		{"solid over capacity", Edit{Op: EditSetSolid, Pos: at(0, 1, 0), Volume: 101}, ErrBadVolume},
		{"frozen", Edit{Op: EditSetSolid, Pos: at(1, 0, 0), Volume: 0}, ErrFrozen},
		{"unknown op", Edit{Op: "FLOOD", Pos: at(0, 0, 0)}, ErrUnknownOp},
	}
	for _, tc := range cases {
		res := a.ApplyEdit(tc.edit)
		if !errors.Is(res.Err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, res.Err, tc.want)
		}
		if res.Moved != 0 {
			t.Fatalf("%s: moved %d on error", tc.name, res.Moved)
		}
	}

	if res := a.ApplyEdit(add(at(0, 1, 0), water, 40)); res.Err != nil || res.Moved != 40 {
		t.Fatalf("add: %+v", res)
	}
	if res := a.ApplyEdit(Edit{Op: EditRemoveFluidSync, Pos: at(0, 1, 0), Fluid: water, Volume: 100}); res.Err != nil || res.Moved != 40 {
		t.Fatalf("sync remove should report what was there: %+v", res)
	}
}

func TestRemoveFluidReportsDebitedVolume(t *testing.T) {
	a := newTestArea(t, at(2, 1, 1), Config{Temperature: 20, Validate: true})
	a.ApplyEdit(add(at(0, 0, 0), water, 30))
	a.StepOnce(nil)
	res := a.ApplyEdit(Edit{Op: EditRemoveFluid, Pos: at(0, 0, 0), Fluid: water, Volume: 80})
	if res.Err != nil || res.Moved != 30 {
		t.Fatalf("remove: moved=%d err=%v want 30", res.Moved, res.Err)
	}
	for i := 0; i < 3; i++ {
		a.StepOnce(nil)
	}
	if got := a.Totals()["WATER"]; got != 0 {
		t.Fatalf("water left: %d", got)
	}
}

func TestSubmitBusyAndStopped(t *testing.T) {
	a := newTestArea(t, at(2, 1, 1), Config{EditQueueLimit: 1})
	first, err := a.Submit(add(at(0, 0, 0), water, 10))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := a.Submit(add(at(1, 0, 0), water, 10)); !errors.Is(err, ErrBusy) {
		t.Fatalf("second submit: got %v want ErrBusy", err)
	}

	a.Stop()
	a.Stop()
	if _, err := a.Submit(add(at(0, 0, 0), water, 10)); !errors.Is(err, ErrStopped) {
		t.Fatalf("submit after stop: got %v", err)
	}
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run after stop: %v", err)
	}
	select {
	case res := <-first:
		if !errors.Is(res.Err, ErrStopped) {
			t.Fatalf("pending edit: got %v want ErrStopped", res.Err)
		}
	default:
		t.Fatalf("pending edit was not answered")
	}
}

func TestRunAppliesSubmittedEdits(t *testing.T) {
	a := newTestArea(t, at(4, 2, 1), Config{TickRateHz: 100, Validate: true})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	ch, err := a.Submit(add(at(0, 1, 0), water, 100))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case res := <-ch:
		if res.Err != nil || res.Moved != 100 || res.Tick == 0 {
			t.Fatalf("result: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("edit not applied")
	}

	tctx, tcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer tcancel()
	if _, err := a.RequestTemperature(tctx, -3); err != nil {
		t.Fatalf("request temperature: %v", err)
	}
	if _, err := a.RequestSnapshot(tctx); err == nil {
		t.Fatalf("snapshot without a sink should fail")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
	if a.Temperature() != -3 {
		t.Fatalf("temperature: %d", a.Temperature())
	}
}

// basin builds two chambers: water poured on one side of a low wall, oil on the
// other, and a column of water dropped on top.
func basin(t *testing.T, parallel bool) *Area {
	t.Helper()
	a := newTestArea(t, at(8, 4, 3), Config{ParallelRead: parallel, Workers: 4, Validate: true, Temperature: 20})
	g := a.Grid()
	for z := 0; z < 3; z++ {
		g.SetSolid(g.Index(at(4, 0, z)), 100)
	}
	for x := 0; x < 3; x++ {
		a.ApplyEdit(add(at(x, 1, 0), water, 100))
		a.ApplyEdit(add(at(x+5, 1, 2), oil, 90))
	}
	a.ApplyEdit(add(at(6, 3, 1), water, 100))
	return a
}

func TestStepOnceParallelMatchesSequential(t *testing.T) {
	seq := basin(t, false)
	par := basin(t, true)
	for i := 0; i < 40; i++ {
		var edits []Edit
		if i == 10 {
			edits = []Edit{{Op: EditSetSolid, Pos: at(4, 0, 1), Volume: 0}}
		}
		if i == 20 {
			edits = []Edit{{Op: EditRemoveFluid, Pos: at(0, 0, 0), Fluid: water, Volume: 50}}
		}
		t1, d1 := seq.StepOnce(edits)
		t2, d2 := par.StepOnce(edits)
		if t1 != t2 || d1 != d2 {
			t.Fatalf("step %d: sequential tick=%d digest=%s, parallel tick=%d digest=%s", i, t1, d1, t2, d2)
		}
	}
	if seq.CurrentTick() != 40 {
		t.Fatalf("tick: %d", seq.CurrentTick())
	}
}

func TestFreezeThawConservesVolume(t *testing.T) {
	a := newTestArea(t, at(3, 2, 1), Config{Temperature: 20, FreezeEveryTicks: 1, Validate: true})
	for x := 0; x < 3; x++ {
		a.ApplyEdit(add(at(x, 0, 0), water, 100))
	}
	a.StepOnce(nil)

	total := func() int64 { return a.Totals()["WATER"] + a.FrozenVolume(water) }
	if total() != 300 {
		t.Fatalf("initial total: %d", total())
	}

	a.SetTemperature(-5)
	a.StepOnce(nil)
	if n := len(a.Grid().FrozenPoints()); n != 3 {
		t.Fatalf("frozen points: got %d want 3", n)
	}
	if a.Totals()["WATER"] != 0 || total() != 300 {
		t.Fatalf("after freeze: liquid=%d total=%d", a.Totals()["WATER"], total())
	}
	if res := a.ApplyEdit(add(at(0, 0, 0), water, 10)); !errors.Is(res.Err, ErrBlocked) {
		t.Fatalf("frozen point should block fluid: %v", res.Err)
	}
	m := a.Metrics()
	if m.FrozenPoints != 3 || m.FrozenVolume["WATER"] != 300 || m.Temperature != -5 {
		t.Fatalf("metrics: %+v", m)
	}

	a.SetTemperature(5)
	a.StepOnce(nil)
	if n := len(a.Grid().FrozenPoints()); n != 0 {
		t.Fatalf("frozen after thaw: %d", n)
	}
	for i := 0; i < 5; i++ {
		a.StepOnce(nil)
		if total() != 300 {
			t.Fatalf("tick %d: total %d", a.CurrentTick(), total())
		}
	}
}

func TestFreezeGrowsDownOneLayerPerPass(t *testing.T) {
	a := newTestArea(t, at(1, 3, 1), Config{Temperature: 20, FreezeEveryTicks: 1, Validate: true})
	a.ApplyEdit(add(at(0, 0, 0), water, 100))
	a.ApplyEdit(add(at(0, 1, 0), water, 100))
	a.StepOnce(nil)

	a.SetTemperature(-5)
	a.StepOnce(nil)
	frozen := a.Grid().FrozenPoints()
	if len(frozen) != 1 || frozen[0] != a.Grid().Index(at(0, 1, 0)) {
		t.Fatalf("frozen points after one cold pass: %v", frozen)
	}
	if got := a.Totals()["WATER"]; got != 100 {
		t.Fatalf("liquid under the ice: got %d want 100", got)
	}

	a.StepOnce(nil)
	if n := len(a.Grid().FrozenPoints()); n != 2 {
		t.Fatalf("frozen points after two cold passes: %d", n)
	}
	if total := a.Totals()["WATER"] + a.FrozenVolume(water); total != 200 {
		t.Fatalf("total: %d", total)
	}
}

func TestFreezeSkipsOilAndPartialPoints(t *testing.T) {
	a := newTestArea(t, at(2, 2, 1), Config{Temperature: -10, FreezeEveryTicks: 1})
	a.ApplyEdit(add(at(0, 0, 0), oil, 100))
	a.ApplyEdit(add(at(1, 0, 0), water, 60))
	a.ApplyEdit(add(at(1, 0, 0), oil, 40))
	for i := 0; i < 3; i++ {
		a.StepOnce(nil)
	}
	if n := len(a.Grid().FrozenPoints()); n != 0 {
		t.Fatalf("nothing should freeze, got %d", n)
	}
}

func TestSnapshotRoundTripKeepsDigest(t *testing.T) {
	a := basin(t, true)
	a.cfg.FreezeEveryTicks = 3
	for i := 0; i < 7; i++ {
		a.StepOnce(nil)
	}
	snap := a.ExportSnapshot()
	if snap.Header.Tick != 7 || snap.Size != [3]int{8, 4, 3} {
		t.Fatalf("header: %+v size=%v", snap.Header, snap.Size)
	}

	b, err := NewFromSnapshot(Config{Validate: true}, testTypes(), snap, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewFromSnapshot: %v", err)
	}
	if b.CurrentTick() != 7 || b.Config().FreezeEveryTicks != 3 || b.Config().ID != "test" {
		t.Fatalf("resumed config: tick=%d cfg=%+v", b.CurrentTick(), b.Config())
	}
	if a.stateDigest(7) != b.stateDigest(7) {
		t.Fatalf("digest differs right after import")
	}
	for i := 0; i < 15; i++ {
		var edits []Edit
		if i == 4 {
			edits = []Edit{add(at(2, 3, 2), water, 70)}
		}
		_, da := a.StepOnce(edits)
		_, db := b.StepOnce(edits)
		if da != db {
			t.Fatalf("step %d: digests diverged", i)
		}
	}
}

func TestNewFromSnapshotRejectsOtherCatalog(t *testing.T) {
	a := basin(t, false)
	snap := a.ExportSnapshot()
	types := testTypes()
	types[1].Density = 10
	if _, err := NewFromSnapshot(Config{}, types, snap, nil); err == nil {
		t.Fatalf("expected catalog mismatch")
	}
	if _, err := NewFromSnapshot(Config{}, types[:1], snap, nil); err == nil {
		t.Fatalf("expected catalog size mismatch")
	}
}

func TestEditFromRecord(t *testing.T) {
	a := newTestArea(t, at(2, 1, 1), Config{})
	e, err := a.EditFromRecord(RecordedEdit{Op: EditAddFluid, Pos: [3]int{1, 0, 0}, Fluid: "OIL", Volume: 5})
	if err != nil || e.Fluid != oil || e.Pos != at(1, 0, 0) || e.Volume != 5 {
		t.Fatalf("named fluid: %+v %v", e, err)
	}
	e, err = a.EditFromRecord(RecordedEdit{Op: EditAddFluid, Fluid: "#9", Volume: 5})
	if err != nil || e.Fluid != 9 {
		t.Fatalf("numbered fluid: %+v %v", e, err)
	}
	if _, err := a.EditFromRecord(RecordedEdit{Op: EditAddFluid, Fluid: "LAVA"}); !errors.Is(err, ErrUnknownFluid) {
		t.Fatalf("unknown fluid: %v", err)
	}

	// An edit rejected live must be rejected the same way when replayed.
	recorded := a.applyEdits(1, []EditRequest{{Edit: add(at(0, 0, 0), 9, 5)}})
	if len(recorded) != 1 || recorded[0].Fluid != "#9" || recorded[0].Error == "" {
		t.Fatalf("recorded: %+v", recorded)
	}
	replayed, err := a.EditFromRecord(recorded[0])
	if err != nil {
		t.Fatalf("replayed: %v", err)
	}
	if res := a.ApplyEdit(replayed); !errors.Is(res.Err, ErrUnknownFluid) {
		t.Fatalf("replayed result: %v", res.Err)
	}
}

type captureLogger struct{ entries []TickLogEntry }

func (c *captureLogger) WriteTick(e TickLogEntry) error {
	c.entries = append(c.entries, e)
	return nil
}

func TestTickLogEntries(t *testing.T) {
	a := newTestArea(t, at(3, 2, 1), Config{Temperature: 7})
	tl := &captureLogger{}
	a.SetTickLogger(tl)
	a.StepOnce([]Edit{add(at(0, 1, 0), water, 100), add(at(5, 0, 0), water, 1)})
	_, digest := a.StepOnce(nil)

	if len(tl.entries) != 2 {
		t.Fatalf("entries: %d", len(tl.entries))
	}
	first := tl.entries[0]
	if first.Tick != 1 || first.Temperature != 7 || len(first.Edits) != 2 || first.Totals["WATER"] != 100 {
		t.Fatalf("first entry: %+v", first)
	}
	if first.Edits[0].Error != "" || first.Edits[0].Moved != 100 || first.Edits[1].Error == "" {
		t.Fatalf("edits: %+v", first.Edits)
	}
	if tl.entries[1].Digest != digest || len(digest) != 64 {
		t.Fatalf("digest: %q vs %q", tl.entries[1].Digest, digest)
	}
}

func TestSnapshotSinkCadence(t *testing.T) {
	a := newTestArea(t, at(2, 2, 1), Config{SnapshotEveryTicks: 3})
	sink := make(chan snapshot.SnapshotV1, 4)
	a.SetSnapshotSink(sink)
	for i := 0; i < 7; i++ {
		a.StepOnce(nil)
	}
	if len(sink) != 2 {
		t.Fatalf("snapshots: got %d want 2", len(sink))
	}
	if s := <-sink; s.Header.Tick != 3 || s.Header.AreaID != "test" {
		t.Fatalf("first snapshot: %+v", s.Header)
	}
	if s := <-sink; s.Header.Tick != 6 {
		t.Fatalf("second snapshot: %+v", s.Header)
	}
}
