package log

import (
	"testing"

	"voxelfluid/internal/sim/area"
)

func TestTickLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for tick := uint64(1); tick <= 3; tick++ {
		entry := area.TickLogEntry{
			Tick:   tick,
			Totals: map[string]int64{"WATER": 100},
			Edits:  []area.RecordedEdit{{Op: area.EditAddFluid, Pos: [3]int{1, 2, 3}, Fluid: "WATER", Volume: 5}},
			Digest: "d",
		}
		if err := l.WriteTick(entry); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListTickFiles(dir)
	if err != nil || len(files) == 0 {
		t.Fatalf("list: %v %v", files, err)
	}
	var got []area.TickLogEntry
	for _, f := range files {
		if err := ReadTicks(f, func(e area.TickLogEntry) bool {
			got = append(got, e)
			return true
		}); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if len(got) != 3 || got[0].Tick != 1 || got[2].Tick != 3 {
		t.Fatalf("entries: %+v", got)
	}
	if got[1].Totals["WATER"] != 100 || len(got[1].Edits) != 1 || got[1].Edits[0].Pos != [3]int{1, 2, 3} {
		t.Fatalf("entry body lost: %+v", got[1])
	}
}

type countingLogger struct{ n int }

func (c *countingLogger) WriteTick(area.TickLogEntry) error {
	c.n++
	return nil
}

func TestMultiTickLoggerFansOut(t *testing.T) {
	a, b := &countingLogger{}, &countingLogger{}
	m := MultiTickLogger{a, nil, b}
	if err := m.WriteTick(area.TickLogEntry{Tick: 1}); err != nil {
		t.Fatal(err)
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("counts: %d %d", a.n, b.n)
	}
}
