package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	persistlog "voxelfluid/internal/persistence/log"
	"voxelfluid/internal/persistence/snapshot"
	"voxelfluid/internal/sim/area"
	"voxelfluid/internal/sim/catalogs"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		areaDir   = flag.String("area_dir", "", "area data dir containing ticks/ticks-*.jsonl.zst (optional)")
		configDir = flag.String("configs", "./configs", "config directory")
		fromTick  = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		extra     = flag.Int("ticks", 0, "without -area_dir: step this many ticks with no edits and print digests")
		parallel  = flag.Bool("parallel", true, "run the fluid read phase in parallel")
		validate  = flag.Bool("validate", false, "check registry invariants after every tick")
		verbose   = flag.Bool("v", false, "log area events to stderr")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot v%d area=%s tick=%d size=%v capacity=%d fluids=%d records=%d groups=%d frozen=%d mist=%d\n",
		snap.Header.Version, snap.Header.AreaID, snap.Header.Tick, snap.Size, snap.Capacity,
		len(snap.Fluids), len(snap.Records), len(snap.Registry.Groups), len(snap.Frozen), len(snap.Mist))

	if *areaDir == "" && *extra <= 0 {
		return
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	logOut := io.Discard
	if *verbose {
		logOut = os.Stderr
	}
	cfg := area.Config{ParallelRead: *parallel, Validate: *validate}
	a, err := area.NewFromSnapshot(cfg, cats.Fluids.Types(), snap, log.New(logOut, "[replay] ", 0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}

	if *areaDir == "" {
		for i := 0; i < *extra; i++ {
			tick, digest := a.StepOnce(nil)
			m := a.Metrics()
			fmt.Printf("tick=%d groups=%d unstable=%d totals=%v digest=%s\n", tick, m.Groups, m.Unstable, m.Totals, digest)
		}
		return
	}

	files, err := persistlog.ListTickFiles(*areaDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick files found in", *areaDir)
		os.Exit(1)
	}

	checked, err := replay(a, files, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d)\n", checked, snap.Header.Tick)
}

var errStop = errors.New("stop")

// replay re-applies the logged edits on top of a and compares every digest from
// verifyFrom on. Entries at or before the snapshot tick are skipped.
func replay(a *area.Area, files []string, verifyFrom, toTick uint64) (checked uint64, err error) {
	startTick := a.CurrentTick()
	if verifyFrom == 0 {
		verifyFrom = startTick + 1
	}
	for _, path := range files {
		var stepErr error
		err := persistlog.ReadTicks(path, func(entry area.TickLogEntry) bool {
			if entry.Tick <= startTick {
				return true
			}
			if toTick != 0 && entry.Tick > toTick {
				stepErr = errStop
				return false
			}
			if want := a.CurrentTick() + 1; entry.Tick != want {
				stepErr = fmt.Errorf("tick gap: want=%d got=%d (file=%s)", want, entry.Tick, path)
				return false
			}

			edits := make([]area.Edit, 0, len(entry.Edits))
			for _, re := range entry.Edits {
				e, err := a.EditFromRecord(re)
				if err != nil {
					stepErr = fmt.Errorf("tick %d: %w", entry.Tick, err)
					return false
				}
				edits = append(edits, e)
			}
			a.SetTemperature(entry.Temperature)

			tick, gotDigest := a.StepOnce(edits)
			if tick != entry.Tick {
				stepErr = fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
				return false
			}
			if tick >= verifyFrom {
				checked++
				if gotDigest != entry.Digest {
					stepErr = fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
					return false
				}
			}
			return true
		})
		if err != nil {
			return checked, err
		}
		if errors.Is(stepErr, errStop) {
			return checked, nil
		}
		if stepErr != nil {
			return checked, stepErr
		}
	}
	return checked, nil
}
