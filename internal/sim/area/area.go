package area

import (
	"fmt"
	"log"
	"sync/atomic"

	"voxelfluid/internal/persistence/snapshot"
	"voxelfluid/internal/sim/fluid"
	"voxelfluid/internal/sim/voxel"
)

// Area is one simulated region: a grid plus the fluid registry that owns its groups.
// All state must be accessed only from the area loop goroutine; other goroutines talk
// to it through the request channels.
type Area struct {
	cfg Config
	log *log.Logger

	grid *voxel.Grid
	reg  *fluid.Registry

	tick atomic.Uint64

	edits         chan EditRequest
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	admin         chan adminReq
	stop          chan struct{}
	stopOnce      atomic.Bool

	observers map[string]*observerClient

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value
}

// New wraps grid in an area. Fluid records already on the grid (as written by a
// scenario) are adopted into groups.
func New(cfg Config, grid *voxel.Grid, logger *log.Logger) (*Area, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if grid == nil {
		return nil, fmt.Errorf("area %s: nil grid", cfg.ID)
	}
	a := newArea(cfg, grid, logger)
	a.reg = fluid.NewRegistry(grid, a.registryOptions())
	if n := a.reg.Adopt(); n > 0 {
		a.logf("adopted %d fluid records into %d groups", n, len(a.reg.Groups()))
	}
	if cfg.Validate {
		a.reg.Validate()
	}
	return a, nil
}

func newArea(cfg Config, grid *voxel.Grid, logger *log.Logger) *Area {
	return &Area{
		cfg:           cfg,
		log:           logger,
		grid:          grid,
		edits:         make(chan EditRequest, cfg.EditQueueLimit),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 16),
		observerLeave: make(chan string, 16),
		admin:         make(chan adminReq, 16),
		stop:          make(chan struct{}),
		observers:     map[string]*observerClient{},
	}
}

func (a *Area) registryOptions() fluid.Options {
	return fluid.Options{
		Workers:  a.cfg.Workers,
		Validate: a.cfg.Validate,
		Logger:   a.log,
	}
}

func (a *Area) logf(format string, args ...any) {
	if a.log != nil {
		a.log.Printf("[area %s] "+format, append([]any{a.cfg.ID}, args...)...)
	}
}

func (a *Area) SetTickLogger(l TickLogger)                    { a.tickLogger = l }
func (a *Area) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { a.snapshotSink = ch }

func (a *Area) ObserverJoin() chan<- ObserverJoinRequest           { return a.observerJoin }
func (a *Area) ObserverSubscribe() chan<- ObserverSubscribeRequest { return a.observerSub }
func (a *Area) ObserverLeave() chan<- string                       { return a.observerLeave }

func (a *Area) ID() string          { return a.cfg.ID }
func (a *Area) Config() Config      { return a.cfg }
func (a *Area) CurrentTick() uint64 { return a.tick.Load() }

// Size and Capacity never change after New and are safe to read from any goroutine.
func (a *Area) Size() voxel.Vec3i      { return a.grid.Size() }
func (a *Area) Capacity() voxel.Volume { return a.grid.Capacity() }

// Grid and Registry expose the simulation state to tests and offline tools. They must
// not be used while Run is active.
func (a *Area) Grid() *voxel.Grid         { return a.grid }
func (a *Area) Registry() *fluid.Registry { return a.reg }

func (a *Area) FluidPalette() []string {
	types := a.grid.FluidTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.Name
	}
	return out
}

// Totals is the volume of each fluid in the area, group excess included and frozen
// points excluded.
func (a *Area) Totals() map[string]int64 {
	out := map[string]int64{}
	for _, t := range a.grid.FluidTypes() {
		out[t.Name] = a.reg.TotalVolume(t.ID)
	}
	return out
}
