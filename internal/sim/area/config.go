package area

import (
	"fmt"

	"voxelfluid/internal/sim/tuning"
)

type Config struct {
	ID string

	TickRateHz         int
	SnapshotEveryTicks int
	EditQueueLimit     int

	ParallelRead bool
	Workers      int
	Validate     bool

	Temperature      int
	FreezeEveryTicks int

	// FluidsDigest identifies the fluid catalog the area was built with.
	FluidsDigest string
}

func ConfigFromTuning(id string, t tuning.Tuning, fluidsDigest string) Config {
	return Config{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		EditQueueLimit:     t.EditQueueLimit,
		ParallelRead:       t.Fluid.ParallelRead,
		Workers:            t.Fluid.Workers,
		Validate:           t.Fluid.Validate,
		Temperature:        t.Climate.AmbientTemperature,
		FreezeEveryTicks:   t.Climate.FreezeEveryTicks,
		FluidsDigest:       fluidsDigest,
	}
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "area"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 10
	}
	if c.EditQueueLimit <= 0 {
		c.EditQueueLimit = 1024
	}
}

func (c Config) validate() error {
	if c.SnapshotEveryTicks < 0 || c.FreezeEveryTicks < 0 {
		return fmt.Errorf("area %s: cadences must be >= 0", c.ID)
	}
	if c.Workers < 0 {
		return fmt.Errorf("area %s: workers must be >= 0", c.ID)
	}
	return nil
}
