package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int   `yaml:"tick_rate_hz"`
	GridSize           []int `yaml:"grid_size"`
	PointCapacity      int   `yaml:"point_capacity"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks"`
	EditQueueLimit     int   `yaml:"edit_queue_limit"`

	Fluid   Fluid   `yaml:"fluid"`
	Climate Climate `yaml:"climate"`
}

type Fluid struct {
	ParallelRead bool `yaml:"parallel_read"`
	// Workers bounds the read phase goroutines; 0 means GOMAXPROCS.
	Workers  int  `yaml:"workers"`
	Validate bool `yaml:"validate"`
}

type Climate struct {
	// AmbientTemperature is compared against each fluid's freezing point.
	AmbientTemperature int `yaml:"ambient_temperature"`
	FreezeEveryTicks   int `yaml:"freeze_every_ticks"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         10,
		GridSize:           []int{32, 16, 32},
		PointCapacity:      100,
		SnapshotEveryTicks: 600,
		EditQueueLimit:     1024,
		Fluid:              Fluid{ParallelRead: true},
		Climate:            Climate{AmbientTemperature: 20, FreezeEveryTicks: 10},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if len(t.GridSize) != 3 {
		return fmt.Errorf("grid_size must have 3 entries, got %d", len(t.GridSize))
	}
	for _, n := range t.GridSize {
		if n <= 0 {
			return fmt.Errorf("grid_size entries must be > 0: %v", t.GridSize)
		}
	}
	if t.PointCapacity <= 0 {
		return fmt.Errorf("point_capacity must be > 0")
	}
	if t.Fluid.Workers < 0 {
		return fmt.Errorf("fluid.workers must be >= 0")
	}
	return nil
}
