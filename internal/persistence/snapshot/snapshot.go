package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	AreaID  string `json:"area_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Operational parameters (captured for deterministic replay/resume).
	TickRate           int    `json:"tick_rate_hz"`
	SnapshotEveryTicks int    `json:"snapshot_every_ticks,omitempty"`
	Size               [3]int `json:"size"`
	Capacity           uint32 `json:"capacity"`
	Temperature        int    `json:"temperature"`
	FreezeEveryTicks   int    `json:"freeze_every_ticks,omitempty"`
	FluidsDigest       string `json:"fluids_digest,omitempty"`

	Fluids []FluidTypeV1 `json:"fluids"`

	// Solid is the occupancy layer, run-length encoded in point order.
	Solid   string     `json:"solid"`
	Records []RecordV1 `json:"records"`
	Mist    []MistV1   `json:"mist,omitempty"`
	Frozen  []FrozenV1 `json:"frozen,omitempty"`

	Registry RegistryV1 `json:"registry"`
}

type FluidTypeV1 struct {
	Name          string `json:"name"`
	Density       int    `json:"density"`
	Viscosity     uint32 `json:"viscosity,omitempty"`
	MistDuration  int    `json:"mist_duration,omitempty"`
	MaxMistSpread int    `json:"max_mist_spread,omitempty"`
	FreezesInto   string `json:"freezes_into,omitempty"`
	FreezingPoint int    `json:"freezing_point,omitempty"`
}

// RecordV1 carries no group: the registry section re-links ownership on import.
type RecordV1 struct {
	Point  int32  `json:"p"`
	Type   uint8  `json:"t"`
	Volume uint32 `json:"v"`
}

type MistV1 struct {
	Point  int32 `json:"p"`
	Type   uint8 `json:"t"`
	Ticks  int   `json:"ticks"`
	Spread int   `json:"spread"`
}

type FrozenV1 struct {
	Point int32 `json:"p"`
	Type  uint8 `json:"t"`
}

type RegistryV1 struct {
	NextGroup uint32    `json:"next_group"`
	Tick      uint64    `json:"tick"`
	Groups    []GroupV1 `json:"groups"`
	Stats     StatsV1   `json:"stats"`
}

type GroupV1 struct {
	ID              uint32           `json:"id"`
	Type            uint8            `json:"type"`
	State           uint8            `json:"state"`
	Points          []int32          `json:"points,omitempty"`
	Fill            []int32          `json:"fill,omitempty"`
	Excess          int64            `json:"excess"`
	Stable          bool             `json:"stable"`
	AboveGround     bool             `json:"above_ground"`
	Dissolved       map[uint8]uint32 `json:"dissolved,omitempty"`
	Removed         []int32          `json:"removed,omitempty"`
	SplitStale      bool             `json:"split_stale,omitempty"`
	LastDisplacedAt int32            `json:"last_displaced_at"`
}

type StatsV1 struct {
	Created    uint64 `json:"created"`
	Merged     uint64 `json:"merged"`
	Split      uint64 `json:"split"`
	Dissolved  uint64 `json:"dissolved"`
	Reabsorbed uint64 `json:"reabsorbed"`
	Destroyed  uint64 `json:"destroyed"`
	Moved      uint64 `json:"moved"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the JSON header line, for listings.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
