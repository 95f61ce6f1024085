package area

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	"voxelfluid/internal/sim/voxel"
)

// stateDigest hashes everything that decides future ticks: the grid layers and every
// group's membership, queues and carried volume.
func (a *Area) stateDigest(tick uint64) string {
	h := sha256.New()
	writeU64(h, tick)
	writeI64(h, int64(a.cfg.Temperature))

	gd := a.grid.Digest()
	h.Write(gd[:])

	st := a.reg.Export()
	writeU64(h, uint64(st.NextID))
	writeU64(h, st.Tick)
	for _, g := range st.Groups {
		writeU64(h, uint64(g.ID))
		h.Write([]byte{byte(g.Type), byte(g.State), boolByte(g.Stable), boolByte(g.AboveGround), boolByte(g.SplitStale)})
		writeI64(h, g.Excess)
		writeI64(h, int64(g.LastDisplacedAt))
		writeU64(h, uint64(len(g.Points)))
		for _, p := range g.Points {
			writeI64(h, int64(p))
		}
		writeU64(h, uint64(len(g.Fill)))
		for _, p := range g.Fill {
			writeI64(h, int64(p))
		}
		types := make([]int, 0, len(g.Dissolved))
		for t := range g.Dissolved {
			types = append(types, int(t))
		}
		sort.Ints(types)
		for _, t := range types {
			h.Write([]byte{'d', byte(t)})
			writeU64(h, uint64(g.Dissolved[voxel.FluidTypeID(t)]))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeU64(h hash.Hash, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeI64(h hash.Hash, v int64) { writeU64(h, uint64(v)) }

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
