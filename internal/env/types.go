package env

import (
	"errors"
	"fmt"
)

const (
	ChunkShiftXZ = 4
	ChunkSizeXZ  = 1 << ChunkShiftXZ
	ChunkMaskXZ  = ChunkSizeXZ - 1
	ChunkHeight  = 64

	blocksPerChunk = ChunkSizeXZ * ChunkSizeXZ * ChunkHeight
)

var (
	ErrChunkNotLoaded = errors.New("chunk not loaded")
	ErrOutOfBounds    = errors.New("block position out of bounds")
)

const (
	BlockAir uint16 = iota
	BlockStone
	BlockDirt
	BlockGrass
	BlockSand
	BlockWater
	BlockGlass
	BlockLog
	BlockOre
)

// IsTranslucent reports blocks drawn in the second (blended) pass.
func IsTranslucent(b uint16) bool {
	return b == BlockWater || b == BlockGlass
}

func IsOpaque(b uint16) bool {
	return b != BlockAir && !IsTranslucent(b)
}

// UpdatePriority orders rebuild work. Lower values are more urgent.
type UpdatePriority int

const (
	PriorityRealtime UpdatePriority = iota
	PriorityVisible
	PriorityLoad
	PriorityBackground
)

func (p UpdatePriority) MoreUrgentThan(o UpdatePriority) bool { return p < o }

func (p UpdatePriority) String() string {
	switch p {
	case PriorityRealtime:
		return "REALTIME"
	case PriorityVisible:
		return "VISIBLE"
	case PriorityLoad:
		return "LOAD"
	case PriorityBackground:
		return "BACKGROUND"
	default:
		return fmt.Sprintf("PRIORITY(%d)", int(p))
	}
}

type ChunkKey struct {
	CX int
	CZ int
}

// Chunk is a 16x16 column of voxels, ChunkHeight blocks tall.
type Chunk struct {
	CX, CZ int
	Blocks []uint16 // len = 16*16*ChunkHeight, YZX order

	loaded bool
}

func NewChunk(cx, cz int) *Chunk {
	return &Chunk{
		CX:     cx,
		CZ:     cz,
		Blocks: make([]uint16, blocksPerChunk),
	}
}

func (c *Chunk) Key() ChunkKey { return ChunkKey{CX: c.CX, CZ: c.CZ} }

func (c *Chunk) HasLoaded() bool { return c.loaded }

// Origin returns the world coordinates of the chunk's minimum corner.
func (c *Chunk) Origin() (x, z int) {
	return c.CX << ChunkShiftXZ, c.CZ << ChunkShiftXZ
}

func index(lx, y, lz int) int {
	return lx + lz*ChunkSizeXZ + y*ChunkSizeXZ*ChunkSizeXZ
}

func (c *Chunk) Get(lx, y, lz int) uint16 {
	return c.Blocks[index(lx, y, lz)]
}

// Set stores b and reports whether the block changed.
func (c *Chunk) Set(lx, y, lz int, b uint16) bool {
	i := index(lx, y, lz)
	if c.Blocks[i] == b {
		return false
	}
	c.Blocks[i] = b
	return true
}

// Observer receives chunk lifecycle and block invalidation events.
type Observer interface {
	ChunkLoaded(c *Chunk)
	ChunkEnteredView(c *Chunk)
	ChunkLeftView(c *Chunk)
	InvalidateBlock(x, y, z int, priority UpdatePriority)
	InvalidateBlockRegion(minX, minY, minZ, maxX, maxY, maxZ int, priority UpdatePriority)
}

type observerList []Observer

func (l *observerList) add(o Observer) {
	for _, e := range *l {
		if e == o {
			return
		}
	}
	*l = append(*l, o)
}

func (l *observerList) remove(o Observer) {
	for i, e := range *l {
		if e == o {
			*l = append((*l)[:i:i], (*l)[i+1:]...)
			return
		}
	}
}

// snapshot lets callbacks add or remove observers while being notified.
func (l observerList) snapshot() []Observer {
	out := make([]Observer, len(l))
	copy(out, l)
	return out
}
