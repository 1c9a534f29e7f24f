package env

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"voxelview.ai/internal/env/gen"
)

type WorldGen struct {
	Seed       int64
	BaseHeight int
	Amplitude  int
	WaterLevel int

	OrePermille int
	LogPermille int
}

func DefaultWorldGen(seed int64) WorldGen {
	return WorldGen{
		Seed:        seed,
		BaseHeight:  18,
		Amplitude:   24,
		WaterLevel:  22,
		OrePermille: 400,
		LogPermille: 6,
	}
}

// Environment holds the lighting and fog colors used when drawing the map.
type Environment struct {
	SkyColor          mgl32.Vec3
	AmbientLightColor mgl32.Vec3
	SunLightDirection mgl32.Vec3
	SunLightColor     mgl32.Vec3
	FogColor          mgl32.Vec3
}

func DefaultEnvironment() Environment {
	return Environment{
		SkyColor:          mgl32.Vec3{0.53, 0.81, 0.92},
		AmbientLightColor: mgl32.Vec3{0.3, 0.3, 0.3},
		SunLightDirection: mgl32.Vec3{0.5, 1.0, 0.3}.Normalize(),
		SunLightColor:     mgl32.Vec3{1, 1, 0.9},
		FogColor:          mgl32.Vec3{0.53, 0.81, 0.92},
	}
}

// Map stores chunks and loads requested ones a few at a time.
type Map struct {
	Gen         WorldGen
	Environment Environment

	chunks  map[ChunkKey]*Chunk
	refs    map[ChunkKey]int
	pending []ChunkKey

	loadsPerUpdate int
	observers      observerList

	loadedTotal uint64
	editsTotal  uint64
}

func NewMap(g WorldGen, loadsPerUpdate int) *Map {
	if loadsPerUpdate <= 0 {
		loadsPerUpdate = 1
	}
	return &Map{
		Gen:            g,
		Environment:    DefaultEnvironment(),
		chunks:         map[ChunkKey]*Chunk{},
		refs:           map[ChunkKey]int{},
		loadsPerUpdate: loadsPerUpdate,
	}
}

func (m *Map) AddObserver(o Observer)    { m.observers.add(o) }
func (m *Map) RemoveObserver(o Observer) { m.observers.remove(o) }

// Chunk returns the stored chunk, loaded or not, or nil.
func (m *Map) Chunk(cx, cz int) *Chunk {
	return m.chunks[ChunkKey{CX: cx, CZ: cz}]
}

// RequestChunk returns the chunk for (cx,cz), creating an unloaded placeholder
// and queueing it for loading if needed. Each call takes a reference that is
// given back with ReleaseChunk.
func (m *Map) RequestChunk(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	m.refs[k]++
	if ch, ok := m.chunks[k]; ok {
		return ch
	}
	ch := NewChunk(cx, cz)
	m.chunks[k] = ch
	m.pending = append(m.pending, k)
	return ch
}

// ReleaseChunk drops a reference and evicts the chunk once nothing holds it.
func (m *Map) ReleaseChunk(cx, cz int) {
	k := ChunkKey{CX: cx, CZ: cz}
	n, ok := m.refs[k]
	if !ok {
		return
	}
	if n > 1 {
		m.refs[k] = n - 1
		return
	}
	delete(m.refs, k)
	delete(m.chunks, k)
	for i, p := range m.pending {
		if p == k {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
}

// Update loads up to the per-update budget of pending chunks and notifies
// observers. Returns the number of chunks loaded.
func (m *Map) Update() int {
	n := 0
	for len(m.pending) > 0 && n < m.loadsPerUpdate {
		k := m.pending[0]
		m.pending = m.pending[1:]
		ch := m.chunks[k]
		if ch == nil || ch.loaded {
			continue
		}
		m.load(ch)
		n++
	}
	return n
}

// LoadChunkNow loads (cx,cz) immediately, bypassing the budget.
func (m *Map) LoadChunkNow(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	ch := m.chunks[k]
	if ch == nil {
		ch = NewChunk(cx, cz)
		m.chunks[k] = ch
	}
	if !ch.loaded {
		for i, p := range m.pending {
			if p == k {
				m.pending = append(m.pending[:i], m.pending[i+1:]...)
				break
			}
		}
		m.load(ch)
	}
	return ch
}

func (m *Map) load(ch *Chunk) {
	m.GenerateChunk(ch)
	ch.loaded = true
	m.loadedTotal++
	for _, o := range m.observers.snapshot() {
		o.ChunkLoaded(ch)
	}
}

func (m *Map) PendingCount() int { return len(m.pending) }

// ChunkCount counts stored chunks, loaded or not.
func (m *Map) ChunkCount() int { return len(m.chunks) }

// GetBlock returns the block at a world position and whether its chunk data
// is available. Positions above or below the world read as air.
func (m *Map) GetBlock(x, y, z int) (uint16, bool) {
	if y < 0 || y >= ChunkHeight {
		return BlockAir, true
	}
	ch := m.chunks[ChunkKey{CX: x >> ChunkShiftXZ, CZ: z >> ChunkShiftXZ}]
	if ch == nil || !ch.loaded {
		return BlockAir, false
	}
	return ch.Get(x&ChunkMaskXZ, y, z&ChunkMaskXZ), true
}

// SetBlock edits one block and invalidates it at the given priority.
func (m *Map) SetBlock(x, y, z int, b uint16, priority UpdatePriority) error {
	if y < 0 || y >= ChunkHeight {
		return fmt.Errorf("set block %d,%d,%d: %w", x, y, z, ErrOutOfBounds)
	}
	ch := m.chunks[ChunkKey{CX: x >> ChunkShiftXZ, CZ: z >> ChunkShiftXZ}]
	if ch == nil || !ch.loaded {
		return fmt.Errorf("set block %d,%d,%d: %w", x, y, z, ErrChunkNotLoaded)
	}
	if !ch.Set(x&ChunkMaskXZ, y, z&ChunkMaskXZ, b) {
		return nil
	}
	m.editsTotal++
	for _, o := range m.observers.snapshot() {
		o.InvalidateBlock(x, y, z, priority)
	}
	return nil
}

// FillRegion sets every block of the inclusive box that lies in a loaded
// chunk, then issues one region invalidation. Returns the changed count.
func (m *Map) FillRegion(minX, minY, minZ, maxX, maxY, maxZ int, b uint16, priority UpdatePriority) (int, error) {
	if minX > maxX || minY > maxY || minZ > maxZ {
		return 0, fmt.Errorf("fill region: inverted bounds")
	}
	if minY < 0 {
		minY = 0
	}
	if maxY >= ChunkHeight {
		maxY = ChunkHeight - 1
	}
	if minY > maxY {
		return 0, fmt.Errorf("fill region: %w", ErrOutOfBounds)
	}
	changed := 0
	for x := minX; x <= maxX; x++ {
		for z := minZ; z <= maxZ; z++ {
			ch := m.chunks[ChunkKey{CX: x >> ChunkShiftXZ, CZ: z >> ChunkShiftXZ}]
			if ch == nil || !ch.loaded {
				continue
			}
			for y := minY; y <= maxY; y++ {
				if ch.Set(x&ChunkMaskXZ, y, z&ChunkMaskXZ, b) {
					changed++
				}
			}
		}
	}
	if changed == 0 {
		return 0, nil
	}
	m.editsTotal += uint64(changed)
	for _, o := range m.observers.snapshot() {
		o.InvalidateBlockRegion(minX, minY, minZ, maxX, maxY, maxZ, priority)
	}
	return changed, nil
}

func (m *Map) StatisticsString() string {
	loaded := 0
	for _, ch := range m.chunks {
		if ch.loaded {
			loaded++
		}
	}
	return fmt.Sprintf("Map: %d chunks (%d loaded), %d pending, %d edits", len(m.chunks), loaded, len(m.pending), m.editsTotal)
}

// GenerateChunk fills ch with terrain for its position.
func (m *Map) GenerateChunk(ch *Chunk) {
	g := m.Gen
	ox, oz := ch.Origin()
	for z := 0; z < ChunkSizeXZ; z++ {
		for x := 0; x < ChunkSizeXZ; x++ {
			wx := ox + x
			wz := oz + z
			h := gen.ColumnHeight(g.Seed, wx, wz, g.BaseHeight, g.Amplitude, ChunkHeight)
			sandy := h <= g.WaterLevel+1
			for y := 0; y < ChunkHeight; y++ {
				b := BlockAir
				switch {
				case y < h-3:
					b = BlockStone
					if gen.InCluster(g.Seed+101, wx+y*7, wz, 24, 2, uint64(gen.ClampPermille(g.OrePermille))) {
						b = BlockOre
					}
				case y < h:
					b = BlockDirt
					if sandy {
						b = BlockSand
					}
				case y == h:
					b = BlockGrass
					if sandy {
						b = BlockSand
					}
				case y <= g.WaterLevel:
					b = BlockWater
				}
				ch.Blocks[index(x, y, z)] = b
			}
			if !sandy && h+4 < ChunkHeight && gen.Hash2(g.Seed+999, wx, wz)%1000 < uint64(gen.ClampPermille(g.LogPermille)) {
				for y := h + 1; y <= h+4; y++ {
					ch.Blocks[index(x, y, z)] = BlockLog
				}
			}
		}
	}
}
