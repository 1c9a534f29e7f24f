package env

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"voxelview.ai/internal/geom"
)

// ComputeWantedChunks lists the chunks within radius of center, nearest first,
// clipped to maxChunks.
func ComputeWantedChunks(center ChunkKey, radius int, maxChunks int) []ChunkKey {
	if radius < 0 {
		radius = 0
	}
	if maxChunks <= 0 {
		maxChunks = 1024
	}
	type item struct {
		k    ChunkKey
		dist int
	}
	items := make([]item, 0, (2*radius+1)*(2*radius+1))
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			items = append(items, item{
				k:    ChunkKey{CX: center.CX + dx, CZ: center.CZ + dz},
				dist: absInt(dx) + absInt(dz),
			})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].dist != items[j].dist {
			return items[i].dist < items[j].dist
		}
		if items[i].k.CX != items[j].k.CX {
			return items[i].k.CX < items[j].k.CX
		}
		return items[i].k.CZ < items[j].k.CZ
	})
	if len(items) > maxChunks {
		items = items[:maxChunks]
	}
	out := make([]ChunkKey, 0, len(items))
	for _, it := range items {
		out = append(out, it.k)
	}
	return out
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// ChunkView tracks the chunks around a moving center and relays map events
// for them to its own observers.
type ChunkView struct {
	m         *Map
	radius    int
	maxChunks int

	center    ChunkKey
	hasCenter bool

	chunks map[ChunkKey]*Chunk
	order  []ChunkKey // nearest first

	observers observerList
}

func NewChunkView(m *Map, radius, maxChunks int) *ChunkView {
	v := &ChunkView{
		m:         m,
		radius:    radius,
		maxChunks: maxChunks,
		chunks:    map[ChunkKey]*Chunk{},
	}
	m.AddObserver(v)
	return v
}

// Close makes every chunk leave the view and detaches from the map.
func (v *ChunkView) Close() {
	for _, k := range v.order {
		v.leave(k)
	}
	v.order = nil
	v.hasCenter = false
	v.m.RemoveObserver(v)
}

func (v *ChunkView) AddObserver(o Observer)    { v.observers.add(o) }
func (v *ChunkView) RemoveObserver(o Observer) { v.observers.remove(o) }

func (v *ChunkView) Map() *Map { return v.m }

func (v *ChunkView) Count() int { return len(v.chunks) }

// DrawDistance is the view radius in blocks.
func (v *ChunkView) DrawDistance() float32 {
	return float32((v.radius + 1) * ChunkSizeXZ)
}

// SetCenter moves the view to the chunk containing world (x,z). Chunks that
// fall out of range leave the view before new ones enter it.
func (v *ChunkView) SetCenter(x, z float32) {
	c := ChunkKey{
		CX: int(floor32(x)) >> ChunkShiftXZ,
		CZ: int(floor32(z)) >> ChunkShiftXZ,
	}
	if v.hasCenter && c == v.center {
		return
	}
	v.center = c
	v.hasCenter = true

	want := ComputeWantedChunks(c, v.radius, v.maxChunks)
	wantSet := make(map[ChunkKey]struct{}, len(want))
	for _, k := range want {
		wantSet[k] = struct{}{}
	}
	for _, k := range v.order {
		if _, ok := wantSet[k]; !ok {
			v.leave(k)
		}
	}
	var entered []*Chunk
	for _, k := range want {
		if _, ok := v.chunks[k]; ok {
			continue
		}
		ch := v.m.RequestChunk(k.CX, k.CZ)
		v.chunks[k] = ch
		entered = append(entered, ch)
	}
	v.order = want
	for _, ch := range entered {
		for _, o := range v.observers.snapshot() {
			o.ChunkEnteredView(ch)
		}
	}
}

func (v *ChunkView) leave(k ChunkKey) {
	ch, ok := v.chunks[k]
	if !ok {
		return
	}
	delete(v.chunks, k)
	for _, o := range v.observers.snapshot() {
		o.ChunkLeftView(ch)
	}
	v.m.ReleaseChunk(k.CX, k.CZ)
}

// GetChunk returns the in-view chunk holding world position (x,y,z), or nil.
func (v *ChunkView) GetChunk(x, y, z int) *Chunk {
	if y < 0 || y >= ChunkHeight {
		return nil
	}
	return v.chunks[ChunkKey{CX: x >> ChunkShiftXZ, CZ: z >> ChunkShiftXZ}]
}

// ForEachInViewport calls fn for each in-view chunk whose column may
// intersect vol, nearest first.
func (v *ChunkView) ForEachInViewport(vol geom.Volume, fn func(*Chunk)) {
	for _, k := range v.order {
		ch := v.chunks[k]
		if ch == nil {
			continue
		}
		if vol.ContainsBoundingSphere(ColumnSphere(k)) == geom.Outside {
			continue
		}
		fn(ch)
	}
}

// ColumnSphere bounds a whole chunk column.
func ColumnSphere(k ChunkKey) geom.Sphere {
	x := float32(k.CX << ChunkShiftXZ)
	z := float32(k.CZ << ChunkShiftXZ)
	return geom.SphereFromBounds(
		mgl32.Vec3{x, 0, z},
		mgl32.Vec3{x + ChunkSizeXZ, ChunkHeight, z + ChunkSizeXZ},
	)
}

func floor32(f float32) float32 {
	i := float32(int(f))
	if f < i {
		return i - 1
	}
	return i
}

func (v *ChunkView) ChunkLoaded(c *Chunk) {
	if v.chunks[c.Key()] != c {
		return
	}
	for _, o := range v.observers.snapshot() {
		o.ChunkLoaded(c)
	}
}

func (v *ChunkView) ChunkEnteredView(*Chunk) {}
func (v *ChunkView) ChunkLeftView(*Chunk)    {}

func (v *ChunkView) InvalidateBlock(x, y, z int, priority UpdatePriority) {
	for _, o := range v.observers.snapshot() {
		o.InvalidateBlock(x, y, z, priority)
	}
}

func (v *ChunkView) InvalidateBlockRegion(minX, minY, minZ, maxX, maxY, maxZ int, priority UpdatePriority) {
	for _, o := range v.observers.snapshot() {
		o.InvalidateBlockRegion(minX, minY, minZ, maxX, maxY, maxZ, priority)
	}
}
