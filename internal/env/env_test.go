package env

import (
	"errors"
	"testing"

	"voxelview.ai/internal/geom"
)

type recordingObserver struct {
	loaded, entered, left []ChunkKey
	blocks                [][3]int
	regions               [][6]int
	priorities            []UpdatePriority
}

func (r *recordingObserver) ChunkLoaded(c *Chunk)      { r.loaded = append(r.loaded, c.Key()) }
func (r *recordingObserver) ChunkEnteredView(c *Chunk) { r.entered = append(r.entered, c.Key()) }
func (r *recordingObserver) ChunkLeftView(c *Chunk)    { r.left = append(r.left, c.Key()) }
func (r *recordingObserver) InvalidateBlock(x, y, z int, p UpdatePriority) {
	r.blocks = append(r.blocks, [3]int{x, y, z})
	r.priorities = append(r.priorities, p)
}
func (r *recordingObserver) InvalidateBlockRegion(minX, minY, minZ, maxX, maxY, maxZ int, p UpdatePriority) {
	r.regions = append(r.regions, [6]int{minX, minY, minZ, maxX, maxY, maxZ})
	r.priorities = append(r.priorities, p)
}

type acceptAll struct{}

func (acceptAll) ContainsBoundingSphere(geom.Sphere) geom.Containment { return geom.Inside }

type rejectAll struct{}

func (rejectAll) ContainsBoundingSphere(geom.Sphere) geom.Containment { return geom.Outside }

func TestMapLoadBudget(t *testing.T) {
	m := NewMap(DefaultWorldGen(1), 2)
	obs := &recordingObserver{}
	m.AddObserver(obs)

	for i := 0; i < 5; i++ {
		if ch := m.RequestChunk(i, 0); ch.HasLoaded() {
			t.Fatalf("chunk %d loaded before update", i)
		}
	}
	if n := m.Update(); n != 2 {
		t.Fatalf("first update loaded %d want 2", n)
	}
	if len(obs.loaded) != 2 || obs.loaded[0] != (ChunkKey{CX: 0}) {
		t.Fatalf("unexpected loaded events: %+v", obs.loaded)
	}
	m.Update()
	m.Update()
	if m.PendingCount() != 0 || len(obs.loaded) != 5 {
		t.Fatalf("pending=%d loaded=%d", m.PendingCount(), len(obs.loaded))
	}
}

func TestMapReleaseRefCounted(t *testing.T) {
	m := NewMap(DefaultWorldGen(1), 4)
	a := m.RequestChunk(3, 3)
	b := m.RequestChunk(3, 3)
	if a != b {
		t.Fatalf("same key should share one chunk")
	}
	m.ReleaseChunk(3, 3)
	if m.Chunk(3, 3) == nil {
		t.Fatalf("chunk evicted while still referenced")
	}
	m.ReleaseChunk(3, 3)
	if m.Chunk(3, 3) != nil {
		t.Fatalf("chunk not evicted after last release")
	}
	if m.PendingCount() != 0 {
		t.Fatalf("released chunk still pending")
	}
}

func TestSetBlockNotifies(t *testing.T) {
	m := NewMap(DefaultWorldGen(1), 1)
	obs := &recordingObserver{}
	m.AddObserver(obs)

	if err := m.SetBlock(1, 1, 1, BlockGlass, PriorityRealtime); !errors.Is(err, ErrChunkNotLoaded) {
		t.Fatalf("expected ErrChunkNotLoaded, got %v", err)
	}
	m.LoadChunkNow(0, 0)
	if err := m.SetBlock(1, 70, 1, BlockGlass, PriorityRealtime); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if err := m.SetBlock(1, 1, 1, BlockGlass, PriorityRealtime); err != nil {
		t.Fatalf("set block: %v", err)
	}
	if len(obs.blocks) != 1 || obs.blocks[0] != [3]int{1, 1, 1} || obs.priorities[0] != PriorityRealtime {
		t.Fatalf("unexpected invalidations: %+v %+v", obs.blocks, obs.priorities)
	}
	if b, ok := m.GetBlock(1, 1, 1); !ok || b != BlockGlass {
		t.Fatalf("GetBlock=%d,%v", b, ok)
	}
	// Same value again is not an edit.
	_ = m.SetBlock(1, 1, 1, BlockGlass, PriorityRealtime)
	if len(obs.blocks) != 1 {
		t.Fatalf("no-op edit notified observers")
	}

	n, err := m.FillRegion(0, 40, 0, 3, 41, 3, BlockStone, PriorityLoad)
	if err != nil || n != 32 {
		t.Fatalf("fill: n=%d err=%v", n, err)
	}
	if len(obs.regions) != 1 || obs.regions[0] != [6]int{0, 40, 0, 3, 41, 3} {
		t.Fatalf("unexpected regions: %+v", obs.regions)
	}
}

func TestChunkViewEnterLeave(t *testing.T) {
	m := NewMap(DefaultWorldGen(1), 100)
	v := NewChunkView(m, 1, 0)
	obs := &recordingObserver{}
	v.AddObserver(obs)

	v.SetCenter(8, 8)
	if len(obs.entered) != 9 || v.Count() != 9 {
		t.Fatalf("entered=%d count=%d want 9", len(obs.entered), v.Count())
	}
	if obs.entered[0] != (ChunkKey{}) {
		t.Fatalf("center chunk should enter first, got %+v", obs.entered[0])
	}
	m.Update()
	if len(obs.loaded) != 9 {
		t.Fatalf("loaded relayed=%d want 9", len(obs.loaded))
	}

	// Same chunk: nothing happens.
	v.SetCenter(9, 9)
	if len(obs.entered) != 9 || len(obs.left) != 0 {
		t.Fatalf("moving inside center chunk changed the view")
	}

	v.SetCenter(8+16, 8)
	if len(obs.left) != 3 || len(obs.entered) != 12 {
		t.Fatalf("left=%d entered=%d want 3/12", len(obs.left), len(obs.entered))
	}
	for _, k := range obs.left {
		if k.CX != -1 {
			t.Fatalf("unexpected chunk left view: %+v", k)
		}
		if m.Chunk(k.CX, k.CZ) != nil {
			t.Fatalf("left chunk still stored in map")
		}
	}

	if v.GetChunk(20, 10, 3) == nil {
		t.Fatalf("GetChunk missed in-view chunk")
	}
	if v.GetChunk(-5, 10, 3) != nil {
		t.Fatalf("GetChunk returned chunk outside view")
	}
	if v.GetChunk(20, -1, 3) != nil {
		t.Fatalf("GetChunk accepted negative y")
	}

	v.Close()
	if len(obs.left) != 12 {
		t.Fatalf("close should drop all chunks, left=%d", len(obs.left))
	}
}

func TestForEachInViewport(t *testing.T) {
	m := NewMap(DefaultWorldGen(1), 100)
	v := NewChunkView(m, 2, 0)
	v.SetCenter(0, 0)

	n := 0
	v.ForEachInViewport(acceptAll{}, func(*Chunk) { n++ })
	if n != 25 {
		t.Fatalf("visited %d want 25", n)
	}
	n = 0
	v.ForEachInViewport(rejectAll{}, func(*Chunk) { n++ })
	if n != 0 {
		t.Fatalf("visited %d want 0", n)
	}
}

func TestGeneratedTerrainHasSurface(t *testing.T) {
	m := NewMap(DefaultWorldGen(5), 1)
	ch := m.LoadChunkNow(0, 0)
	if !ch.HasLoaded() {
		t.Fatalf("chunk not loaded")
	}
	if ch.Get(0, 0, 0) == BlockAir {
		t.Fatalf("bedrock layer should not be air")
	}
	if ch.Get(0, ChunkHeight-1, 0) != BlockAir {
		t.Fatalf("top layer should be air")
	}
}
