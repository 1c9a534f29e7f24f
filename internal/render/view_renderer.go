package render

import (
	"errors"
	"fmt"
	"log"
	"time"

	"voxelview.ai/internal/env"
	"voxelview.ai/internal/geom"
)

// Build failures are logged at most once per this many frames.
const failureLogEveryFrames = 120

type ViewRendererConfig struct {
	MaxBuildsPerFrame int
	BuildBudget       time.Duration
	Logger            *log.Logger
	Now               func() time.Time
}

// chunkRenderData is the renderer's side of a tracked chunk.
type chunkRenderData struct {
	chunk    *env.Chunk
	segments [SegmentsY]*Segment
}

// ViewRenderer keeps segment geometry in step with a chunk view and draws
// the visible part of it each frame.
type ViewRenderer struct {
	cfg ViewRendererConfig

	rs      RenderState
	m       *env.Map
	view    View
	builder Builder

	cache *SegmentCache
	queue *BuildQueue

	chunks map[env.ChunkKey]*chunkRenderData
	idle   []chan struct{}

	debugVisuals bool
	closed       bool

	frame    Frame
	viewport Viewport

	pass1 []*Segment
	pass2 []*Segment
	debug []*Segment

	lastVisibleChunks   int
	lastVisibleSegments int
	lastPass1           int
	lastPass2           int
	lastFailureLog      uint64
	loggedFailure       bool
}

func NewViewRenderer(rs RenderState, m *env.Map, view View, b Builder, cfg ViewRendererConfig) *ViewRenderer {
	r := &ViewRenderer{
		cfg:     cfg,
		rs:      rs,
		m:       m,
		view:    view,
		builder: b,
		cache:   NewSegmentCache(),
		queue: NewBuildQueue(BuildQueueConfig{
			MaxBuilds: cfg.MaxBuildsPerFrame,
			Budget:    cfg.BuildBudget,
			Now:       cfg.Now,
		}),
		chunks: map[env.ChunkKey]*chunkRenderData{},
		pass1:  make([]*Segment, 0, 1024),
		pass2:  make([]*Segment, 0, 1024),
	}
	view.AddObserver(r)
	return r
}

// Close detaches from the view and drops every tracked chunk. Pending idle
// waiters are abandoned.
func (r *ViewRenderer) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.view.RemoveObserver(r)
	r.queue.Clear()
	for _, rd := range r.chunks {
		r.dropRenderData(rd)
	}
	r.idle = nil
}

func (r *ViewRenderer) Cache() *SegmentCache { return r.cache }
func (r *ViewRenderer) Queue() *BuildQueue   { return r.queue }

func (r *ViewRenderer) TrackedChunks() int { return len(r.chunks) }

// SegmentAt returns the live segment for a chunk slice, or nil.
func (r *ViewRenderer) SegmentAt(k env.ChunkKey, sy int) *Segment {
	rd := r.chunks[k]
	if rd == nil || sy < 0 || sy >= SegmentsY {
		return nil
	}
	return rd.segments[sy]
}

func (r *ViewRenderer) SetDebugVisuals(v bool) {
	if r.debugVisuals == v {
		return
	}
	r.debugVisuals = v
	r.cache.ForEach(func(s *Segment) {
		s.SetDebugVisuals(v)
	})
}

func (r *ViewRenderer) DebugVisuals() bool { return r.debugVisuals }

func (r *ViewRenderer) ChunkLoaded(c *env.Chunk) {
	r.ensureRenderData(c, env.PriorityLoad)
}

func (r *ViewRenderer) ChunkEnteredView(c *env.Chunk) {
	r.ensureRenderData(c, env.PriorityLoad)
}

func (r *ViewRenderer) ChunkLeftView(c *env.Chunk) {
	rd := r.chunks[c.Key()]
	if rd == nil || rd.chunk != c {
		return
	}
	r.dropRenderData(rd)
}

func (r *ViewRenderer) dropRenderData(rd *chunkRenderData) {
	for sy, s := range rd.segments {
		if s == nil {
			continue
		}
		r.queue.Cancel(s)
		r.cache.Remove(s)
		s.Dispose()
		rd.segments[sy] = nil
	}
	delete(r.chunks, rd.chunk.Key())
}

// renderData returns the tracking state for c, creating it for loaded
// chunks. Unloaded chunks are never tracked. State left behind by an older
// chunk at the same key is dropped first.
func (r *ViewRenderer) renderData(c *env.Chunk) *chunkRenderData {
	if rd := r.chunks[c.Key()]; rd != nil {
		if rd.chunk == c {
			return rd
		}
		r.dropRenderData(rd)
	}
	if !c.HasLoaded() {
		return nil
	}
	rd := &chunkRenderData{chunk: c}
	r.chunks[c.Key()] = rd
	return rd
}

func (r *ViewRenderer) ensureRenderData(c *env.Chunk, priority env.UpdatePriority) {
	if r.closed {
		return
	}
	rd := r.renderData(c)
	if rd == nil {
		return
	}
	for sy := range rd.segments {
		if rd.segments[sy] == nil {
			r.createSegment(rd, sy, priority)
		}
	}
}

func (r *ViewRenderer) createSegment(rd *chunkRenderData, sy int, priority env.UpdatePriority) *Segment {
	s := newSegment(r.rs, r.builder, rd.chunk, sy)
	s.SetDebugVisuals(r.debugVisuals)
	rd.segments[sy] = s
	r.cache.Add(s)
	r.queue.Enqueue(s, priority)
	return s
}

func (r *ViewRenderer) InvalidateBlock(x, y, z int, priority env.UpdatePriority) {
	r.InvalidateBlockRegion(x, y, z, x, y, z, priority)
}

// InvalidateBlockRegion invalidates every segment touching the inclusive
// block box grown by one block on each side, so neighbors whose faces
// depend on the edited blocks are rebuilt too.
func (r *ViewRenderer) InvalidateBlockRegion(minX, minY, minZ, maxX, maxY, maxZ int, priority env.UpdatePriority) {
	if r.closed {
		return
	}
	minX--
	minY--
	minZ--
	maxX++
	maxY++
	maxZ++

	lo, hi, ok := r.trackedBounds()
	if !ok {
		return
	}
	minCX, maxCX := max(minX>>env.ChunkShiftXZ, lo.CX), min(maxX>>env.ChunkShiftXZ, hi.CX)
	minCZ, maxCZ := max(minZ>>env.ChunkShiftXZ, lo.CZ), min(maxZ>>env.ChunkShiftXZ, hi.CZ)
	minSY, maxSY := minY>>SegmentShiftY, maxY>>SegmentShiftY
	if minSY < 0 {
		minSY = 0
	}
	if maxSY > SegmentsY-1 {
		maxSY = SegmentsY - 1
	}

	for cx := minCX; cx <= maxCX; cx++ {
		for cz := minCZ; cz <= maxCZ; cz++ {
			for sy := minSY; sy <= maxSY; sy++ {
				r.InvalidateSegment(cx<<env.ChunkShiftXZ, sy<<SegmentShiftY, cz<<env.ChunkShiftXZ, priority)
			}
		}
	}
}

// trackedBounds returns the smallest chunk box holding every tracked chunk.
func (r *ViewRenderer) trackedBounds() (lo, hi env.ChunkKey, ok bool) {
	for k := range r.chunks {
		if !ok {
			lo, hi, ok = k, k, true
			continue
		}
		lo.CX, lo.CZ = min(lo.CX, k.CX), min(lo.CZ, k.CZ)
		hi.CX, hi.CZ = max(hi.CX, k.CX), max(hi.CZ, k.CZ)
	}
	return lo, hi, ok
}

// InvalidateSegment marks the segment holding world position (x,y,z) for
// rebuild at priority. Positions in chunks the view does not hold are
// ignored; a y outside the world is a caller bug.
func (r *ViewRenderer) InvalidateSegment(x, y, z int, priority env.UpdatePriority) {
	sy := y >> SegmentShiftY
	if y < 0 || sy >= SegmentsY {
		panic(fmt.Sprintf("render: invalidate segment at y=%d outside [0,%d)", y, SegmentsY*SegmentSize))
	}
	if r.closed {
		return
	}
	c := r.view.GetChunk(x, y, z)
	if c == nil {
		return
	}
	rd := r.renderData(c)
	if rd == nil {
		return
	}
	s := rd.segments[sy]
	if s == nil {
		r.createSegment(rd, sy, priority)
		return
	}
	if !s.Dirty || !s.QueuedForBuild || priority.MoreUrgentThan(s.QueuePriority) {
		s.Invalidate()
		r.queue.Enqueue(s, priority)
	}
}

// WaitForBuildIdle returns a channel closed at the end of the first frame
// that finishes with an empty build queue.
func (r *ViewRenderer) WaitForBuildIdle() <-chan struct{} {
	ch := make(chan struct{})
	r.idle = append(r.idle, ch)
	return ch
}

// RebuildAll discards and rebuilds every live segment now, then recomputes
// the cache size. Segments that fail to build are queued for retry and
// their errors returned joined.
func (r *ViewRenderer) RebuildAll() (int, error) {
	type retry struct {
		s *Segment
		p env.UpdatePriority
	}
	var (
		failed []retry
		errs   []error
		built  int
	)
	r.cache.ForEach(func(s *Segment) {
		p, queued := r.queue.PriorityOf(s)
		if !queued {
			p = env.PriorityLoad
		}
		r.queue.Cancel(s)
		s.Discard()
		if err := s.Restore(); err != nil {
			failed = append(failed, retry{s: s, p: p})
			errs = append(errs, err)
			return
		}
		built++
	})
	r.cache.ResetSize()
	for _, f := range failed {
		r.queue.Enqueue(f.s, f.p)
	}
	if len(failed) > 0 {
		r.printf("rebuild all: %d of %d segments failed", len(failed), r.cache.Count())
	}
	return built, errors.Join(errs...)
}

// Render runs one frame: collect visible segments, spend the build budget,
// then draw the opaque and translucent passes.
func (r *ViewRenderer) Render(frame Frame, vp Viewport) {
	if r.closed {
		return
	}
	r.frame = frame
	r.viewport = vp
	r.lastVisibleChunks = 0
	r.lastVisibleSegments = 0
	r.pass1 = r.pass1[:0]
	r.pass2 = r.pass2[:0]
	r.debug = r.debug[:0]

	r.view.ForEachInViewport(vp, r.visitChunk)

	r.buildChunks(frame)

	if r.queue.Count() == 0 && len(r.idle) > 0 {
		for _, ch := range r.idle {
			close(ch)
		}
		r.idle = r.idle[:0]
	}

	far := vp.Far() - env.ChunkSizeXZ
	e := r.m.Environment
	r.rs.UpdateLighting(LightingInfo{
		AmbientLightColor: e.AmbientLightColor,
		SunLightDirection: e.SunLightDirection,
		SunLightColor:     e.SunLightColor,
		FogColor:          e.FogColor,
		FogNear:           far * 0.5,
		FogFar:            far * 2,
	})

	if r.debugVisuals && len(r.debug) > 0 {
		r.rs.BeginLines()
		for _, s := range r.debug {
			s.RenderDebug()
		}
	}
	r.lastPass1 = len(r.pass1)
	r.lastPass2 = len(r.pass2)
	if len(r.pass1) > 0 {
		r.drawPass(Pass1, r.pass1)
	}
	if len(r.pass2) > 0 {
		r.drawPass(Pass2, r.pass2)
	}
	clearSegments(r.pass1)
	clearSegments(r.pass2)
	clearSegments(r.debug)
	r.viewport = nil
}

func (r *ViewRenderer) drawPass(pass Pass, list []*Segment) {
	switch pass {
	case Pass1:
		r.rs.BeginChunkPass1()
	case Pass2:
		r.rs.BeginChunkPass2()
	}
	for _, s := range list {
		s.Render(pass)
	}
}

func clearSegments(list []*Segment) {
	for i := range list {
		list[i] = nil
	}
}

func (r *ViewRenderer) visitChunk(c *env.Chunk) {
	rd := r.chunks[c.Key()]
	if rd == nil || rd.chunk != c {
		return
	}
	r.lastVisibleChunks++
	for _, s := range rd.segments {
		if s == nil {
			continue
		}
		if r.viewport.ContainsBoundingSphere(s.BoundingSphere) == geom.Outside {
			continue
		}
		if !s.HasData() {
			continue
		}
		if s.QueuedForBuild && env.PriorityVisible.MoreUrgentThan(s.QueuePriority) {
			r.queue.Enqueue(s, env.PriorityVisible)
		}
		s.LastFrameInViewport = r.frame.Number
		r.lastVisibleSegments++
		r.pass1 = append(r.pass1, s)
		if s.HasTranslucent() {
			r.pass2 = append(r.pass2, s)
		}
		if r.debugVisuals {
			r.debug = append(r.debug, s)
		}
	}
}

func (r *ViewRenderer) buildChunks(frame Frame) {
	delta := r.queue.Update(frame)
	r.cache.AdjustSize(delta)

	st := r.queue.LastUpdate()
	if st.Failures == 0 {
		return
	}
	if r.loggedFailure && frame.Number-r.lastFailureLog < failureLogEveryFrames {
		return
	}
	r.loggedFailure = true
	r.lastFailureLog = frame.Number
	r.printf("frame %d: %d segment builds failed, %d pending: %v", frame.Number, st.Failures, r.queue.Count(), st.LastErr)
}

func (r *ViewRenderer) printf(format string, args ...any) {
	if r.cfg.Logger != nil {
		r.cfg.Logger.Printf(format, args...)
	}
}

// Statistics is a snapshot of renderer counters.
type Statistics struct {
	CachedSegments  int
	CacheSize       int64
	TrackedChunks   int
	VisibleChunks   int
	VisibleSegments int
	Pass1Segments   int
	Pass2Segments   int
	PendingBuilds   int
	LastBuilds      int
	LastFailures    int
	LastBuildTime   time.Duration
	TotalBuilds     uint64
	TotalFailures   uint64
}

func (s Statistics) String() string {
	return fmt.Sprintf("Render: %d cached (%dK), %d visible, %d req", s.CachedSegments, s.CacheSize/1000, s.VisibleSegments, s.PendingBuilds)
}

func (r *ViewRenderer) Statistics() Statistics {
	last := r.queue.LastUpdate()
	builds, failures := r.queue.Totals()
	return Statistics{
		CachedSegments:  r.cache.Count(),
		CacheSize:       r.cache.Size(),
		TrackedChunks:   len(r.chunks),
		VisibleChunks:   r.lastVisibleChunks,
		VisibleSegments: r.lastVisibleSegments,
		Pass1Segments:   r.lastPass1,
		Pass2Segments:   r.lastPass2,
		PendingBuilds:   r.queue.Count(),
		LastBuilds:      last.Builds,
		LastFailures:    last.Failures,
		LastBuildTime:   last.Elapsed,
		TotalBuilds:     builds,
		TotalFailures:   failures,
	}
}

func (r *ViewRenderer) StatisticsString() string {
	return r.Statistics().String()
}
