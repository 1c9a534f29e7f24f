package render

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"voxelview.ai/internal/env"
	"voxelview.ai/internal/geom"
	"voxelview.ai/internal/mesh"
)

const (
	SegmentShiftY = mesh.SegmentShiftY
	SegmentSize   = mesh.SegmentSize
	SegmentsY     = mesh.SegmentsY
)

var (
	debugColorBuilt = mgl32.Vec3{0, 1, 0}
	debugColorDirty = mgl32.Vec3{1, 0, 0}
)

// Segment renders one SegmentSize-tall slice of a chunk. The build queue owns
// QueuedForBuild and QueuePriority.
type Segment struct {
	chunk *env.Chunk
	sy    int

	Dirty               bool
	QueuedForBuild      bool
	QueuePriority       env.UpdatePriority
	LastFrameInViewport uint64

	// EstimatedSize and BoundingSphere are only meaningful after a build.
	EstimatedSize  int64
	BoundingSphere geom.Sphere

	rs       RenderState
	builder  Builder
	geometry *mesh.Mesh

	debugVisuals bool
	disposed     bool
	builds       int
}

func newSegment(rs RenderState, b Builder, c *env.Chunk, sy int) *Segment {
	if sy < 0 || sy >= SegmentsY {
		panic(fmt.Sprintf("render: segment index %d out of range [0,%d)", sy, SegmentsY))
	}
	ox, oz := c.Origin()
	y := float32(sy << SegmentShiftY)
	return &Segment{
		chunk: c,
		sy:    sy,
		Dirty: true,
		BoundingSphere: geom.SphereFromBounds(
			mgl32.Vec3{float32(ox), y, float32(oz)},
			mgl32.Vec3{float32(ox + env.ChunkSizeXZ), y + SegmentSize, float32(oz + env.ChunkSizeXZ)},
		),
		rs:      rs,
		builder: b,
	}
}

func (s *Segment) Chunk() *env.Chunk { return s.chunk }
func (s *Segment) Index() int        { return s.sy }
func (s *Segment) Disposed() bool    { return s.disposed }
func (s *Segment) BuildCount() int   { return s.builds }

func (s *Segment) String() string {
	return fmt.Sprintf("segment(%d,%d/%d)", s.chunk.CX, s.chunk.CZ, s.sy)
}

func (s *Segment) mustBeLive() {
	if s.disposed {
		panic("render: use of disposed " + s.String())
	}
}

// Invalidate marks the geometry stale. Queueing is up to the caller.
func (s *Segment) Invalidate() {
	s.Dirty = true
}

// Build regenerates geometry and returns the change in EstimatedSize. On
// failure the segment stays dirty and keeps its previous geometry.
func (s *Segment) Build() (int64, error) {
	s.mustBeLive()
	m, err := s.builder.BuildSegment(s.chunk, s.sy)
	if err != nil {
		s.Dirty = true
		return 0, fmt.Errorf("build %s: %w", s, err)
	}
	old := s.EstimatedSize
	if s.geometry != nil {
		s.rs.ReleaseGeometry(s.geometry)
	}
	s.geometry = m
	s.EstimatedSize = int64(m.Size())
	if !m.Bounds.Empty() {
		s.BoundingSphere = m.Bounds
	}
	s.Dirty = false
	s.builds++
	return s.EstimatedSize - old, nil
}

// Discard drops built geometry. The size change is not reported anywhere.
func (s *Segment) Discard() {
	s.mustBeLive()
	if s.geometry != nil {
		s.rs.ReleaseGeometry(s.geometry)
		s.geometry = nil
	}
	s.EstimatedSize = 0
	s.Dirty = true
}

// Restore rebuilds after Discard.
func (s *Segment) Restore() error {
	_, err := s.Build()
	return err
}

func (s *Segment) HasData() bool { return !s.geometry.Empty() }

func (s *Segment) HasTranslucent() bool {
	return s.geometry.TranslucentVertices() > 0
}

func (s *Segment) Render(pass Pass) {
	s.mustBeLive()
	if s.geometry == nil {
		return
	}
	s.rs.DrawSegment(pass, s.geometry)
}

func (s *Segment) RenderDebug() {
	s.mustBeLive()
	if !s.debugVisuals {
		return
	}
	color := debugColorBuilt
	if s.Dirty {
		color = debugColorDirty
	}
	s.rs.DrawBounds(s.BoundingSphere, color)
}

func (s *Segment) SetDebugVisuals(v bool) { s.debugVisuals = v }
func (s *Segment) DebugVisuals() bool     { return s.debugVisuals }

// Dispose releases geometry. The segment must not be used afterwards.
func (s *Segment) Dispose() {
	if s.disposed {
		return
	}
	if s.geometry != nil {
		s.rs.ReleaseGeometry(s.geometry)
		s.geometry = nil
	}
	s.disposed = true
}
