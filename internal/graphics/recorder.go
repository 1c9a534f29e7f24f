// Package graphics provides a headless RenderState that records the work a
// GPU backend would have been asked to do.
package graphics

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"voxelview.ai/internal/geom"
	"voxelview.ai/internal/mesh"
	"voxelview.ai/internal/render"
)

// FrameCounters holds the device work issued since the last BeginFrame.
type FrameCounters struct {
	Pass1Begins int
	Pass2Begins int
	LineBegins  int

	Pass1Draws int
	Pass2Draws int
	DebugLines int

	Vertices int64

	Uploads  int
	Releases int
}

type Recorder struct {
	Lighting render.LightingInfo

	frame FrameCounters
	total FrameCounters

	pass       render.Pass
	resident   map[*mesh.Mesh]int
	residentSz int64
}

func NewRecorder() *Recorder {
	return &Recorder{resident: map[*mesh.Mesh]int{}}
}

// BeginFrame resets the per-frame counters.
func (r *Recorder) BeginFrame() {
	r.frame = FrameCounters{}
	r.pass = 0
}

func (r *Recorder) Frame() FrameCounters { return r.frame }
func (r *Recorder) Total() FrameCounters { return r.total }

// Resident reports the geometry currently held by the device.
func (r *Recorder) Resident() (count int, bytes int64) {
	return len(r.resident), r.residentSz
}

func (r *Recorder) UpdateLighting(info render.LightingInfo) {
	r.Lighting = info
}

func (r *Recorder) BeginLines() {
	r.frame.LineBegins++
	r.total.LineBegins++
	r.pass = 0
}

func (r *Recorder) BeginChunkPass1() {
	r.frame.Pass1Begins++
	r.total.Pass1Begins++
	r.pass = render.Pass1
}

func (r *Recorder) BeginChunkPass2() {
	r.frame.Pass2Begins++
	r.total.Pass2Begins++
	r.pass = render.Pass2
}

func (r *Recorder) DrawSegment(pass render.Pass, m *mesh.Mesh) {
	if pass != r.pass {
		panic(fmt.Sprintf("graphics: draw for pass %d outside its pass (current %d)", pass, r.pass))
	}
	r.upload(m)
	var verts int
	switch pass {
	case render.Pass1:
		verts = m.OpaqueVertices()
		r.frame.Pass1Draws++
		r.total.Pass1Draws++
	case render.Pass2:
		verts = m.TranslucentVertices()
		r.frame.Pass2Draws++
		r.total.Pass2Draws++
	}
	r.frame.Vertices += int64(verts)
	r.total.Vertices += int64(verts)
}

// DrawBounds draws a sphere outline as three axis circles.
func (r *Recorder) DrawBounds(s geom.Sphere, color mgl32.Vec3) {
	const segments = 12
	r.frame.DebugLines += 3 * segments
	r.total.DebugLines += 3 * segments
}

func (r *Recorder) upload(m *mesh.Mesh) {
	if _, ok := r.resident[m]; ok {
		return
	}
	sz := m.Size()
	r.resident[m] = sz
	r.residentSz += int64(sz)
	r.frame.Uploads++
	r.total.Uploads++
}

func (r *Recorder) ReleaseGeometry(m *mesh.Mesh) {
	r.frame.Releases++
	r.total.Releases++
	sz, ok := r.resident[m]
	if !ok {
		return
	}
	delete(r.resident, m)
	r.residentSz -= int64(sz)
}

var _ render.RenderState = (*Recorder)(nil)
