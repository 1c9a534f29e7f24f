package render

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelview.ai/internal/env"
	"voxelview.ai/internal/geom"
	"voxelview.ai/internal/mesh"
)

type fakeBuilder struct {
	verts       int
	translucent map[int]bool
	fail        map[env.ChunkKey]bool
	calls       int
	order       []*env.Chunk
}

func newFakeBuilder(verts int) *fakeBuilder {
	return &fakeBuilder{
		verts:       verts,
		translucent: map[int]bool{},
		fail:        map[env.ChunkKey]bool{},
	}
}

func (b *fakeBuilder) BuildSegment(c *env.Chunk, sy int) (*mesh.Mesh, error) {
	b.calls++
	b.order = append(b.order, c)
	if b.fail[c.Key()] {
		return nil, mesh.ErrVoxelsUnavailable
	}
	m := &mesh.Mesh{Opaque: make([]float32, b.verts*mesh.FloatsPerVertex)}
	if b.translucent[sy] {
		m.Translucent = make([]float32, 6*mesh.FloatsPerVertex)
	}
	return m, nil
}

type fakeRenderState struct {
	lighting  []LightingInfo
	lines     int
	pass1     int
	pass2     int
	draws     map[Pass]int
	bounds    []mgl32.Vec3
	released  int
	callOrder []string
}

func newFakeRenderState() *fakeRenderState {
	return &fakeRenderState{draws: map[Pass]int{}}
}

func (f *fakeRenderState) UpdateLighting(info LightingInfo) {
	f.lighting = append(f.lighting, info)
	f.callOrder = append(f.callOrder, "lighting")
}

func (f *fakeRenderState) BeginLines() {
	f.lines++
	f.callOrder = append(f.callOrder, "lines")
}

func (f *fakeRenderState) BeginChunkPass1() {
	f.pass1++
	f.callOrder = append(f.callOrder, "pass1")
}

func (f *fakeRenderState) BeginChunkPass2() {
	f.pass2++
	f.callOrder = append(f.callOrder, "pass2")
}

func (f *fakeRenderState) DrawSegment(pass Pass, m *mesh.Mesh) { f.draws[pass]++ }

func (f *fakeRenderState) DrawBounds(s geom.Sphere, color mgl32.Vec3) {
	f.bounds = append(f.bounds, color)
}

func (f *fakeRenderState) ReleaseGeometry(m *mesh.Mesh) { f.released++ }

type fixedViewport struct {
	result geom.Containment
	far    float32
}

func (v fixedViewport) ContainsBoundingSphere(geom.Sphere) geom.Containment { return v.result }
func (v fixedViewport) Far() float32                                        { return v.far }

var (
	seeAll  = fixedViewport{result: geom.Inside, far: 48}
	seeNone = fixedViewport{result: geom.Outside, far: 48}
)

func loadedChunk(cx, cz int) *env.Chunk {
	m := env.NewMap(env.DefaultWorldGen(1), 1)
	return m.LoadChunkNow(cx, cz)
}
