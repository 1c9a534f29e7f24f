package render

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelview.ai/internal/env"
	"voxelview.ai/internal/geom"
	"voxelview.ai/internal/mesh"
)

// Frame identifies one displayed frame.
type Frame struct {
	Number uint64
	Time   float64 // seconds since start
}

// Viewport is the camera volume segments are tested against.
type Viewport interface {
	geom.Volume
	Far() float32
}

// View is the chunk set the renderer follows.
type View interface {
	GetChunk(x, y, z int) *env.Chunk
	ForEachInViewport(vol geom.Volume, fn func(*env.Chunk))
	AddObserver(o env.Observer)
	RemoveObserver(o env.Observer)
}

// Builder generates segment geometry from voxel data.
type Builder interface {
	BuildSegment(c *env.Chunk, sy int) (*mesh.Mesh, error)
}

type Pass int

const (
	Pass1 Pass = iota + 1 // opaque
	Pass2                 // translucent
)

type LightingInfo struct {
	AmbientLightColor mgl32.Vec3
	SunLightDirection mgl32.Vec3
	SunLightColor     mgl32.Vec3
	FogColor          mgl32.Vec3
	FogNear           float32
	FogFar            float32
}

// RenderState is the graphics device boundary. Begin* calls set up device
// state for the draws that follow.
type RenderState interface {
	UpdateLighting(info LightingInfo)
	BeginLines()
	BeginChunkPass1()
	BeginChunkPass2()
	DrawSegment(pass Pass, m *mesh.Mesh)
	DrawBounds(s geom.Sphere, color mgl32.Vec3)
	ReleaseGeometry(m *mesh.Mesh)
}
