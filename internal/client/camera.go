package client

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelview.ai/internal/env"
	"voxelview.ai/internal/geom"
)

// Camera is the local player's eye. It drives the chunk view center.
type Camera struct {
	Position mgl32.Vec3
	Yaw      float32 // radians, 0 looks down -Z
	Pitch    float32 // radians, positive looks up

	// DrawDistance overrides the view's draw distance when > 0.
	DrawDistance float32

	view *env.ChunkView
}

func NewCamera(view *env.ChunkView) *Camera {
	return &Camera{view: view}
}

func (c *Camera) View() *env.ChunkView { return c.view }

func (c *Camera) Forward() mgl32.Vec3 {
	cp := float32(math.Cos(float64(c.Pitch)))
	return mgl32.Vec3{
		float32(math.Sin(float64(c.Yaw))) * cp,
		float32(math.Sin(float64(c.Pitch))),
		-float32(math.Cos(float64(c.Yaw))) * cp,
	}
}

// LookAt points the camera at target from its current position.
func (c *Camera) LookAt(target mgl32.Vec3) {
	d := target.Sub(c.Position)
	if d.Len() == 0 {
		return
	}
	d = d.Normalize()
	c.Pitch = float32(math.Asin(float64(mgl32.Clamp(d.Y(), -1, 1))))
	c.Yaw = float32(math.Atan2(float64(d.X()), float64(-d.Z())))
}

// Update recenters the chunk view on the camera.
func (c *Camera) Update() {
	if c.view != nil {
		c.view.SetCenter(c.Position.X(), c.Position.Z())
	}
}

func (c *Camera) Far() float32 {
	if c.DrawDistance > 0 {
		return c.DrawDistance
	}
	if c.view != nil {
		return c.view.DrawDistance()
	}
	return geom.DefaultFar
}

// CalculateViewport sets the viewport matrices from the camera pose.
func (c *Camera) CalculateViewport(vp *geom.Viewport) {
	vp.LookAt(c.Position, c.Position.Add(c.Forward()))
}
