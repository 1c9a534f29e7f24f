package geom

import "github.com/go-gl/mathgl/mgl32"

const (
	DefaultFovY = 70
	DefaultNear = 0.1
	DefaultFar  = 100
)

// Viewport is a perspective camera viewport. Call Calculate (or LookAt)
// after changing size, far plane or field of view.
type Viewport struct {
	Width  int
	Height int

	FovY float32 // degrees
	Near float32

	far float32
	eye mgl32.Vec3

	ViewMatrix           mgl32.Mat4
	InverseViewMatrix    mgl32.Mat4
	ProjectionMatrix     mgl32.Mat4
	ViewProjectionMatrix mgl32.Mat4
	OrthoMatrix          mgl32.Mat4

	frustum Frustum
}

func NewViewport() *Viewport {
	v := &Viewport{
		Width:      1,
		Height:     1,
		FovY:       DefaultFovY,
		Near:       DefaultNear,
		far:        DefaultFar,
		ViewMatrix: mgl32.Ident4(),
	}
	v.Calculate()
	return v
}

func (v *Viewport) Far() float32 { return v.far }

func (v *Viewport) SetFar(far float32) {
	if far <= v.Near {
		far = v.Near + 1
	}
	v.far = far
}

func (v *Viewport) SetSize(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	v.Width = width
	v.Height = height
}

func (v *Viewport) Eye() mgl32.Vec3 { return v.eye }

// LookAt positions the camera and recalculates all matrices.
func (v *Viewport) LookAt(eye, target mgl32.Vec3) {
	v.eye = eye
	up := mgl32.Vec3{0, 1, 0}
	dir := target.Sub(eye)
	if dir.Len() == 0 {
		dir = mgl32.Vec3{0, 0, -1}
		target = eye.Add(dir)
	}
	if abs32(dir.Normalize().Dot(up)) > 0.999 {
		up = mgl32.Vec3{0, 0, -1}
	}
	v.ViewMatrix = mgl32.LookAtV(eye, target, up)
	v.Calculate()
}

func (v *Viewport) Calculate() {
	aspect := float32(v.Width) / float32(v.Height)
	v.ProjectionMatrix = mgl32.Perspective(mgl32.DegToRad(v.FovY), aspect, v.Near, v.far)
	v.ViewProjectionMatrix = v.ProjectionMatrix.Mul4(v.ViewMatrix)
	v.InverseViewMatrix = v.ViewMatrix.Inv()
	v.OrthoMatrix = mgl32.Ortho(0, float32(v.Width), float32(v.Height), 0, -1, 1)
	v.frustum = FrustumFromMatrix(v.ViewProjectionMatrix)
}

func (v *Viewport) Frustum() Frustum { return v.frustum }

func (v *Viewport) ContainsBoundingSphere(s Sphere) Containment {
	return v.frustum.ContainsBoundingSphere(s)
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
