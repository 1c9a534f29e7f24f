package geom

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func lookingDownZ() *Viewport {
	v := NewViewport()
	v.SetSize(800, 600)
	v.SetFar(100)
	v.LookAt(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1})
	return v
}

func TestViewportContainment(t *testing.T) {
	v := lookingDownZ()

	if got := v.ContainsBoundingSphere(Sphere{Center: mgl32.Vec3{0, 0, -20}, Radius: 1}); got != Inside {
		t.Fatalf("sphere ahead: got %v want INSIDE", got)
	}
	if got := v.ContainsBoundingSphere(Sphere{Center: mgl32.Vec3{0, 0, 20}, Radius: 1}); got != Outside {
		t.Fatalf("sphere behind: got %v want OUTSIDE", got)
	}
	if got := v.ContainsBoundingSphere(Sphere{Center: mgl32.Vec3{0, 0, -100}, Radius: 4}); got != Intersecting {
		t.Fatalf("sphere on far plane: got %v want INTERSECTING", got)
	}
	if got := v.ContainsBoundingSphere(Sphere{Center: mgl32.Vec3{0, 0, -500}, Radius: 4}); got != Outside {
		t.Fatalf("sphere past far plane: got %v want OUTSIDE", got)
	}
}

func TestViewportFarPlaneClamp(t *testing.T) {
	v := NewViewport()
	v.SetFar(0)
	if v.Far() <= v.Near {
		t.Fatalf("far=%v must stay beyond near=%v", v.Far(), v.Near)
	}
}

func TestSphereFromBounds(t *testing.T) {
	s := SphereFromBounds(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{2, 2, 2})
	if !s.Center.ApproxEqual(mgl32.Vec3{1, 1, 1}) {
		t.Fatalf("center=%v", s.Center)
	}
	if !mgl32.FloatEqual(s.Radius, mgl32.Vec3{1, 1, 1}.Len()) {
		t.Fatalf("radius=%v", s.Radius)
	}
	if (Sphere{}).Empty() != true {
		t.Fatalf("zero sphere should be empty")
	}
}
