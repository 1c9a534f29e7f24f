package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Containment is the result of a volume test.
type Containment int

const (
	Outside Containment = iota
	Intersecting
	Inside
)

func (c Containment) String() string {
	switch c {
	case Outside:
		return "OUTSIDE"
	case Intersecting:
		return "INTERSECTING"
	case Inside:
		return "INSIDE"
	default:
		return "UNKNOWN"
	}
}

// Volume answers bounding sphere tests. Implementations may report
// Intersecting for spheres that are really outside, never the reverse.
type Volume interface {
	ContainsBoundingSphere(s Sphere) Containment
}

type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// SphereFromBounds returns the sphere enclosing the box [min,max].
func SphereFromBounds(min, max mgl32.Vec3) Sphere {
	c := min.Add(max).Mul(0.5)
	return Sphere{Center: c, Radius: max.Sub(c).Len()}
}

func (s Sphere) Empty() bool { return s.Radius <= 0 }

type Plane struct {
	Normal mgl32.Vec3
	D      float32
}

// Distance is the signed distance of p from the plane; positive is inside.
func (pl Plane) Distance(p mgl32.Vec3) float32 {
	return pl.Normal.Dot(p) + pl.D
}

// Frustum holds left, right, bottom, top, near, far planes, normals pointing in.
type Frustum [6]Plane

// FrustumFromMatrix extracts the clip planes of a combined view-projection
// matrix (OpenGL clip space, z in [-w,w]).
func FrustumFromMatrix(m mgl32.Mat4) Frustum {
	r0, r1, r2, r3 := m.Row(0), m.Row(1), m.Row(2), m.Row(3)
	raw := [6]mgl32.Vec4{
		r3.Add(r0),
		r3.Sub(r0),
		r3.Add(r1),
		r3.Sub(r1),
		r3.Add(r2),
		r3.Sub(r2),
	}
	var f Frustum
	for i, v := range raw {
		n := v.Vec3()
		l := n.Len()
		if l == 0 {
			// Degenerate plane accepts everything.
			f[i] = Plane{D: math.MaxFloat32}
			continue
		}
		f[i] = Plane{Normal: n.Mul(1 / l), D: v.W() / l}
	}
	return f
}

func (f *Frustum) ContainsBoundingSphere(s Sphere) Containment {
	out := Inside
	for i := range f {
		d := f[i].Distance(s.Center)
		if d < -s.Radius {
			return Outside
		}
		if d < s.Radius {
			out = Intersecting
		}
	}
	return out
}
