package mesh

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"voxelview.ai/internal/env"
	"voxelview.ai/internal/geom"
)

const (
	SegmentShiftY = 4
	SegmentSize   = 1 << SegmentShiftY
	SegmentsY     = env.ChunkHeight >> SegmentShiftY

	// x, y, z, nx, ny, nz
	FloatsPerVertex = 6
	VertexBytes     = FloatsPerVertex * 4
)

var ErrVoxelsUnavailable = errors.New("voxel data unavailable")

// BlockSource answers neighbor lookups across chunk edges. The bool is false
// when the owning chunk has no data yet.
type BlockSource interface {
	GetBlock(x, y, z int) (uint16, bool)
}

type Mesh struct {
	Opaque      []float32
	Translucent []float32
	Bounds      geom.Sphere
}

func (m *Mesh) Empty() bool {
	return m == nil || (len(m.Opaque) == 0 && len(m.Translucent) == 0)
}

func (m *Mesh) OpaqueVertices() int {
	if m == nil {
		return 0
	}
	return len(m.Opaque) / FloatsPerVertex
}

func (m *Mesh) TranslucentVertices() int {
	if m == nil {
		return 0
	}
	return len(m.Translucent) / FloatsPerVertex
}

// Size is the vertex buffer footprint in bytes.
func (m *Mesh) Size() int {
	if m == nil {
		return 0
	}
	return (len(m.Opaque) + len(m.Translucent)) * 4
}

type face struct {
	dx, dy, dz int
	corners    [4][3]float32
}

var faces = [6]face{
	{1, 0, 0, [4][3]float32{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{-1, 0, 0, [4][3]float32{{0, 0, 1}, {0, 1, 1}, {0, 1, 0}, {0, 0, 0}}},
	{0, 1, 0, [4][3]float32{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{0, -1, 0, [4][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{0, 0, 1, [4][3]float32{{1, 0, 1}, {1, 1, 1}, {0, 1, 1}, {0, 0, 1}}},
	{0, 0, -1, [4][3]float32{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
}

var quad = [6]int{0, 1, 2, 0, 2, 3}

// Mesher turns one vertical slice of a chunk into face-culled geometry.
type Mesher struct {
	src BlockSource
}

func NewMesher(src BlockSource) *Mesher {
	return &Mesher{src: src}
}

// BuildSegment meshes slice sy of c. Neighbor chunks without data are treated
// as air so edges still close; the slice itself must be loaded.
func (ms *Mesher) BuildSegment(c *env.Chunk, sy int) (*Mesh, error) {
	if sy < 0 || sy >= SegmentsY {
		panic(fmt.Sprintf("mesh: segment index %d out of range [0,%d)", sy, SegmentsY))
	}
	if c == nil || !c.HasLoaded() {
		return nil, ErrVoxelsUnavailable
	}

	ox, oz := c.Origin()
	y0 := sy << SegmentShiftY
	out := &Mesh{}

	var (
		min   = mgl32.Vec3{1e9, 1e9, 1e9}
		max   = mgl32.Vec3{-1e9, -1e9, -1e9}
		found bool
	)

	for y := y0; y < y0+SegmentSize; y++ {
		for lz := 0; lz < env.ChunkSizeXZ; lz++ {
			for lx := 0; lx < env.ChunkSizeXZ; lx++ {
				b := c.Get(lx, y, lz)
				if b == env.BlockAir {
					continue
				}
				translucent := env.IsTranslucent(b)
				emitted := false
				for i := range faces {
					f := &faces[i]
					n := ms.neighbor(c, lx+f.dx, y+f.dy, lz+f.dz)
					if translucent {
						if n != env.BlockAir {
							continue
						}
					} else if env.IsOpaque(n) {
						continue
					}
					wx := float32(ox + lx)
					wy := float32(y)
					wz := float32(oz + lz)
					for _, qi := range quad {
						co := f.corners[qi]
						v := []float32{wx + co[0], wy + co[1], wz + co[2], float32(f.dx), float32(f.dy), float32(f.dz)}
						if translucent {
							out.Translucent = append(out.Translucent, v...)
						} else {
							out.Opaque = append(out.Opaque, v...)
						}
					}
					emitted = true
				}
				if emitted {
					p := mgl32.Vec3{float32(ox + lx), float32(y), float32(oz + lz)}
					min = mgl32.Vec3{min32(min[0], p[0]), min32(min[1], p[1]), min32(min[2], p[2])}
					max = mgl32.Vec3{max32(max[0], p[0]+1), max32(max[1], p[1]+1), max32(max[2], p[2]+1)}
					found = true
				}
			}
		}
	}
	if found {
		out.Bounds = geom.SphereFromBounds(min, max)
	}
	return out, nil
}

func (ms *Mesher) neighbor(c *env.Chunk, lx, y, lz int) uint16 {
	if y < 0 {
		return env.BlockStone
	}
	if y >= env.ChunkHeight {
		return env.BlockAir
	}
	if lx >= 0 && lx < env.ChunkSizeXZ && lz >= 0 && lz < env.ChunkSizeXZ {
		return c.Get(lx, y, lz)
	}
	if ms.src == nil {
		return env.BlockAir
	}
	ox, oz := c.Origin()
	b, _ := ms.src.GetBlock(ox+lx, y, oz+lz)
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
