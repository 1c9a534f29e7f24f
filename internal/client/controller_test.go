package client

import (
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelview.ai/internal/env"
	"voxelview.ai/internal/geom"
	"voxelview.ai/internal/graphics"
	"voxelview.ai/internal/mesh"
	"voxelview.ai/internal/render"
)

type scene struct {
	m    *env.Map
	view *env.ChunkView
	rec  *graphics.Recorder
	r    *render.ViewRenderer
	c    *Controller
	cam  *Camera
}

func newScene(t *testing.T, radius int) *scene {
	t.Helper()
	s := &scene{
		m:   env.NewMap(env.DefaultWorldGen(42), 100),
		rec: graphics.NewRecorder(),
	}
	s.view = env.NewChunkView(s.m, radius, 0)
	s.r = render.NewViewRenderer(s.rec, s.m, s.view, mesh.NewMesher(s.m), render.ViewRendererConfig{MaxBuildsPerFrame: 16})
	s.c = NewController(s.m, s.r, 640, 480)
	s.cam = NewCamera(s.view)
	return s
}

func TestCycleDebugInfo(t *testing.T) {
	s := newScene(t, 0)
	want := []int{DebugInfoText, DebugInfoVisuals, DebugInfoOff}
	for i, level := range want {
		if got := s.c.CycleDebugInfo(); got != level {
			t.Fatalf("cycle %d: level=%d want %d", i, got, level)
		}
		if s.r.DebugVisuals() != (level == DebugInfoVisuals) {
			t.Fatalf("level %d: debug visuals=%v", level, s.r.DebugVisuals())
		}
	}
}

func TestDebugInfoLines(t *testing.T) {
	s := newScene(t, 0)
	if s.c.DebugInfo() != nil {
		t.Fatalf("debug info should be nil when off")
	}
	s.c.SetDebugLevel(DebugInfoText)
	lines := s.c.DebugInfo()
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "Map: ") || !strings.HasPrefix(lines[1], "Render: ") {
		t.Fatalf("unexpected debug info %q", lines)
	}
}

func TestDrawWorldFarPlane(t *testing.T) {
	s := newScene(t, 2)
	s.c.DrawWorld(render.Frame{Number: 1})
	if s.c.Viewport().Far() != geom.DefaultFar {
		t.Fatalf("far without camera=%v want %v", s.c.Viewport().Far(), geom.DefaultFar)
	}

	s.c.SetCamera(s.cam)
	s.c.DrawWorld(render.Frame{Number: 2})
	if got, want := s.c.Viewport().Far(), s.view.DrawDistance(); got != want {
		t.Fatalf("far with camera=%v want %v", got, want)
	}
	if s.c.Viewport().Width != 640 || s.c.Viewport().Height != 480 {
		t.Fatalf("viewport size %dx%d", s.c.Viewport().Width, s.c.Viewport().Height)
	}
	if fog := s.rec.Lighting.FogNear; fog != (s.view.DrawDistance()-16)*0.5 {
		t.Fatalf("fog near=%v", fog)
	}
}

func TestCameraLookAt(t *testing.T) {
	cam := NewCamera(nil)
	cam.Position = mgl32.Vec3{0, 10, 0}
	cam.LookAt(mgl32.Vec3{10, 10, 0})
	f := cam.Forward()
	near := func(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-5 }
	if !f.ApproxFuncEqual(mgl32.Vec3{1, 0, 0}, near) {
		t.Fatalf("forward=%v want +X", f)
	}
}

func TestDrawWorldRendersTerrain(t *testing.T) {
	s := newScene(t, 1)
	s.c.SetCamera(s.cam)
	s.cam.Position = mgl32.Vec3{8, 60, -20}
	s.cam.LookAt(mgl32.Vec3{8, 30, 8})
	s.cam.Update()
	s.m.Update()

	idle := s.r.WaitForBuildIdle()
	var frame uint64
	for done := false; !done; {
		if frame > 100 {
			t.Fatalf("renderer never went idle, pending=%d", s.r.Queue().Count())
		}
		frame++
		s.rec.BeginFrame()
		s.c.DrawWorld(render.Frame{Number: frame})
		select {
		case <-idle:
			done = true
		default:
		}
	}

	frame++
	s.rec.BeginFrame()
	s.c.DrawWorld(render.Frame{Number: frame})
	f := s.rec.Frame()
	if f.Pass1Draws == 0 || f.Vertices == 0 {
		t.Fatalf("nothing drawn after build idle: %+v", f)
	}
	st := s.r.Statistics()
	if st.CachedSegments != 9*render.SegmentsY || st.CacheSize <= 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if n, _ := s.rec.Resident(); n == 0 {
		t.Fatalf("no geometry resident on the device")
	}
}
