package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelview.ai/internal/client"
	"voxelview.ai/internal/env"
	"voxelview.ai/internal/graphics"
	"voxelview.ai/internal/mesh"
	"voxelview.ai/internal/persistence/indexdb"
	"voxelview.ai/internal/persistence/statslog"
	"voxelview.ai/internal/protocol"
	"voxelview.ai/internal/render"
	"voxelview.ai/internal/tuning"
)

const (
	framesPerSecond = 60

	flyRadius = 40
	flyHeight = 52
	flySpeed  = 0.15 // radians per second

	pillarMinY = 36
	pillarMaxY = 47

	debugLogEvery = 120
)

// driver runs the headless frame loop: it flies the camera, edits the world
// and samples renderer statistics to the configured sinks.
type driver struct {
	tune      tuning.Tuning
	sessionID string
	logger    *log.Logger
	startedAt time.Time

	m        *env.Map
	view     *env.ChunkView
	renderer *render.ViewRenderer
	rec      *graphics.Recorder
	ctl      *client.Controller
	cam      *client.Camera

	// Optional sinks.
	frameLog     *statslog.FrameLogger
	editLog      *statslog.EditLogger
	idx          *indexdb.SQLiteIndex
	publish      func(protocol.StatsMsg)
	publishError func(protocol.ErrorMsg)
	commands     <-chan protocol.CommandMsg

	latest atomic.Pointer[protocol.StatsMsg]

	frame    uint64
	settling bool
	edits    int
	pillar   *[3]int
}

func newDriver(tune tuning.Tuning, sessionID string, logger *log.Logger) *driver {
	m := env.NewMap(env.DefaultWorldGen(tune.Seed), tune.ChunkLoadsPerUpdate)
	view := env.NewChunkView(m, tune.ViewRadiusChunks, 0)
	rec := graphics.NewRecorder()
	renderer := render.NewViewRenderer(rec, m, view, mesh.NewMesher(m), render.ViewRendererConfig{
		MaxBuildsPerFrame: tune.MaxBuildsPerFrame,
		BuildBudget:       tune.BuildBudget(),
		Logger:            logger,
	})
	ctl := client.NewController(m, renderer, tune.DisplayWidth, tune.DisplayHeight)
	ctl.SetDebugLevel(tune.DebugLevel)
	cam := client.NewCamera(view)
	cam.DrawDistance = tune.DrawDistance
	ctl.SetCamera(cam)

	return &driver{
		tune:      tune,
		sessionID: sessionID,
		logger:    logger,
		startedAt: time.Now().UTC(),
		m:         m,
		view:      view,
		renderer:  renderer,
		rec:       rec,
		ctl:       ctl,
		cam:       cam,
	}
}

func (d *driver) printf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}

func (d *driver) worldParams() protocol.WorldParams {
	return protocol.WorldParams{
		Seed:             d.tune.Seed,
		ViewRadiusChunks: d.tune.ViewRadiusChunks,
		ChunkSize:        [3]int{env.ChunkSizeXZ, mesh.SegmentSize, env.ChunkSizeXZ},
		SegmentsY:        mesh.SegmentsY,
	}
}

func (d *driver) sessionRow() indexdb.SessionRow {
	builds, failures := d.renderer.Queue().Totals()
	return indexdb.SessionRow{
		ID:               d.sessionID,
		StartedAt:        d.startedAt.Format(time.RFC3339),
		Seed:             d.tune.Seed,
		ViewRadiusChunks: d.tune.ViewRadiusChunks,
		Frames:           d.frame,
		Builds:           builds,
		Failures:         failures,
	}
}

func (d *driver) start() {
	if d.idx != nil {
		d.idx.StartSession(d.sessionRow())
	}
}

// run steps frames until the frame limit (0 = unlimited) or ctx ends. A
// positive interval paces the loop.
func (d *driver) run(ctx context.Context, frames int, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	for frames <= 0 || d.frame < uint64(frames) {
		if ctx.Err() != nil {
			return nil
		}
		d.handleCommands()
		d.step()
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}
	}
	return nil
}

// settle holds the camera still and keeps rendering until the build queue
// drains or maxFrames pass. Reports whether the renderer went idle.
func (d *driver) settle(ctx context.Context, maxFrames int) bool {
	d.settling = true
	defer func() { d.settling = false }()

	idle := d.renderer.WaitForBuildIdle()
	for i := 0; i < maxFrames; i++ {
		select {
		case <-idle:
			return true
		case <-ctx.Done():
			return false
		default:
		}
		d.step()
	}
	select {
	case <-idle:
		return true
	default:
		return false
	}
}

func (d *driver) step() {
	d.frame++
	n := d.frame
	t := float64(n) / framesPerSecond

	if !d.settling {
		d.fly(t)
	}
	d.cam.Update()
	d.m.Update()
	if !d.settling && every(n, d.tune.EditEveryFrames) {
		d.edit(n)
	}

	d.rec.BeginFrame()
	d.ctl.DrawWorld(render.Frame{Number: n, Time: t})

	if every(n, d.tune.StatsEveryFrames) {
		d.sample(d.stats(n, t))
	}
	if n%debugLogEvery == 0 {
		for _, line := range d.ctl.DebugInfo() {
			d.printf("frame %d: %s", n, line)
		}
	}
}

func every(n uint64, k int) bool {
	return k > 0 && n%uint64(k) == 0
}

// fly orbits the origin, looking ahead and down along the path.
func (d *driver) fly(t float64) {
	a := t * flySpeed
	pos := mgl32.Vec3{float32(flyRadius * math.Cos(a)), flyHeight, float32(flyRadius * math.Sin(a))}
	ahead := mgl32.Vec3{float32(-math.Sin(a)), 0, float32(math.Cos(a))}
	d.cam.Position = pos
	d.cam.LookAt(pos.Add(ahead.Mul(24)).Sub(mgl32.Vec3{0, 20, 0}))
}

// edit alternates between raising a glass pillar beside the camera and
// clearing the previous one.
func (d *driver) edit(n uint64) {
	var (
		at    [3]int
		block uint16
	)
	if d.pillar != nil {
		at, block = *d.pillar, env.BlockAir
		d.pillar = nil
	} else {
		p := d.cam.Position
		at = [3]int{int(math.Floor(float64(p.X()))) + 6, pillarMinY, int(math.Floor(float64(p.Z())))}
		block = env.BlockGlass
	}
	lo := at
	hi := [3]int{at[0] + 1, pillarMaxY, at[2] + 1}

	changed, err := d.m.FillRegion(lo[0], lo[1], lo[2], hi[0], hi[1], hi[2], block, env.PriorityRealtime)
	if err != nil {
		d.printf("edit at frame %d: %v", n, err)
		return
	}
	if changed == 0 {
		return
	}
	if block == env.BlockGlass {
		d.pillar = &at
	}
	d.edits++

	rec := statslog.EditRecord{
		Frame:    n,
		Min:      lo,
		Max:      hi,
		Block:    block,
		Changed:  changed,
		Priority: env.PriorityRealtime.String(),
	}
	if d.editLog != nil {
		if err := d.editLog.WriteEdit(rec); err != nil {
			d.printf("edit log: %v", err)
		}
	}
	if d.idx != nil {
		d.idx.WriteEdit(d.sessionID, rec)
	}
}

func (d *driver) stats(n uint64, t float64) protocol.StatsMsg {
	rs := d.renderer.Statistics()
	fc := d.rec.Frame()
	_, resident := d.rec.Resident()
	return protocol.StatsMsg{
		Type:            protocol.TypeStats,
		ProtocolVersion: protocol.Version,
		SessionID:       d.sessionID,
		Frame:           n,
		TimeSec:         t,
		Camera:          [3]float32(d.cam.Position),
		DebugLevel:      d.ctl.DebugLevel(),
		Render: protocol.RenderStats{
			CachedSegments:  rs.CachedSegments,
			CacheBytes:      rs.CacheSize,
			TrackedChunks:   rs.TrackedChunks,
			VisibleChunks:   rs.VisibleChunks,
			VisibleSegments: rs.VisibleSegments,
			Pass1Segments:   rs.Pass1Segments,
			Pass2Segments:   rs.Pass2Segments,
			PendingBuilds:   rs.PendingBuilds,
			Builds:          rs.LastBuilds,
			BuildFailures:   rs.LastFailures,
			BuildMicros:     rs.LastBuildTime.Microseconds(),
		},
		Map: protocol.MapStats{
			Chunks:  d.m.ChunkCount(),
			Pending: d.m.PendingCount(),
		},
		Device: protocol.DeviceStats{
			Pass1Draws: fc.Pass1Draws,
			Pass2Draws: fc.Pass2Draws,
			Vertices:   fc.Vertices,
			DebugLines: fc.DebugLines,
			Resident:   resident,
		},
		Lines: d.ctl.DebugInfo(),
	}
}

func (d *driver) sample(msg protocol.StatsMsg) {
	d.latest.Store(&msg)
	if d.frameLog != nil {
		if err := d.frameLog.WriteFrame(msg); err != nil {
			d.printf("frame log: %v", err)
		}
	}
	if d.idx != nil {
		d.idx.WriteFrame(msg)
	}
	if d.publish != nil {
		d.publish(msg)
	}
}

// Latest returns the most recent sample; safe to call from other goroutines.
func (d *driver) Latest() (protocol.StatsMsg, bool) {
	p := d.latest.Load()
	if p == nil {
		return protocol.StatsMsg{}, false
	}
	return *p, true
}

func (d *driver) handleCommands() {
	if d.commands == nil {
		return
	}
	for {
		select {
		case c := <-d.commands:
			d.apply(c)
		default:
			return
		}
	}
}

func (d *driver) apply(c protocol.CommandMsg) {
	switch c.Command {
	case protocol.CommandDebugLevel:
		d.ctl.SetDebugLevel(c.Level)
	case protocol.CommandCycleDebug:
		d.ctl.CycleDebugInfo()
	case protocol.CommandRebuildAll:
		d.reportRebuild(d.renderer.RebuildAll())
	default:
		d.printf("ignoring command %q", c.Command)
	}
}

// reportRebuild logs a RebuildAll result and forwards failures to the
// debug stream as E_INTERNAL.
func (d *driver) reportRebuild(built int, err error) {
	if err == nil {
		d.printf("rebuild all: %d built", built)
		return
	}
	d.printf("rebuild all: %d built: %v", built, err)
	if d.publishError != nil {
		d.publishError(protocol.NewError(protocol.ErrInternal, fmt.Sprintf("rebuild all: %d built: %v", built, err)))
	}
}

// close ends the session and releases the renderer and sinks.
func (d *driver) close() {
	if d.idx != nil {
		row := d.sessionRow()
		row.EndedAt = time.Now().UTC().Format(time.RFC3339)
		d.idx.EndSession(row)
	}

	d.renderer.Close()
	d.view.Close()

	if d.frameLog != nil {
		if err := d.frameLog.Close(); err != nil {
			d.printf("close frame log: %v", err)
		}
	}
	if d.editLog != nil {
		if err := d.editLog.Close(); err != nil {
			d.printf("close edit log: %v", err)
		}
	}
	if d.idx != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.idx.Flush(ctx); err != nil {
			d.printf("flush index: %v", err)
		}
		cancel()
		st := d.idx.Stats()
		if st.DropFrameTotal+st.DropEditTotal+st.DropSessionTotal > 0 {
			d.printf("index dropped frames=%d edits=%d sessions=%d", st.DropFrameTotal, st.DropEditTotal, st.DropSessionTotal)
		}
		if err := d.idx.Close(); err != nil {
			d.printf("close index: %v", err)
		}
	}
}
