package main

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"voxelview.ai/internal/client"
	"voxelview.ai/internal/env"
	"voxelview.ai/internal/persistence/statslog"
	"voxelview.ai/internal/protocol"
	"voxelview.ai/internal/transport/debugws"
	"voxelview.ai/internal/tuning"
)

func smallTuning() tuning.Tuning {
	tune := tuning.Defaults()
	tune.ViewRadiusChunks = 1
	tune.ChunkLoadsPerUpdate = 9
	tune.EditEveryFrames = 0
	tune.StatsEveryFrames = 5
	tune.Normalize()
	return tune
}

func TestDriverSamplesAndSettles(t *testing.T) {
	d := newDriver(smallTuning(), "s1", nil)
	defer d.close()

	var got []protocol.StatsMsg
	d.publish = func(m protocol.StatsMsg) { got = append(got, m) }

	if err := d.run(context.Background(), 20, 0); err != nil {
		t.Fatalf("run: %v", err)
	}
	if d.frame != 20 {
		t.Fatalf("frame=%d want 20", d.frame)
	}
	if len(got) != 4 {
		t.Fatalf("samples=%d want 4", len(got))
	}
	last := got[3]
	if last.Frame != 20 || last.SessionID != "s1" || last.Type != protocol.TypeStats || last.ProtocolVersion != protocol.Version {
		t.Fatalf("unexpected sample: %+v", last)
	}
	if last.Render.TrackedChunks != 9 || last.Map.Pending != 0 {
		t.Fatalf("tracked=%d pending=%d", last.Render.TrackedChunks, last.Map.Pending)
	}
	if latest, ok := d.Latest(); !ok || latest.Frame != 20 {
		t.Fatalf("latest=%+v ok=%v", latest, ok)
	}

	if !d.settle(context.Background(), 200) {
		t.Fatalf("renderer did not go idle")
	}
	st := d.renderer.Statistics()
	if st.PendingBuilds != 0 || st.CachedSegments == 0 {
		t.Fatalf("after settle: %+v", st)
	}
}

func TestDriverEditsToggleGlassPillar(t *testing.T) {
	dir := t.TempDir()
	tune := smallTuning()
	tune.EditEveryFrames = 1
	tune.StatsEveryFrames = 1

	d := newDriver(tune, "s2", nil)
	d.editLog = statslog.NewEditLogger(dir, statslog.WriterOptions{})
	d.frameLog = statslog.NewFrameLogger(dir, statslog.WriterOptions{})

	if err := d.run(context.Background(), 1, 0); err != nil {
		t.Fatalf("run: %v", err)
	}
	if d.pillar == nil {
		t.Fatalf("first edit should raise a pillar")
	}
	at := *d.pillar
	if b, ok := d.m.GetBlock(at[0], pillarMaxY, at[2]); !ok || b != env.BlockGlass {
		t.Fatalf("pillar block=%d ok=%v", b, ok)
	}

	if err := d.run(context.Background(), 2, 0); err != nil {
		t.Fatalf("run: %v", err)
	}
	if d.pillar != nil || d.edits != 2 {
		t.Fatalf("pillar=%v edits=%d", d.pillar, d.edits)
	}
	if b, _ := d.m.GetBlock(at[0], pillarMaxY, at[2]); b != env.BlockAir {
		t.Fatalf("pillar not cleared, block=%d", b)
	}
	d.close()

	var edits []statslog.EditRecord
	if err := statslog.ReadEdits(dir, func(e statslog.EditRecord) error {
		edits = append(edits, e)
		return nil
	}); err != nil {
		t.Fatalf("read edits: %v", err)
	}
	if len(edits) != 2 || edits[0].Block != env.BlockGlass || edits[1].Block != env.BlockAir {
		t.Fatalf("unexpected edits: %+v", edits)
	}
	if edits[0].Priority != "REALTIME" || edits[0].Min != edits[1].Min {
		t.Fatalf("unexpected edit records: %+v", edits)
	}

	frames := 0
	if err := statslog.ReadFrames(dir, func(protocol.StatsMsg) error {
		frames++
		return nil
	}); err != nil {
		t.Fatalf("read frames: %v", err)
	}
	if frames != 2 {
		t.Fatalf("frames logged=%d want 2", frames)
	}
}

func TestDriverAppliesCommands(t *testing.T) {
	var buf bytes.Buffer
	d := newDriver(smallTuning(), "s3", log.New(&buf, "", 0))
	defer d.close()

	cmds := make(chan protocol.CommandMsg, 4)
	d.commands = cmds

	cmds <- protocol.CommandMsg{Command: protocol.CommandDebugLevel, Level: client.DebugInfoVisuals}
	d.handleCommands()
	if d.ctl.DebugLevel() != client.DebugInfoVisuals || !d.renderer.DebugVisuals() {
		t.Fatalf("debug level=%d visuals=%v", d.ctl.DebugLevel(), d.renderer.DebugVisuals())
	}

	cmds <- protocol.CommandMsg{Command: protocol.CommandCycleDebug}
	d.handleCommands()
	if d.ctl.DebugLevel() != client.DebugInfoOff || d.renderer.DebugVisuals() {
		t.Fatalf("cycle should wrap to off, got %d", d.ctl.DebugLevel())
	}

	if err := d.run(context.Background(), 5, 0); err != nil {
		t.Fatalf("run: %v", err)
	}
	d.settle(context.Background(), 200)
	cached := d.renderer.Cache().Count()

	cmds <- protocol.CommandMsg{Command: protocol.CommandRebuildAll}
	cmds <- protocol.CommandMsg{Command: "WARP"}
	d.handleCommands()
	if d.renderer.Cache().Count() != cached {
		t.Fatalf("rebuild changed cache count %d -> %d", cached, d.renderer.Cache().Count())
	}
	out := buf.String()
	if !strings.Contains(out, "rebuild all: ") || !strings.Contains(out, `ignoring command "WARP"`) {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestRebuildFailureReachesDebugStream(t *testing.T) {
	var buf bytes.Buffer
	d := newDriver(smallTuning(), "s5", log.New(&buf, "", 0))
	defer d.close()

	var got []protocol.ErrorMsg
	d.publishError = func(e protocol.ErrorMsg) { got = append(got, e) }

	d.reportRebuild(3, nil)
	if len(got) != 0 {
		t.Fatalf("success should not publish errors: %+v", got)
	}
	d.reportRebuild(1, errors.New("chunk not loaded"))
	if len(got) != 1 || got[0].Code != protocol.ErrInternal || got[0].Type != protocol.TypeError {
		t.Fatalf("unexpected errors: %+v", got)
	}
	if !strings.Contains(got[0].Message, "chunk not loaded") || !strings.Contains(buf.String(), "rebuild all: 1 built") {
		t.Fatalf("message=%q log=%q", got[0].Message, buf.String())
	}
}

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	msg := protocol.StatsMsg{SessionID: "s4", Frame: 42}
	msg.Render.PendingBuilds = 3
	writeMetrics(&buf, msg, debugws.Stats{Clients: 2, Dropped: 7})

	out := buf.String()
	for _, want := range []string{
		`voxelview_frame{session="s4"} 42`,
		`voxelview_pending_builds{session="s4"} 3`,
		"voxelview_debug_clients 2",
		"voxelview_debug_dropped_total 7",
		"# TYPE voxelview_debug_dropped_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
}
