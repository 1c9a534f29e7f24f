package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"voxelview.ai/internal/persistence/indexdb"
	"voxelview.ai/internal/persistence/statslog"
	"voxelview.ai/internal/protocol"
)

func frame(session string, n uint64, visible, pending, builds int) protocol.StatsMsg {
	m := protocol.StatsMsg{Type: protocol.TypeStats, ProtocolVersion: protocol.Version, SessionID: session, Frame: n}
	m.Render.VisibleSegments = visible
	m.Render.PendingBuilds = pending
	m.Render.Builds = builds
	m.Render.CacheBytes = int64(visible) * 1000
	return m
}

func TestSummarizeLogs(t *testing.T) {
	dir := t.TempDir()
	fl := statslog.NewFrameLogger(dir, statslog.WriterOptions{})
	for _, m := range []protocol.StatsMsg{
		frame("a", 10, 4, 8, 2),
		frame("a", 20, 6, 3, 5),
		frame("b", 10, 1, 0, 1),
	} {
		if err := fl.WriteFrame(m); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	el := statslog.NewEditLogger(dir, statslog.WriterOptions{})
	_ = el.WriteEdit(statslog.EditRecord{Frame: 10, Changed: 4})
	_ = el.Close()

	sums, err := summarizeLogs(dir, "")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(sums) != 2 || sums[0].SessionID != "a" || sums[1].SessionID != "b" {
		t.Fatalf("unexpected summaries: %+v", sums)
	}
	a := sums[0]
	if a.Frames != 2 || a.FirstFrame != 10 || a.LastFrame != 20 || a.MaxPending != 8 || a.Builds != 7 || a.MaxCache != 6000 {
		t.Fatalf("unexpected summary: %+v", a)
	}
	if a.avgVisible() != 5 || a.Edits != 0 {
		t.Fatalf("avg=%v edits=%d", a.avgVisible(), a.Edits)
	}

	only, err := summarizeLogs(dir, "b")
	if err != nil {
		t.Fatalf("summarize b: %v", err)
	}
	if len(only) != 1 || only[0].Frames != 1 || only[0].Edits != 1 {
		t.Fatalf("unexpected filtered summary: %+v", only)
	}

	var buf bytes.Buffer
	printLogSummaries(&buf, only)
	if !strings.Contains(buf.String(), "logs b: frames=1 (10..10)") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestPrintIndex(t *testing.T) {
	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"), indexdb.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	idx.StartSession(indexdb.SessionRow{ID: "a", StartedAt: "2026-01-01T00:00:00Z", Seed: 7, ViewRadiusChunks: 2})
	idx.WriteFrame(frame("a", 10, 4, 2, 3))
	idx.WriteEdit("a", statslog.EditRecord{Frame: 10, Changed: 1})
	ctx := context.Background()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	var buf bytes.Buffer
	if err := printIndex(ctx, &buf, idx, ""); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"index a: seed=7 radius=2", "ended=running", "sampled=1", "edits=1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}
}
