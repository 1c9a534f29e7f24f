package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"voxelview.ai/internal/persistence/indexdb"
	"voxelview.ai/internal/persistence/statslog"
	"voxelview.ai/internal/protocol"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory")
		dbPath  = flag.String("db", "", "sqlite index path (default: <data>/index/viewer.sqlite; \"-\" to skip)")
		session = flag.String("session", "", "only summarize this session id")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[statsdump] ", log.LstdFlags)

	sums, err := summarizeLogs(*dataDir, *session)
	if err != nil {
		logger.Fatalf("read stats logs: %v", err)
	}
	printLogSummaries(os.Stdout, sums)

	p := *dbPath
	if p == "-" {
		return
	}
	if p == "" {
		p = filepath.Join(*dataDir, "index", "viewer.sqlite")
	}
	if _, err := os.Stat(p); err != nil {
		logger.Printf("no index at %s", p)
		return
	}
	idx, err := indexdb.OpenSQLite(p, indexdb.Options{Logger: logger})
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := printIndex(ctx, os.Stdout, idx, *session); err != nil {
		logger.Fatalf("query index: %v", err)
	}
}

// logSummary aggregates the frame log records of one session.
type logSummary struct {
	SessionID  string
	Frames     int
	FirstFrame uint64
	LastFrame  uint64
	VisibleSum int
	MaxPending int
	MaxCache   int64
	Builds     int
	Failures   int
	BuildMicro int64
	Edits      int
}

func (s logSummary) avgVisible() float64 {
	if s.Frames == 0 {
		return 0
	}
	return float64(s.VisibleSum) / float64(s.Frames)
}

// summarizeLogs folds the frame and edit logs under dataDir. Edit records
// carry no session id, so they are only counted when a single session is
// present or selected.
func summarizeLogs(dataDir, only string) ([]logSummary, error) {
	byID := map[string]*logSummary{}
	var order []string
	err := statslog.ReadFrames(dataDir, func(m protocol.StatsMsg) error {
		if only != "" && m.SessionID != only {
			return nil
		}
		s := byID[m.SessionID]
		if s == nil {
			s = &logSummary{SessionID: m.SessionID, FirstFrame: m.Frame}
			byID[m.SessionID] = s
			order = append(order, m.SessionID)
		}
		s.Frames++
		s.LastFrame = m.Frame
		s.VisibleSum += m.Render.VisibleSegments
		s.MaxPending = max(s.MaxPending, m.Render.PendingBuilds)
		s.MaxCache = max(s.MaxCache, m.Render.CacheBytes)
		s.Builds += m.Render.Builds
		s.Failures += m.Render.BuildFailures
		s.BuildMicro += m.Render.BuildMicros
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]logSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	if len(out) != 1 {
		return out, nil
	}
	err = statslog.ReadEdits(dataDir, func(statslog.EditRecord) error {
		out[0].Edits++
		return nil
	})
	return out, err
}

func printLogSummaries(w io.Writer, sums []logSummary) {
	if len(sums) == 0 {
		fmt.Fprintln(w, "logs: no frames")
		return
	}
	for _, s := range sums {
		fmt.Fprintf(w, "logs %s: frames=%d (%d..%d) avg_visible=%.1f max_pending=%d max_cache=%dK builds=%d failures=%d build_ms=%.1f edits=%d\n",
			s.SessionID, s.Frames, s.FirstFrame, s.LastFrame, s.avgVisible(), s.MaxPending, s.MaxCache/1000,
			s.Builds, s.Failures, float64(s.BuildMicro)/1000, s.Edits)
	}
}

func printIndex(ctx context.Context, w io.Writer, idx *indexdb.SQLiteIndex, only string) error {
	sessions, err := idx.Sessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if only != "" && s.ID != only {
			continue
		}
		sum, err := idx.SummarizeFrames(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("summarize %s: %w", s.ID, err)
		}
		edits, err := idx.EditCount(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("count edits %s: %w", s.ID, err)
		}
		ended := s.EndedAt
		if ended == "" {
			ended = "running"
		}
		fmt.Fprintf(w, "index %s: seed=%d radius=%d started=%s ended=%s frames=%d builds=%d failures=%d\n",
			s.ID, s.Seed, s.ViewRadiusChunks, s.StartedAt, ended, s.Frames, s.Builds, s.Failures)
		fmt.Fprintf(w, "  sampled=%d avg_visible=%.1f max_pending=%d max_cache=%dK build_ms=%.1f edits=%d\n",
			sum.Frames, sum.AvgVisible, sum.MaxPending, sum.MaxCacheBytes/1000, float64(sum.TotalBuildMicro)/1000, edits)
	}
	return nil
}
