package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"voxelview.ai/internal/persistence/indexdb"
	"voxelview.ai/internal/persistence/statslog"
	"voxelview.ai/internal/protocol"
	"voxelview.ai/internal/transport/debugws"
	"voxelview.ai/internal/tuning"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "./configs/render.yaml", "path to render.yaml (empty for built-in defaults)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		listen     = flag.String("listen", "127.0.0.1:8091", "debug http listen address for /v1/debug/ws, /metrics and /healthz (empty to disable)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite session index")
		disableLog = flag.Bool("disable_statslog", false, "disable jsonl frame and edit logs")
		frames     = flag.Int("frames", -1, "frames to render; overrides render.yaml when >= 0 (0 runs until interrupted)")
		fps        = flag.Int("fps", framesPerSecond, "frame rate cap (0 renders as fast as possible)")
		settle     = flag.Int("settle_frames", 600, "frames to keep rendering after the run while builds are pending")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[viewer] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(strings.TrimSpace(*tuningPath))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning %s not found, using defaults", *tuningPath)
		tune = tuning.Defaults()
		tune.Normalize()
	}
	if *frames >= 0 {
		tune.Frames = *frames
	}

	sessionID := uuid.NewString()
	d := newDriver(tune, sessionID, logger)

	_ = os.MkdirAll(*dataDir, 0o755)
	if !*disableLog {
		d.frameLog = statslog.NewFrameLogger(*dataDir, statslog.WriterOptions{})
		d.editLog = statslog.NewEditLogger(*dataDir, statslog.WriterOptions{})
	}
	if !*disableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "viewer.sqlite"), indexdb.Options{Logger: logger})
		if err != nil {
			logger.Printf("index disabled: %v", err)
		} else {
			d.idx = idx
		}
	}

	addr := strings.TrimSpace(*listen)
	var dbg *debugws.Server
	if addr != "" {
		dbg = debugws.NewServer(sessionID, d.worldParams(), logger)
		d.publish = dbg.Publish
		d.publishError = dbg.PublishError
		d.commands = dbg.Commands()
	}

	interval := time.Duration(0)
	if *fps > 0 {
		interval = time.Second / time.Duration(*fps)
	}

	ctx, cancel := signalContext()
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if dbg != nil {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(200)
			_, _ = rw.Write([]byte("ok"))
		})
		mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
			msg, _ := d.Latest()
			writeMetrics(rw, msg, dbg.Stats())
		})
		mux.HandleFunc("/v1/debug/ws", dbg.WSHandler())

		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Printf("debug listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		// Finishing the run stops the debug server too.
		defer cancel()
		d.start()
		logger.Printf("session %s: seed=%d radius=%d frames=%d", sessionID, tune.Seed, tune.ViewRadiusChunks, tune.Frames)
		if err := d.run(gctx, tune.Frames, interval); err != nil {
			return err
		}
		if *settle > 0 && gctx.Err() == nil {
			if !d.settle(gctx, *settle) {
				logger.Printf("builds still pending after %d settle frames", *settle)
			}
		}
		return nil
	})

	err = g.Wait()
	builds, failures := d.renderer.Queue().Totals()
	logger.Printf("session %s done: frames=%d builds=%d failures=%d", sessionID, d.frame, builds, failures)
	d.close()
	if err != nil {
		logger.Printf("stopped: %v", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// writeMetrics renders the latest sample in the Prometheus text format.
func writeMetrics(w io.Writer, m protocol.StatsMsg, ws debugws.Stats) {
	gauge := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s{session=%q} %v\n", name, m.SessionID, v)
	}
	gauge("voxelview_frame", "Last sampled frame number.", m.Frame)
	gauge("voxelview_cached_segments", "Segments holding geometry.", m.Render.CachedSegments)
	gauge("voxelview_cache_bytes", "Geometry bytes held by cached segments.", m.Render.CacheBytes)
	gauge("voxelview_tracked_chunks", "Chunks with render data.", m.Render.TrackedChunks)
	gauge("voxelview_visible_segments", "Segments drawn in the last sampled frame.", m.Render.VisibleSegments)
	gauge("voxelview_pending_builds", "Segments waiting in the build queue.", m.Render.PendingBuilds)
	gauge("voxelview_build_us", "Build time of the last sampled frame in microseconds.", m.Render.BuildMicros)
	gauge("voxelview_map_pending_chunks", "Chunks waiting to load.", m.Map.Pending)
	gauge("voxelview_resident_bytes", "Geometry bytes resident on the device.", m.Device.Resident)

	fmt.Fprintf(w, "# HELP voxelview_debug_clients Connected debug inspectors.\n")
	fmt.Fprintf(w, "# TYPE voxelview_debug_clients gauge\n")
	fmt.Fprintf(w, "voxelview_debug_clients %d\n", ws.Clients)
	fmt.Fprintf(w, "# HELP voxelview_debug_dropped_total Stats messages dropped for slow inspectors.\n")
	fmt.Fprintf(w, "# TYPE voxelview_debug_dropped_total counter\n")
	fmt.Fprintf(w, "voxelview_debug_dropped_total %d\n", ws.Dropped)
}
