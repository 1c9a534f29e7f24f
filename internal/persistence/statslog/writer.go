// Package statslog writes and reads hourly rotated, zstd compressed JSONL
// logs of per-frame render statistics and world edits.
package statslog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelview.ai/internal/protocol"
)

const hourLayout = "2006-01-02-15"

type WriterOptions struct {
	// Now defaults to time.Now; it picks the hourly file.
	Now func() time.Time
	// Level defaults to zstd.SpeedFastest.
	Level zstd.EncoderLevel
}

// JSONLZstdWriter appends JSON lines to <dir>/<prefix>-<hour>.jsonl.zst,
// starting a new file when the UTC hour changes.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	opts    WriterOptions

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	records uint64
}

func NewJSONLZstdWriter(baseDir, prefix string, opts WriterOptions) *JSONLZstdWriter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Level == 0 {
		opts.Level = zstd.SpeedFastest
	}
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		opts:    opts,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Records reports how many lines were written.
func (w *JSONLZstdWriter) Records() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("statslog: marshal: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.opts.Now().UTC().Format(hourLayout)
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.records++
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(w.opts.Level))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

const (
	FramesPrefix = "frames"
	EditsPrefix  = "edits"
)

// FrameLogger writes one STATS record per sampled frame.
type FrameLogger struct{ w *JSONLZstdWriter }

func NewFrameLogger(dataDir string, opts WriterOptions) *FrameLogger {
	return &FrameLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, FramesPrefix), FramesPrefix, opts)}
}

func (l *FrameLogger) WriteFrame(v protocol.StatsMsg) error { return l.w.Write(v) }
func (l *FrameLogger) Records() uint64                      { return l.w.Records() }
func (l *FrameLogger) Close() error                         { return l.w.Close() }

// EditRecord is one world edit applied by the driver.
type EditRecord struct {
	Frame    uint64 `json:"frame"`
	Min      [3]int `json:"min"`
	Max      [3]int `json:"max"`
	Block    uint16 `json:"block"`
	Changed  int    `json:"changed"`
	Priority string `json:"priority"`
}

// EditLogger writes world edits.
type EditLogger struct{ w *JSONLZstdWriter }

func NewEditLogger(dataDir string, opts WriterOptions) *EditLogger {
	return &EditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, EditsPrefix), EditsPrefix, opts)}
}

func (l *EditLogger) WriteEdit(v EditRecord) error { return l.w.Write(v) }
func (l *EditLogger) Close() error                 { return l.w.Close() }
