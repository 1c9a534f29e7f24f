// Package indexdb keeps a queryable SQLite index of viewer sessions, frame
// statistics and world edits. The JSONL stats logs remain the source of
// truth; the index drops writes rather than stall the frame loop.
package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelview.ai/internal/persistence/statslog"
	"voxelview.ai/internal/protocol"
)

var ErrClosed = errors.New("index closed")

type Options struct {
	QueueSize     int
	CommitEvery   int
	CommitMaxWait time.Duration
	Logger        *log.Logger
}

type SQLiteIndex struct {
	db   *sql.DB
	opts Options

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropFrame   atomic.Uint64
	dropEdit    atomic.Uint64
	dropSession atomic.Uint64
	writeErrs   atomic.Uint64
}

type reqKind int

const (
	reqSessionStart reqKind = iota + 1
	reqSessionEnd
	reqFrame
	reqEdit
	reqFlush
)

type req struct {
	kind reqKind

	session SessionRow
	frame   protocol.StatsMsg
	edit    statslog.EditRecord
	id      string
	done    chan struct{}
}

// SessionRow summarizes one viewer run.
type SessionRow struct {
	ID               string
	StartedAt        string
	EndedAt          string
	Seed             int64
	ViewRadiusChunks int
	Frames           uint64
	Builds           uint64
	Failures         uint64
}

type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	DropFrameTotal   uint64
	DropEditTotal    uint64
	DropSessionTotal uint64
	WriteErrTotal    uint64
}

func OpenSQLite(path string, opts Options) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 8192
	}
	if opts.CommitEvery <= 0 {
		opts.CommitEvery = 500
	}
	if opts.CommitMaxWait <= 0 {
		opts.CommitMaxWait = time.Second
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:   db,
		opts: opts,
		ch:   make(chan req, opts.QueueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			seed INTEGER NOT NULL,
			view_radius INTEGER NOT NULL,
			frames INTEGER NOT NULL DEFAULT 0,
			builds INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS frames (
			session_id TEXT NOT NULL,
			frame INTEGER NOT NULL,
			time_sec REAL NOT NULL,
			cached_segments INTEGER NOT NULL,
			cache_bytes INTEGER NOT NULL,
			visible_segments INTEGER NOT NULL,
			pending_builds INTEGER NOT NULL,
			builds INTEGER NOT NULL,
			build_failures INTEGER NOT NULL,
			build_us INTEGER NOT NULL,
			draws INTEGER NOT NULL,
			vertices INTEGER NOT NULL,
			PRIMARY KEY (session_id, frame)
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			session_id TEXT NOT NULL,
			frame INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			min_x INTEGER NOT NULL,
			min_y INTEGER NOT NULL,
			min_z INTEGER NOT NULL,
			max_x INTEGER NOT NULL,
			max_y INTEGER NOT NULL,
			max_z INTEGER NOT NULL,
			block INTEGER NOT NULL,
			changed INTEGER NOT NULL,
			priority TEXT NOT NULL,
			PRIMARY KEY (session_id, frame, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_pos ON edits(min_x, min_z, min_y);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued writes and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) StartSession(row SessionRow) {
	if row.StartedAt == "" {
		row.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	s.enqueue(req{kind: reqSessionStart, session: row}, &s.dropSession)
}

func (s *SQLiteIndex) EndSession(row SessionRow) {
	if row.EndedAt == "" {
		row.EndedAt = time.Now().UTC().Format(time.RFC3339)
	}
	s.enqueue(req{kind: reqSessionEnd, session: row}, &s.dropSession)
}

func (s *SQLiteIndex) WriteFrame(m protocol.StatsMsg) {
	s.enqueue(req{kind: reqFrame, frame: m}, &s.dropFrame)
}

func (s *SQLiteIndex) WriteEdit(sessionID string, e statslog.EditRecord) {
	s.enqueue(req{kind: reqEdit, id: sessionID, edit: e}, &s.dropEdit)
}

// Flush waits until everything queued so far is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropFrameTotal:   s.dropFrame.Load(),
		DropEditTotal:    s.dropEdit.Load(),
		DropSessionTotal: s.dropSession.Load(),
		WriteErrTotal:    s.writeErrs.Load(),
	}
}

func (s *SQLiteIndex) printf(format string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Printf(format, args...)
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx         *sql.Tx
		opCount    int
		lastCommit = time.Now()
		editSeq    = map[string]int{}
		editFrame  = map[string]uint64{}
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrs.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrs.Add(1)
			s.printf("index commit: %v", err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(query string, args ...any) {
		if tx == nil {
			return
		}
		if _, err := tx.Exec(query, args...); err != nil {
			s.writeErrs.Add(1)
			s.printf("index write: %v", err)
			_ = tx.Rollback()
			tx = nil
			return
		}
		opCount++
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSessionStart:
			se := r.session
			exec(`INSERT OR REPLACE INTO sessions(session_id,started_at,seed,view_radius) VALUES(?,?,?,?)`,
				se.ID, se.StartedAt, se.Seed, se.ViewRadiusChunks)

		case reqSessionEnd:
			se := r.session
			exec(`UPDATE sessions SET ended_at=?, frames=?, builds=?, failures=? WHERE session_id=?`,
				se.EndedAt, int64(se.Frames), int64(se.Builds), int64(se.Failures), se.ID)

		case reqFrame:
			f := r.frame
			exec(`INSERT OR REPLACE INTO frames(session_id,frame,time_sec,cached_segments,cache_bytes,visible_segments,pending_builds,builds,build_failures,build_us,draws,vertices) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
				f.SessionID, int64(f.Frame), f.TimeSec,
				f.Render.CachedSegments, f.Render.CacheBytes, f.Render.VisibleSegments, f.Render.PendingBuilds,
				f.Render.Builds, f.Render.BuildFailures, f.Render.BuildMicros,
				f.Device.Pass1Draws+f.Device.Pass2Draws, f.Device.Vertices)

		case reqEdit:
			e := r.edit
			if editFrame[r.id] != e.Frame {
				editFrame[r.id] = e.Frame
				editSeq[r.id] = 0
			}
			seq := editSeq[r.id]
			editSeq[r.id]++
			exec(`INSERT OR REPLACE INTO edits(session_id,frame,seq,min_x,min_y,min_z,max_x,max_y,max_z,block,changed,priority) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
				r.id, int64(e.Frame), seq,
				e.Min[0], e.Min[1], e.Min[2], e.Max[0], e.Max[1], e.Max[2],
				int64(e.Block), e.Changed, e.Priority)
		}
		if tx != nil && (opCount >= s.opts.CommitEvery || time.Since(lastCommit) >= s.opts.CommitMaxWait) {
			commit()
		}
	}
	commit()
}
