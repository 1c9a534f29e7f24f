package indexdb

import (
	"context"
	"database/sql"
)

// FrameSummary aggregates the indexed frames of one session.
type FrameSummary struct {
	Frames          int
	AvgVisible      float64
	MaxPending      int
	MaxCacheBytes   int64
	TotalBuilds     int64
	TotalFailures   int64
	TotalBuildMicro int64
}

func (s *SQLiteIndex) Sessions(ctx context.Context) ([]SessionRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, started_at, COALESCE(ended_at,''), seed, view_radius, frames, builds, failures FROM sessions ORDER BY started_at, session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var (
			r                        SessionRow
			frames, builds, failures int64
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.EndedAt, &r.Seed, &r.ViewRadiusChunks, &frames, &builds, &failures); err != nil {
			return nil, err
		}
		r.Frames, r.Builds, r.Failures = uint64(frames), uint64(builds), uint64(failures)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) SummarizeFrames(ctx context.Context, sessionID string) (FrameSummary, error) {
	var (
		sum FrameSummary
		avg sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), AVG(visible_segments), COALESCE(MAX(pending_builds),0), COALESCE(MAX(cache_bytes),0), COALESCE(SUM(builds),0), COALESCE(SUM(build_failures),0), COALESCE(SUM(build_us),0) FROM frames WHERE session_id=?`, sessionID).
		Scan(&sum.Frames, &avg, &sum.MaxPending, &sum.MaxCacheBytes, &sum.TotalBuilds, &sum.TotalFailures, &sum.TotalBuildMicro)
	if err != nil {
		return FrameSummary{}, err
	}
	sum.AvgVisible = avg.Float64
	return sum, nil
}

// EditCount reports the indexed edits of a session.
func (s *SQLiteIndex) EditCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edits WHERE session_id=?`, sessionID).Scan(&n)
	return n, err
}
