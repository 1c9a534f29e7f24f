package protocol

// HELLO (inspector -> viewer)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// EveryFrames thins the stats stream; 0 uses the server default.
	EveryFrames int `json:"every_frames,omitempty"`
}

// WELCOME (viewer -> inspector)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	Seed             int64  `json:"seed"`
	ViewRadiusChunks int    `json:"view_radius_chunks"`
	ChunkSize        [3]int `json:"chunk_size"`
	SegmentsY        int    `json:"segments_y"`
}

// STATS (viewer -> inspector), one per sampled frame.
type StatsMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	Frame           uint64      `json:"frame"`
	TimeSec         float64     `json:"time_sec"`
	Camera          [3]float32  `json:"camera"`
	DebugLevel      int         `json:"debug_level"`
	Render          RenderStats `json:"render"`
	Map             MapStats    `json:"map"`
	Device          DeviceStats `json:"device"`
	Lines           []string    `json:"lines,omitempty"`
}

type RenderStats struct {
	CachedSegments  int   `json:"cached_segments"`
	CacheBytes      int64 `json:"cache_bytes"`
	TrackedChunks   int   `json:"tracked_chunks"`
	VisibleChunks   int   `json:"visible_chunks"`
	VisibleSegments int   `json:"visible_segments"`
	Pass1Segments   int   `json:"pass1_segments"`
	Pass2Segments   int   `json:"pass2_segments"`
	PendingBuilds   int   `json:"pending_builds"`
	Builds          int   `json:"builds"`
	BuildFailures   int   `json:"build_failures"`
	BuildMicros     int64 `json:"build_us"`
}

type MapStats struct {
	Chunks  int `json:"chunks"`
	Pending int `json:"pending"`
}

type DeviceStats struct {
	Pass1Draws int   `json:"pass1_draws"`
	Pass2Draws int   `json:"pass2_draws"`
	Vertices   int64 `json:"vertices"`
	DebugLines int   `json:"debug_lines"`
	Resident   int64 `json:"resident_bytes"`
}

// Commands an inspector may send.
const (
	CommandDebugLevel = "DEBUG_LEVEL"
	CommandCycleDebug = "CYCLE_DEBUG"
	CommandRebuildAll = "REBUILD_ALL"
)

// COMMAND (inspector -> viewer)
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Command         string `json:"command"`
	Level           int    `json:"level,omitempty"`
}

// ERROR (viewer -> inspector)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
