package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Seed int64 `yaml:"seed"`

	ViewRadiusChunks    int `yaml:"view_radius_chunks"`
	ChunkLoadsPerUpdate int `yaml:"chunk_loads_per_update"`

	MaxBuildsPerFrame int     `yaml:"max_builds_per_frame"`
	BuildBudgetMs     float64 `yaml:"build_budget_ms"`

	// DrawDistance overrides the far plane; 0 follows the view radius.
	DrawDistance float32 `yaml:"draw_distance"`
	DebugLevel   int     `yaml:"debug_level"`

	DisplayWidth  int `yaml:"display_width"`
	DisplayHeight int `yaml:"display_height"`

	Frames           int `yaml:"frames"`
	EditEveryFrames  int `yaml:"edit_every_frames"`
	StatsEveryFrames int `yaml:"stats_every_frames"`
}

func Defaults() Tuning {
	return Tuning{
		Seed:                1337,
		ViewRadiusChunks:    4,
		ChunkLoadsPerUpdate: 4,
		MaxBuildsPerFrame:   8,
		BuildBudgetMs:       4,
		DebugLevel:          0,
		DisplayWidth:        1280,
		DisplayHeight:       720,
		Frames:              600,
		EditEveryFrames:     30,
		StatsEveryFrames:    10,
	}
}

// Load reads render.yaml over the defaults. An empty path returns the
// defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("render.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("render.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	if t.ChunkLoadsPerUpdate <= 0 {
		t.ChunkLoadsPerUpdate = 1
	}
	if t.DebugLevel < 0 {
		t.DebugLevel = 0
	}
	if t.DebugLevel > 2 {
		t.DebugLevel = 2
	}
	if t.DisplayWidth <= 0 {
		t.DisplayWidth = 1
	}
	if t.DisplayHeight <= 0 {
		t.DisplayHeight = 1
	}
	if t.StatsEveryFrames <= 0 {
		t.StatsEveryFrames = 1
	}
	if t.EditEveryFrames < 0 {
		t.EditEveryFrames = 0
	}
}

func (t Tuning) Validate() error {
	if t.ViewRadiusChunks < 0 || t.ViewRadiusChunks > 32 {
		return fmt.Errorf("view_radius_chunks out of range [0,32]: %d", t.ViewRadiusChunks)
	}
	if t.MaxBuildsPerFrame < 0 {
		return fmt.Errorf("max_builds_per_frame must be >= 0: %d", t.MaxBuildsPerFrame)
	}
	if t.BuildBudgetMs < 0 {
		return fmt.Errorf("build_budget_ms must be >= 0: %v", t.BuildBudgetMs)
	}
	if t.MaxBuildsPerFrame == 0 && t.BuildBudgetMs == 0 {
		return errors.New("max_builds_per_frame and build_budget_ms cannot both be 0")
	}
	if t.DrawDistance < 0 {
		return fmt.Errorf("draw_distance must be >= 0: %v", t.DrawDistance)
	}
	if t.Frames < 0 {
		return fmt.Errorf("frames must be >= 0: %d", t.Frames)
	}
	return nil
}

func (t Tuning) BuildBudget() time.Duration {
	return time.Duration(t.BuildBudgetMs * float64(time.Millisecond))
}
