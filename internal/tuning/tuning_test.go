package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_RenderYAML(t *testing.T) {
	cfg, err := Load("../../configs/render.yaml")
	if err != nil {
		t.Fatalf("load render.yaml: %v", err)
	}
	if cfg.ViewRadiusChunks <= 0 || cfg.MaxBuildsPerFrame <= 0 {
		t.Fatalf("unexpected tuning %+v", cfg)
	}
	if cfg.BuildBudget() <= 0 {
		t.Fatalf("build budget should be positive")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("empty path should yield defaults, got %+v", cfg)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.yaml")
	if err := os.WriteFile(path, []byte("view_radius_chunks: 2\ndebug_level: 7\nbuild_budget_ms: 1.5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ViewRadiusChunks != 2 || cfg.MaxBuildsPerFrame != Defaults().MaxBuildsPerFrame {
		t.Fatalf("unexpected tuning %+v", cfg)
	}
	if cfg.DebugLevel != 2 {
		t.Fatalf("debug_level should clamp to 2, got %d", cfg.DebugLevel)
	}
	if cfg.BuildBudget() != 1500*time.Microsecond {
		t.Fatalf("budget=%v", cfg.BuildBudget())
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.yaml")
	if err := os.WriteFile(path, []byte("max_builds_per_frame: 0\nbuild_budget_ms: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.HasPrefix(err.Error(), "render.yaml: ") {
		t.Fatalf("expected render.yaml validation error, got %v", err)
	}
}
