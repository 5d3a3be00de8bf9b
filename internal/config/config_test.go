package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, path, exists, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("expected missing config file at %s", path)
	}
	if cfg.Picker.Mode != "hybrid" || cfg.Picker.Total != 8 {
		t.Fatalf("unexpected picker defaults: %+v", cfg.Picker)
	}
	if cfg.Render.CropScale != 3.0 {
		t.Fatalf("unexpected crop scale: %v", cfg.Render.CropScale)
	}
	if !filepath.IsAbs(cfg.Paths.QueueDir) {
		t.Fatalf("queue dir not absolute: %s", cfg.Paths.QueueDir)
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
library_dir = "` + filepath.Join(dir, "lib") + `"
queue_dir = "` + filepath.Join(dir, "queues") + `"

[picker]
mode = "Motion"
total = 3

[pipeline]
review_action = "APPROVE"

[logging]
format = "JSON"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Picker.Mode != "motion" {
		t.Fatalf("mode not lowercased: %q", cfg.Picker.Mode)
	}
	if cfg.Picker.Total != 3 {
		t.Fatalf("total not applied: %d", cfg.Picker.Total)
	}
	if cfg.Pipeline.ReviewAction != "approve" {
		t.Fatalf("review action not normalized: %q", cfg.Pipeline.ReviewAction)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("log format not normalized: %q", cfg.Logging.Format)
	}
	if cfg.Picker.MaxPerSession != 2 {
		t.Fatalf("unset fields should keep defaults, got %d", cfg.Picker.MaxPerSession)
	}
}

func TestLoadRejectsUnknownPickerMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "[picker]\nmode = \"loudest\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "picker.mode") {
		t.Fatalf("expected picker.mode validation error, got %v", err)
	}
}

func TestValidateDecisionBounds(t *testing.T) {
	cfg := Default()
	cfg.Decision.MinDurationSec = 30
	cfg.Decision.MaxDurationSec = 20
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected duration bounds error")
	}
}

func TestPublishZoneOffset(t *testing.T) {
	cfg := Default()
	zone := cfg.PublishZone()
	if name := zone.String(); name != "+09:00" {
		t.Fatalf("unexpected zone name: %q", name)
	}

	cfg.Picker.PublishOffsetMinutes = -330
	if name := cfg.PublishZone().String(); name != "-05:30" {
		t.Fatalf("unexpected negative zone name: %q", name)
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/recordings")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != filepath.Join(home, "recordings") {
		t.Fatalf("unexpected expansion: %s", got)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load(sample): %v", err)
	}
	if !exists {
		t.Fatal("sample config not found after CreateSample")
	}
	if cfg.Picker.PitchHours != 3.0 {
		t.Fatalf("sample pitch_hours: %v", cfg.Picker.PitchHours)
	}
}
