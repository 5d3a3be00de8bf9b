package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LibraryDir string `toml:"library_dir"`
	QueueDir   string `toml:"queue_dir"`
	LogDir     string `toml:"log_dir"`
}

// Library describes the per-session file names the analysis step produces.
type Library struct {
	RawVideoName   string `toml:"raw_video_name"`
	DetectionsName string `toml:"detections_name"`
	CandidatesName string `toml:"candidates_name"`
	AnalysisMarker string `toml:"analysis_marker"`
}

// Picker contains defaults for the global candidate picker.
type Picker struct {
	Mode                 string  `toml:"mode"`
	Total                int     `toml:"total"`
	MaxPerSession        int     `toml:"max_per_session"`
	NoOverlap            bool    `toml:"no_overlap"`
	PitchHours           float64 `toml:"pitch_hours"`
	PublishOffsetMinutes int     `toml:"publish_offset_minutes"`
}

// Pipeline contains settings for the event queue driver.
type Pipeline struct {
	MaxItems     int    `toml:"max_items"`
	ReviewAction string `toml:"review_action"`
}

// Decision contains settings for the external decision service command.
type Decision struct {
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	MinDurationSec int      `toml:"min_duration_sec"`
	MaxDurationSec int      `toml:"max_duration_sec"`
}

// Render contains settings for the ffmpeg render stage.
type Render struct {
	OutWidth              int     `toml:"out_width"`
	OutHeight             int     `toml:"out_height"`
	CropScale             float64 `toml:"crop_scale"`
	WindowSeconds         int     `toml:"window_seconds"`
	CRF                   int     `toml:"crf"`
	Preset                string  `toml:"preset"`
	AudioBitrate          string  `toml:"audio_bitrate"`
	BGMPath               string  `toml:"bgm_path"`
	MixVolume             float64 `toml:"mix_volume"`
	FontFile              string  `toml:"font_file"`
	CaptionTop1           string  `toml:"caption_top1"`
	CaptionTop2           string  `toml:"caption_top2"`
	MaxAttempts           int     `toml:"max_attempts"`
	AttemptTimeoutSeconds int     `toml:"attempt_timeout_seconds"`
	RetryBackoffSeconds   int     `toml:"retry_backoff_seconds"`
	MinFreeGiB            int     `toml:"min_free_gib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipper.
//
// Configuration sections by subsystem:
//   - Paths: library root, queue directory, log directory
//   - Library: per-session file names produced by the analysis step
//   - Picker: global pick defaults (mode, counts, scheduling)
//   - Pipeline: driver batch size and review action
//   - Decision: external decision service command and document bounds
//   - Render: ffmpeg output, captions, retry policy
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Library  Library  `toml:"library"`
	Picker   Picker   `toml:"picker"`
	Pipeline Pipeline `toml:"pipeline"`
	Decision Decision `toml:"decision"`
	Render   Render   `toml:"render"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipper/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second and third
// return values report the resolved path and whether a file was found there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("clipper.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories an invocation needs. LibraryDir
// is created on a best-effort basis so commands can run while external
// storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.QueueDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// PublishZone returns the fixed-offset time zone publish timestamps use.
func (c *Config) PublishZone() *time.Location {
	minutes := c.Picker.PublishOffsetMinutes
	sign := "+"
	abs := minutes
	if abs < 0 {
		sign = "-"
		abs = -abs
	}
	name := fmt.Sprintf("%s%02d:%02d", sign, abs/60, abs%60)
	return time.FixedZone(name, minutes*60)
}

// LockPath returns the path of the single-flight lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.QueueDir, "clipper.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
