// Package render turns an approved decision into the final short-form
// video with ffmpeg. Renders are idempotent per decision version: an
// existing artifact is a no-op success, a durable failure flag is a no-op
// failure until an operator clears it.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"clipper/internal/decision"
	"clipper/internal/logging"
	"clipper/internal/services"
)

// minArtifactBytes guards against ffmpeg exiting zero after writing a
// truncated file.
const minArtifactBytes = 100_000

const outputTailLines = 20

var eventNamePattern = regexp.MustCompile(`^(\d+)_(\d+)$`)

// Executor abstracts command execution for testability.
type Executor = services.Executor

// Settings carries everything one render needs besides the event itself.
type Settings struct {
	FFmpeg         string
	FFprobe        string
	RawVideoName   string
	OutWidth       int
	OutHeight      int
	CropScale      float64
	WindowSeconds  int
	CRF            int
	Preset         string
	AudioBitrate   string
	BGMPath        string
	MixVolume      float64
	FontFile       string
	CaptionTop1    string
	CaptionTop2    string
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryBackoff   time.Duration
}

// Renderer drives ffmpeg render attempts under a bounded retry policy.
type Renderer struct {
	settings Settings
	exec     Executor
	logger   *slog.Logger
	sleeper  func(time.Duration)
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Renderer) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithSleeper overrides how retry backoff waits (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(r *Renderer) {
		if sleeper != nil {
			r.sleeper = sleeper
		}
	}
}

// New returns a renderer with the given settings.
func New(settings Settings, logger *slog.Logger, opts ...Option) *Renderer {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Renderer{
		settings: settings,
		exec:     services.CommandExecutor{},
		logger:   logger.With(logging.String(logging.FieldComponent, "render")),
		sleeper:  time.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ArtifactPath returns the final video path for a decision version.
func ArtifactPath(eventDir string, version int) string {
	return filepath.Join(eventDir, "shorts", fmt.Sprintf("short_v%d.mp4", version))
}

// FlagPath returns the durable failure flag path for a decision version.
func FlagPath(eventDir string, version int) string {
	return filepath.Join(eventDir, "shorts", fmt.Sprintf(".render_failed_v%d", version))
}

// ArtifactExists reports whether a plausibly complete artifact is present.
func ArtifactExists(eventDir string, version int) bool {
	info, err := os.Stat(ArtifactPath(eventDir, version))
	return err == nil && info.Size() >= minArtifactBytes
}

// Flagged reports whether the failure flag for a version is set.
func Flagged(eventDir string, version int) bool {
	_, err := os.Stat(FlagPath(eventDir, version))
	return err == nil
}

// ClearFlags removes every render failure flag under eventDir so the event
// becomes retryable again.
func ClearFlags(eventDir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(eventDir, "shorts", ".render_failed_v*"))
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "render", "clear-flags", eventDir, err)
	}
	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			return removed, services.Wrap(services.ErrTransient, "render", "clear-flags", path, err)
		}
		removed++
	}
	return removed, nil
}

// ParseEventStart extracts the absolute start second from an event name of
// the form SSSSS_EEEEE.
func ParseEventStart(eventName string) (int, error) {
	m := eventNamePattern.FindStringSubmatch(eventName)
	if m == nil {
		return 0, services.Wrap(services.ErrValidation, "render", "event-name",
			fmt.Sprintf("invalid event name %q", eventName), nil)
	}
	return strconv.Atoi(m[1])
}

// Outcome reports what a render call did.
type Outcome struct {
	VideoPath string
	// AlreadyRendered means the artifact existed before the call.
	AlreadyRendered bool
	Attempts        int
}

// Render produces the short for one decision version. On exhausted retries
// the failure flag is written before the error returns, so the failure is
// durable across invocations.
func (r *Renderer) Render(ctx context.Context, sessionDir, eventDir, eventName string, doc decision.Document, version int) (Outcome, error) {
	artifact := ArtifactPath(eventDir, version)

	if ArtifactExists(eventDir, version) {
		r.logger.Info("artifact already present",
			logging.String(logging.FieldEvent, eventName),
			logging.String("path", artifact))
		return Outcome{VideoPath: artifact, AlreadyRendered: true}, nil
	}
	if Flagged(eventDir, version) {
		return Outcome{}, services.Wrap(services.ErrValidation, "render", "flag",
			fmt.Sprintf("render of %s v%d previously failed, flag still set", eventName, version), nil)
	}

	eventStart, err := ParseEventStart(eventName)
	if err != nil {
		return Outcome{}, err
	}
	rawName := r.settings.RawVideoName
	if rawName == "" {
		rawName = "raw.mkv"
	}
	rawPath := filepath.Join(sessionDir, rawName)
	if _, err := os.Stat(rawPath); err != nil {
		return Outcome{}, services.Wrap(services.ErrNotFound, "render", "source", rawPath, err)
	}

	srcWidth, srcHeight, err := ProbeSize(ctx, r.exec, r.settings.FFprobe, rawPath)
	if err != nil {
		return Outcome{}, err
	}
	geo, err := ComputeGeometry(srcWidth, srcHeight, doc.CropX, r.settings.CropScale)
	if err != nil {
		return Outcome{}, err
	}

	absStart := eventStart + doc.StartSecRel
	duration := doc.EndSecRel - doc.StartSecRel
	p := r.buildPlan(rawPath, absStart, duration, geo, artifact)

	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "render", "shorts-dir", eventDir, err)
	}

	policy := RetryPolicy{
		MaxAttempts:    r.settings.MaxAttempts,
		AttemptTimeout: r.settings.AttemptTimeout,
		Backoff:        r.settings.RetryBackoff,
		Sleeper:        r.sleeper,
	}

	tail := newTailBuffer(outputTailLines)
	attempts, runErr := policy.Run(ctx, func(attemptCtx context.Context) error {
		tail.reset()
		return r.attempt(attemptCtx, p, tail)
	})
	if runErr != nil {
		if flagErr := r.writeFlag(eventDir, version, runErr, tail); flagErr != nil {
			r.logger.Error("failed to write failure flag", logging.Error(flagErr))
		}
		return Outcome{Attempts: attempts}, services.Wrap(services.ErrExternalTool, "render", r.settings.FFmpeg,
			fmt.Sprintf("render of %s v%d failed after %d attempts; tail:\n%s", eventName, version, attempts, tail.String()),
			runErr)
	}

	r.logger.Info("render complete",
		logging.String(logging.FieldEvent, eventName),
		logging.Int("version", version),
		logging.Int("attempts", attempts),
		logging.String("path", artifact))
	return Outcome{VideoPath: artifact, Attempts: attempts}, nil
}

func (r *Renderer) attempt(ctx context.Context, p plan, tail *tailBuffer) error {
	defer os.Remove(p.tempPath)

	runErr := r.exec.Run(ctx, r.settings.FFmpeg, p.args, func(line string) {
		tail.add(line)
		r.logger.Debug("ffmpeg output", logging.String("line", line))
	})
	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "render", r.settings.FFmpeg, "attempt timed out", runErr)
		}
		return services.Wrap(services.ErrExternalTool, "render", r.settings.FFmpeg, "ffmpeg failed", runErr)
	}

	info, err := os.Stat(p.tempPath)
	if err != nil || info.Size() < minArtifactBytes {
		return services.Wrap(services.ErrExternalTool, "render", r.settings.FFmpeg,
			fmt.Sprintf("output missing or truncated: %s", p.tempPath), err)
	}
	if err := os.Rename(p.tempPath, p.outputPath); err != nil {
		return services.Wrap(services.ErrTransient, "render", "finalize", p.outputPath, err)
	}
	return nil
}

func (r *Renderer) writeFlag(eventDir string, version int, cause error, tail *tailBuffer) error {
	body := fmt.Sprintf("failed at %s\n%v\n\n%s\n",
		time.Now().Format(time.RFC3339), cause, tail.String())
	return os.WriteFile(FlagPath(eventDir, version), []byte(body), 0o644)
}

// tailBuffer keeps the last n lines of subprocess output for error reports.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

func (t *tailBuffer) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = t.lines[:0]
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
