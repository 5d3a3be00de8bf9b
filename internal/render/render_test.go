package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipper/internal/decision"
	"clipper/internal/services"
)

func TestComputeGeometryClamps(t *testing.T) {
	// 1920x1080 source: crop width = round(1080*9/16) = 608, max x = 1312.
	geo, err := ComputeGeometry(1920, 1080, 120, 3.0)
	if err != nil {
		t.Fatalf("ComputeGeometry: %v", err)
	}
	if geo.CropWidth != 608 {
		t.Fatalf("crop width = %d, want 608", geo.CropWidth)
	}
	if geo.CropX != 360 {
		t.Fatalf("crop x = %d, want 360", geo.CropX)
	}

	geo, err = ComputeGeometry(1920, 1080, 5000, 3.0)
	if err != nil {
		t.Fatal(err)
	}
	if geo.CropX != 1312 {
		t.Fatalf("crop x not clamped to max: %d", geo.CropX)
	}

	geo, err = ComputeGeometry(1920, 1080, -50, 3.0)
	if err != nil {
		t.Fatal(err)
	}
	if geo.CropX != 0 {
		t.Fatalf("crop x not clamped to zero: %d", geo.CropX)
	}
}

func TestComputeGeometryRejectsNarrowSource(t *testing.T) {
	// Source narrower than the 9:16 crop of its own height.
	if _, err := ComputeGeometry(500, 1080, 0, 1.0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestParseEventStart(t *testing.T) {
	start, err := ParseEventStart("07080_07100")
	if err != nil || start != 7080 {
		t.Fatalf("ParseEventStart = %d, %v", start, err)
	}
	if _, err := ParseEventStart("bogus"); err == nil {
		t.Fatal("expected error for invalid event name")
	}
}

func TestRetryPolicySucceedsAfterRetryableFailure(t *testing.T) {
	var slept []time.Duration
	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     2 * time.Second,
		Sleeper:     func(d time.Duration) { slept = append(slept, d) },
	}
	calls := 0
	attempts, err := policy.Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return services.Wrap(services.ErrExternalTool, "render", "", "boom", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempts != 2 || calls != 2 {
		t.Fatalf("attempts = %d, calls = %d", attempts, calls)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Fatalf("backoff sleeps: %v", slept)
	}
}

func TestRetryPolicyStopsOnNonRetryable(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Sleeper: func(time.Duration) {}}
	calls := 0
	_, err := policy.Run(context.Background(), func(context.Context) error {
		calls++
		return services.Wrap(services.ErrValidation, "render", "", "bad geometry", nil)
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-retryable error must not be retried, calls = %d", calls)
	}
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, Sleeper: func(time.Duration) {}}
	calls := 0
	attempts, err := policy.Run(context.Background(), func(context.Context) error {
		calls++
		return services.Wrap(services.ErrExternalTool, "render", "", "boom", nil)
	})
	if err == nil || attempts != 2 || calls != 2 {
		t.Fatalf("attempts = %d, calls = %d, err = %v", attempts, calls, err)
	}
}

type fakeExecutor struct {
	probeJSON  string
	renderErr  error
	renderSize int
	renderRuns int
	probeRuns  int
}

func (f *fakeExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	if strings.Contains(binary, "ffprobe") {
		f.probeRuns++
		if onStdout != nil {
			onStdout(f.probeJSON)
		}
		return nil
	}
	f.renderRuns++
	if onStdout != nil {
		onStdout("frame=  100 fps=25")
	}
	if f.renderErr != nil {
		return f.renderErr
	}
	out := args[len(args)-1]
	return os.WriteFile(out, make([]byte, f.renderSize), 0o644)
}

func testSettings() Settings {
	return Settings{
		FFmpeg:         "ffmpeg",
		FFprobe:        "ffprobe",
		RawVideoName:   "raw.mkv",
		OutWidth:       720,
		OutHeight:      1280,
		CropScale:      3.0,
		WindowSeconds:  20,
		CRF:            20,
		Preset:         "veryfast",
		AudioBitrate:   "128k",
		MixVolume:      0.16,
		MaxAttempts:    2,
		AttemptTimeout: time.Minute,
		RetryBackoff:   time.Millisecond,
	}
}

func testEvent(t *testing.T) (sessionDir, eventDir string) {
	t.Helper()
	sessionDir = t.TempDir()
	if err := os.WriteFile(filepath.Join(sessionDir, "raw.mkv"), []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventDir = filepath.Join(sessionDir, "events", "00100_00120")
	if err := os.MkdirAll(eventDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return sessionDir, eventDir
}

func testDoc() decision.Document {
	return decision.Document{StartSecRel: 2, EndSecRel: 14, CropX: 120, Title: "rally"}
}

func TestRenderSuccess(t *testing.T) {
	sessionDir, eventDir := testEvent(t)
	exec := &fakeExecutor{
		probeJSON:  `{"streams":[{"width":1920,"height":1080}]}`,
		renderSize: minArtifactBytes,
	}
	r := New(testSettings(), nil, WithExecutor(exec), WithSleeper(func(time.Duration) {}))

	outcome, err := r.Render(context.Background(), sessionDir, eventDir, "00100_00120", testDoc(), 1)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if outcome.AlreadyRendered || outcome.Attempts != 1 {
		t.Fatalf("outcome: %+v", outcome)
	}
	if !ArtifactExists(eventDir, 1) {
		t.Fatal("artifact missing after successful render")
	}
	if exec.renderRuns != 1 || exec.probeRuns != 1 {
		t.Fatalf("runs: render=%d probe=%d", exec.renderRuns, exec.probeRuns)
	}
}

func TestRenderIdempotentOnExistingArtifact(t *testing.T) {
	sessionDir, eventDir := testEvent(t)
	path := ArtifactPath(eventDir, 1)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, minArtifactBytes), 0o644); err != nil {
		t.Fatal(err)
	}

	exec := &fakeExecutor{}
	r := New(testSettings(), nil, WithExecutor(exec))
	outcome, err := r.Render(context.Background(), sessionDir, eventDir, "00100_00120", testDoc(), 1)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !outcome.AlreadyRendered {
		t.Fatalf("expected no-op success: %+v", outcome)
	}
	if exec.renderRuns != 0 && exec.probeRuns != 0 {
		t.Fatal("existing artifact must not spawn subprocesses")
	}
}

func TestRenderTruncatedArtifactDoesNotCount(t *testing.T) {
	sessionDir, eventDir := testEvent(t)
	path := ArtifactPath(eventDir, 1)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("tiny"), 0o644); err != nil {
		t.Fatal(err)
	}

	exec := &fakeExecutor{
		probeJSON:  `{"streams":[{"width":1920,"height":1080}]}`,
		renderSize: minArtifactBytes,
	}
	r := New(testSettings(), nil, WithExecutor(exec), WithSleeper(func(time.Duration) {}))
	outcome, err := r.Render(context.Background(), sessionDir, eventDir, "00100_00120", testDoc(), 1)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if outcome.AlreadyRendered {
		t.Fatal("truncated artifact must be re-rendered")
	}
}

func TestRenderExhaustionWritesFlag(t *testing.T) {
	sessionDir, eventDir := testEvent(t)
	exec := &fakeExecutor{
		probeJSON: `{"streams":[{"width":1920,"height":1080}]}`,
		renderErr: errors.New("exit status 1"),
	}
	r := New(testSettings(), nil, WithExecutor(exec), WithSleeper(func(time.Duration) {}))

	outcome, err := r.Render(context.Background(), sessionDir, eventDir, "00100_00120", testDoc(), 1)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if outcome.Attempts != 2 || exec.renderRuns != 2 {
		t.Fatalf("attempts = %d, runs = %d", outcome.Attempts, exec.renderRuns)
	}
	if !Flagged(eventDir, 1) {
		t.Fatal("failure flag not written")
	}
	if !strings.Contains(err.Error(), "frame=") {
		t.Fatalf("error must carry the output tail: %v", err)
	}

	// Flag makes the next call a no-op failure without subprocess work.
	_, err = r.Render(context.Background(), sessionDir, eventDir, "00100_00120", testDoc(), 1)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("flagged render must fail fast, got %v", err)
	}
	if exec.renderRuns != 2 {
		t.Fatal("flagged render must not retry ffmpeg")
	}

	removed, err := ClearFlags(eventDir)
	if err != nil || removed != 1 {
		t.Fatalf("ClearFlags: %d, %v", removed, err)
	}
	if Flagged(eventDir, 1) {
		t.Fatal("flag not cleared")
	}
}

func TestBuildPlanIncludesBGM(t *testing.T) {
	settings := testSettings()
	settings.BGMPath = "/bgm/loop.mp3"
	settings.FontFile = "/fonts/noto.ttc"
	settings.CaptionTop1 = "auto clip"
	r := New(settings, nil)

	geo := Geometry{SrcWidth: 1920, SrcHeight: 1080, CropWidth: 608, CropX: 360}
	p := r.buildPlan("/lib/s1/raw.mkv", 102, 12, geo, "/lib/s1/events/e/shorts/short_v1.mp4")
	joined := strings.Join(p.args, " ")

	for _, want := range []string{
		"-ss 102", "-t 12",
		"-stream_loop -1 -i /bgm/loop.mp3",
		"crop=608:1080:360:0", "scale=720:1280",
		"drawtext=text='auto clip'",
		"volume=0.16", "-shortest",
		"-c:v libx264", "-preset veryfast", "-crf 20",
		"-b:a 128k",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if p.tempPath != p.outputPath+".tmp.mp4" {
		t.Fatalf("temp path: %s", p.tempPath)
	}
}

func TestMedianCenterX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detections.jsonl")
	lines := []string{
		`{"sec":99,"bbox_xyxy":[0,0,100,100]}`,
		`{"sec":100,"bbox_xyxy":[100,0,200,100]}`,
		`{"sec":101,"bbox_xyxy":[200,0,300,100]}`,
		`{"sec":102,"bbox_xyxy":[300,0,400,100]}`,
		`{"sec":120,"bbox_xyxy":[900,0,1000,100]}`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	median, ok, err := MedianCenterX(path, 100, 120)
	if err != nil || !ok {
		t.Fatalf("MedianCenterX: %v %v", ok, err)
	}
	if median != 250 {
		t.Fatalf("median = %v, want 250", median)
	}

	_, ok, err = MedianCenterX(path, 500, 520)
	if err != nil || ok {
		t.Fatalf("empty window must report no detections: %v %v", ok, err)
	}
}

func TestPrepareReviewSamples(t *testing.T) {
	framesDir := t.TempDir()
	for _, name := range []string{"frame_001.jpg", "frame_002.jpg", "frame_003.jpg", "frame_004.jpg", "frame_005.jpg", "frame_006.jpg"} {
		if err := os.WriteFile(filepath.Join(framesDir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	reviewDir := filepath.Join(t.TempDir(), "review")
	if err := PrepareReviewSamples(framesDir, reviewDir); err != nil {
		t.Fatalf("PrepareReviewSamples: %v", err)
	}
	entries, err := os.ReadDir(reviewDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(entries))
	}
}

func TestNormalizeTitle(t *testing.T) {
	if got := NormalizeTitle("  rally   at the net "); got != "Rally At The Net" {
		t.Fatalf("NormalizeTitle = %q", got)
	}
	if got := NormalizeTitle("AIショート切り抜き"); got != "AIショート切り抜き" {
		t.Fatalf("non-Latin title must pass through: %q", got)
	}
}

func TestWriteSidecars(t *testing.T) {
	eventDir := t.TempDir()
	if err := WriteSidecars(eventDir, 2, "rally at the net", "auto clipped short\n"); err != nil {
		t.Fatalf("WriteSidecars: %v", err)
	}
	title, err := os.ReadFile(filepath.Join(eventDir, "shorts", "title_v2.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(title) != "Rally At The Net\n" {
		t.Fatalf("title sidecar: %q", string(title))
	}
	if _, err := os.Stat(filepath.Join(eventDir, "shorts", "desc_v2.txt")); err != nil {
		t.Fatal("description sidecar missing")
	}
}
