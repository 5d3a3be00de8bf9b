package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"clipper/internal/fileutil"
	"clipper/internal/jsonl"
	"clipper/internal/services"
)

const (
	previewHeight      = 360
	reviewSampleCount  = 3
	framePatternSuffix = "frame_%03d.jpg"
)

// detectionRecord mirrors one line of the per-session detections file.
type detectionRecord struct {
	Sec  int       `json:"sec"`
	BBox []float64 `json:"bbox_xyxy"`
}

// MedianCenterX returns the median horizontal detection center inside the
// event window, in proxy-frame coordinates. The boolean is false when the
// window contains no usable detections.
func MedianCenterX(detectionsPath string, startAbs, endAbs int) (float64, bool, error) {
	records, _, err := jsonl.Read[detectionRecord](detectionsPath)
	if err != nil {
		return 0, false, services.Wrap(services.ErrTransient, "render", "detections", detectionsPath, err)
	}

	var centers []float64
	for _, rec := range records {
		if rec.Sec < startAbs || rec.Sec >= endAbs {
			continue
		}
		if len(rec.BBox) != 4 {
			continue
		}
		centers = append(centers, (rec.BBox[0]+rec.BBox[2])/2)
	}
	if len(centers) == 0 {
		return 0, false, nil
	}
	sort.Float64s(centers)
	mid := len(centers) / 2
	if len(centers)%2 == 1 {
		return centers[mid], true, nil
	}
	return (centers[mid-1] + centers[mid]) / 2, true, nil
}

// ExportFrames extracts one proxy frame per second of the event window into
// framesDir. Existing frames make the export a no-op so re-runs stay cheap.
func (r *Renderer) ExportFrames(ctx context.Context, rawPath, framesDir string, absStart, duration int) error {
	entries, err := os.ReadDir(framesDir)
	if err == nil && len(entries) > 0 {
		return nil
	}
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "render", "frames-dir", framesDir, err)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-ss", strconv.Itoa(absStart),
		"-t", strconv.Itoa(duration),
		"-i", rawPath,
		"-vf", fmt.Sprintf("fps=1,scale=-2:%d", previewHeight),
		filepath.Join(framesDir, framePatternSuffix),
	}
	if err := r.exec.Run(ctx, r.settings.FFmpeg, args, nil); err != nil {
		return services.Wrap(services.ErrExternalTool, "render", r.settings.FFmpeg,
			fmt.Sprintf("frame export for %s", framesDir), err)
	}
	return nil
}

// PrepareReviewSamples copies a few evenly spaced frames into reviewDir so
// the review gate has something cheap to look at.
func PrepareReviewSamples(framesDir, reviewDir string) error {
	matches, err := filepath.Glob(filepath.Join(framesDir, "frame_*.jpg"))
	if err != nil || len(matches) == 0 {
		return nil
	}
	sort.Strings(matches)

	if err := os.MkdirAll(reviewDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "render", "review-dir", reviewDir, err)
	}

	count := reviewSampleCount
	if count > len(matches) {
		count = len(matches)
	}
	step := len(matches) / count
	if step < 1 {
		step = 1
	}
	for i := 0; i < count; i++ {
		src := matches[i*step]
		dst := filepath.Join(reviewDir, fmt.Sprintf("sample_%d.jpg", i+1))
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := fileutil.CopyFile(src, dst); err != nil {
			return services.Wrap(services.ErrTransient, "render", "review-sample", dst, err)
		}
	}
	return nil
}
