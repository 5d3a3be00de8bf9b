package render

import (
	"fmt"
	"strconv"
	"strings"
)

// caption is one drawtext overlay burned into the output.
type caption struct {
	text     string
	fontSize int
	alpha    float64
	y        int
}

const (
	captionTopFontSize = 58
	captionSubFontSize = 30
	captionTopY        = 100
	captionSubY        = 160
	captionTopAlpha    = 0.45
	captionSubAlpha    = 0.38
	captionDelaySec    = 1.5
)

// plan is the fully-resolved ffmpeg invocation for one render attempt.
type plan struct {
	args       []string
	outputPath string
	tempPath   string
}

// buildPlan assembles the single-pass ffmpeg command: trim, crop, scale,
// captions, optional looped background music replacing the source audio.
func (r *Renderer) buildPlan(rawPath string, absStart, duration int, geo Geometry, outputPath string) plan {
	tempPath := outputPath + ".tmp.mp4"

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-ss", strconv.Itoa(absStart),
		"-t", strconv.Itoa(duration),
		"-i", rawPath,
	}

	withBGM := r.settings.BGMPath != ""
	if withBGM {
		args = append(args, "-stream_loop", "-1", "-i", r.settings.BGMPath)
	}

	args = append(args, "-vf", r.videoFilter(geo))

	if withBGM {
		args = append(args,
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-af", fmt.Sprintf("afade=t=in:st=0:d=1,volume=%g", r.settings.MixVolume),
			"-shortest",
		)
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", r.settings.Preset,
		"-crf", strconv.Itoa(r.settings.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", r.settings.AudioBitrate,
		"-movflags", "+faststart",
		tempPath,
	)

	return plan{args: args, outputPath: outputPath, tempPath: tempPath}
}

func (r *Renderer) videoFilter(geo Geometry) string {
	parts := []string{
		fmt.Sprintf("crop=%d:%d:%d:0", geo.CropWidth, geo.SrcHeight, geo.CropX),
		fmt.Sprintf("scale=%d:%d", r.settings.OutWidth, r.settings.OutHeight),
	}
	if r.settings.FontFile != "" {
		if r.settings.CaptionTop1 != "" {
			parts = append(parts, r.drawtext(caption{
				text: r.settings.CaptionTop1, fontSize: captionTopFontSize,
				alpha: captionTopAlpha, y: captionTopY,
			}))
		}
		if r.settings.CaptionTop2 != "" {
			parts = append(parts, r.drawtext(caption{
				text: r.settings.CaptionTop2, fontSize: captionSubFontSize,
				alpha: captionSubAlpha, y: captionSubY,
			}))
		}
	}
	return strings.Join(parts, ",")
}

func (r *Renderer) drawtext(c caption) string {
	return fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white@%.2f:fontsize=%d:x=(w-text_w)/2:y=%d:fontfile='%s':enable='gte(t,%g)'",
		escapeDrawtext(c.text), c.alpha, c.fontSize, c.y, r.settings.FontFile, captionDelaySec,
	)
}

// escapeDrawtext escapes the characters drawtext treats specially.
func escapeDrawtext(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, ":", `\:`, "'", `\'`)
	return replacer.Replace(s)
}
