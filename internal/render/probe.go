package render

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"clipper/internal/services"
)

type probeStream struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
}

// ProbeSize reads the first video stream's dimensions with ffprobe.
func ProbeSize(ctx context.Context, exec Executor, ffprobe, videoPath string) (width, height int, err error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		videoPath,
	}

	var out strings.Builder
	runErr := exec.Run(ctx, ffprobe, args, func(line string) {
		out.WriteString(line)
		out.WriteString("\n")
	})
	if runErr != nil {
		return 0, 0, services.Wrap(services.ErrExternalTool, "render", ffprobe, videoPath, runErr)
	}

	var result probeResult
	if err := json.Unmarshal([]byte(out.String()), &result); err != nil {
		return 0, 0, services.Wrap(services.ErrExternalTool, "render", ffprobe,
			fmt.Sprintf("unparsable probe output for %s", videoPath), err)
	}
	if len(result.Streams) == 0 || result.Streams[0].Width <= 0 || result.Streams[0].Height <= 0 {
		return 0, 0, services.Wrap(services.ErrExternalTool, "render", ffprobe,
			fmt.Sprintf("no video stream in %s", videoPath), nil)
	}
	return result.Streams[0].Width, result.Streams[0].Height, nil
}
