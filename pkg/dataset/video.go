package dataset

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// Default video settings.
const (
	DefaultVideoCodec   = "libsvtav1"
	DefaultFFmpegBinary = "ffmpeg"
	videoPixFmt         = "yuv420p"
)

// codecName maps an ffmpeg encoder to the codec name stored in info.json.
func codecName(encoder string) string {
	switch encoder {
	case "libsvtav1", "libaom-av1", "librav1e":
		return "av1"
	case "libx264", "h264":
		return "h264"
	case "libx265", "hevc":
		return "hevc"
	default:
		return encoder
	}
}

// encodeVideo encodes frame_%06d.png files in framesDir into dest.
func encodeVideo(ctx context.Context, ffmpegBinary, codec, framesDir, dest string, fps int) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create video dir: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "image2",
		"-r", strconv.Itoa(fps),
		"-i", filepath.Join(framesDir, "frame_%06d.png"),
		"-vcodec", codec,
		"-pix_fmt", videoPixFmt,
		"-g", "2",
		"-crf", "30",
		dest,
	}
	cmd := commandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg encode %s: %w: %s", filepath.Base(dest), err, strings.TrimSpace(string(output)))
	}
	return nil
}

func videoInfo(fps int, codec string, f featureShape) map[string]any {
	return map[string]any{
		"video.fps":          fps,
		"video.height":       f.height,
		"video.width":        f.width,
		"video.channels":     f.channels,
		"video.codec":        codecName(codec),
		"video.pix_fmt":      videoPixFmt,
		"video.is_depth_map": false,
		"has_audio":          false,
	}
}

type featureShape struct {
	height, width, channels int
}
