package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Thumbnailer extracts a preview still for a source clip and returns the
// path of the written image.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, sourcePath, name string, durationSeconds float64) (string, error)
}

// FFmpegThumbnailer grabs one frame with ffmpeg into Dir/<name>.jpg.
type FFmpegThumbnailer struct {
	Bin     string
	Dir     string
	Width   int           // Scaled width; height keeps the aspect ratio.
	Timeout time.Duration // Per-thumbnail limit.
}

// Thumbnail seeks to 10% of the clip (the first frame when the duration is
// unknown) and writes a JPEG.
func (f FFmpegThumbnailer) Thumbnail(ctx context.Context, sourcePath, name string, durationSeconds float64) (string, error) {
	if f.Dir == "" {
		return "", errors.New("thumbnail directory not configured")
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create thumbnail directory: %w", err)
	}
	bin := f.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	width := f.Width
	if width <= 0 {
		width = 320
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := filepath.Join(f.Dir, name+".jpg")
	seek := 0.0
	if durationSeconds > 0 {
		seek = durationSeconds / 10
	}
	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-ss", strconv.FormatFloat(seek, 'f', 3, 64),
		"-i", sourcePath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", width),
		out,
	)
	if msg, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("thumbnail %q: %w: %s", sourcePath, err, lastLine(string(msg)))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("thumbnail %q: ffmpeg wrote no image", sourcePath)
	}
	return out, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
