package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ExtractConfig describes a one-off frame dump of a video file
type ExtractConfig struct {
	Video     string
	OutputDir string
	// Interval between extracted frames; zero keeps every frame
	Interval time.Duration
	// Binary is the ffmpeg executable, "ffmpeg" when empty
	Binary string
}

// FrameDir is the directory ExtractFrames writes the frames of cfg.Video to
func (cfg ExtractConfig) FrameDir() string {
	name := strings.TrimSuffix(filepath.Base(cfg.Video), filepath.Ext(cfg.Video))
	return filepath.Join(cfg.OutputDir, name)
}

func extractArgs(cfg ExtractConfig) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", cfg.Video}
	if cfg.Interval > 0 {
		args = append(args, "-vf", fmt.Sprintf("fps=1/%g", cfg.Interval.Seconds()))
	}
	return append(args, filepath.Join(cfg.FrameDir(), "frame_%06d.jpg"))
}

// ExtractFrames dumps the frames of a video as jpegs so they can be replayed with a
// DirSource. Extraction is skipped when the frame directory already holds jpegs.
func ExtractFrames(ctx context.Context, cfg ExtractConfig, logger *slog.Logger) (string, error) {
	if _, err := os.Stat(cfg.Video); err != nil {
		return "", fmt.Errorf("video file %q: %w", cfg.Video, err)
	}
	dir := cfg.FrameDir()

	if n := countJPEGs(dir); n > 0 {
		logger.Info("frames already extracted, skipping", "dir", dir, "count", n)
		return dir, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create frame directory %q: %w", dir, err)
	}

	bin := cfg.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	logger.Info("extracting frames", "video", cfg.Video, "dir", dir, "interval", cfg.Interval)
	out, err := exec.CommandContext(ctx, bin, extractArgs(cfg)...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	logger.Info("extracted frames", "dir", dir, "count", countJPEGs(dir))
	return dir, nil
}

func countJPEGs(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			n++
		}
	}
	return n
}
