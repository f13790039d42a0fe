package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bdougie/handcam/internal/models"
)

// FFmpegConfig describes the device or file to capture from
type FFmpegConfig struct {
	// Input is a device (e.g. /dev/video0) or a video file
	Input string
	// InputFormat is passed as -f before the input (e.g. v4l2, avfoundation). Empty lets ffmpeg probe.
	InputFormat string
	Width       int
	Height      int
	FrameRate   int
	// VFlip flips the picture vertically at the source, like a camera mounted upside down
	VFlip bool
	// Binary is the ffmpeg executable, "ffmpeg" when empty
	Binary string
}

type readResult struct {
	frame models.Frame
	err   error
}

// FFmpegSource captures raw rgb24 frames from an ffmpeg child process
type FFmpegSource struct {
	cfg       FFmpegConfig
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    *bytes.Buffer
	frameSize int
	seq       atomic.Uint64
	logger    *slog.Logger

	results  chan readResult
	inflight bool

	closeOnce sync.Once
}

// ffmpegArgs builds the command line for cfg
func ffmpegArgs(cfg FFmpegConfig) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if cfg.InputFormat != "" {
		args = append(args, "-f", cfg.InputFormat)
	}
	if cfg.FrameRate > 0 && cfg.InputFormat != "" {
		args = append(args, "-framerate", strconv.Itoa(cfg.FrameRate))
	}
	args = append(args, "-i", cfg.Input)

	filters := []string{fmt.Sprintf("scale=%d:%d", cfg.Width, cfg.Height)}
	if cfg.VFlip {
		filters = append(filters, "vflip")
	}
	args = append(args,
		"-vf", strings.Join(filters, ","),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
	return args
}

// NewFFmpegSource starts ffmpeg. The process lives until Close.
func NewFFmpegSource(ctx context.Context, cfg FFmpegConfig, logger *slog.Logger) (*FFmpegSource, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid capture size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.InputFormat == "" {
		// Check if the input file exists
		if _, err := os.Stat(cfg.Input); os.IsNotExist(err) {
			return nil, fmt.Errorf("capture input does not exist at path: '%s'", cfg.Input)
		}
	}

	bin := cfg.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin, ffmpegArgs(cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	// Capture output for better error reporting
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	logger.Info("capture started",
		"input", cfg.Input,
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps", cfg.FrameRate,
	)

	return &FFmpegSource{
		cfg:       cfg,
		cmd:       cmd,
		stdout:    stdout,
		stderr:    stderr,
		frameSize: cfg.Width * cfg.Height * 3,
		logger:    logger,
		results:   make(chan readResult, 1),
	}, nil
}

// Next returns the next frame. At most one read is outstanding, so capture never runs
// ahead of the caller. If ctx ends first, the pending frame is kept for the next call.
func (s *FFmpegSource) Next(ctx context.Context) (models.Frame, error) {
	if !s.inflight {
		s.inflight = true
		go s.readOne()
	}
	select {
	case r := <-s.results:
		s.inflight = false
		return r.frame, r.err
	case <-ctx.Done():
		return models.Frame{}, ctx.Err()
	}
}

func (s *FFmpegSource) readOne() {
	buf := make([]byte, s.frameSize)
	if _, err := io.ReadFull(s.stdout, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed) {
			s.results <- readResult{err: ErrEndOfData}
			return
		}
		s.results <- readResult{err: fmt.Errorf("read frame: %w", err)}
		return
	}

	img := image.NewNRGBA(image.Rect(0, 0, s.cfg.Width, s.cfg.Height))
	for i, j := 0, 0; i < len(buf); i, j = i+3, j+4 {
		img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = buf[i], buf[i+1], buf[i+2], 0xff
	}
	seq := s.seq.Add(1)
	s.results <- readResult{frame: models.Frame{Seq: seq, Captured: time.Now(), Image: img}}
}

// Close stops ffmpeg and releases the device
func (s *FFmpegSource) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.stdout.Close()
		if err := s.cmd.Wait(); err != nil && s.stderr.Len() > 0 {
			s.logger.Debug("ffmpeg exited", "err", err, "output", s.stderr.String())
		}
		s.logger.Info("capture stopped", "frames", s.seq.Load())
	})
	return nil
}
