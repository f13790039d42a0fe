package display

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/bdougie/handcam/internal/annotate"
	"github.com/bdougie/handcam/internal/models"
)

// FileSink writes every annotated frame as a JPEG into a directory
type FileSink struct {
	dir     string
	quality int
	written int
	logger  *slog.Logger
}

// NewFileSink creates dir if needed
func NewFileSink(dir string, quality int, logger *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if quality <= 0 {
		quality = 80
	}
	return &FileSink{dir: dir, quality: quality, logger: logger}, nil
}

// FramePath is where frame seq ends up
func (s *FileSink) FramePath(seq uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("frame_%06d.jpg", seq))
}

func (s *FileSink) Show(frame models.Frame, overlay annotate.Overlay) error {
	path := s.FramePath(frame.Seq)
	if err := imaging.Save(annotate.Render(frame.Image, overlay), path, imaging.JPEGQuality(s.quality)); err != nil {
		return fmt.Errorf("save frame '%s': %w", path, err)
	}
	s.written++
	return nil
}

// PollCancel never asks to stop
func (s *FileSink) PollCancel() bool { return false }

func (s *FileSink) Close() error {
	s.logger.Info("annotated frames written", "dir", s.dir, "count", s.written)
	return nil
}
