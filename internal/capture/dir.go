package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/bdougie/handcam/internal/models"
)

// DirSource replays the images of a directory in file name order
type DirSource struct {
	dir   string
	files []string
	next  int
	seq   uint64
	loop  bool
}

// NewDirSource lists the .jpg, .jpeg and .png files in dir. With loop set the
// sequence restarts instead of ending.
func NewDirSource(dir string, loop bool) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames directory '%s': %w", dir, err)
	}

	var frames []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			frames = append(frames, e.Name())
		}
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("no image frames found in directory '%s'", dir)
	}
	sort.Strings(frames)

	return &DirSource{dir: dir, files: frames, loop: loop}, nil
}

// Len returns the number of frames in one pass
func (s *DirSource) Len() int { return len(s.files) }

func (s *DirSource) Next(ctx context.Context) (models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return models.Frame{}, err
	}
	if s.next >= len(s.files) {
		if !s.loop {
			return models.Frame{}, ErrEndOfData
		}
		s.next = 0
	}

	path := filepath.Join(s.dir, s.files[s.next])
	s.next++

	img, err := imaging.Open(path)
	if err != nil {
		return models.Frame{}, fmt.Errorf("open frame '%s': %w", path, err)
	}
	s.seq++
	return models.Frame{Seq: s.seq, Captured: time.Now(), Image: img}, nil
}

func (s *DirSource) Close() error { return nil }
