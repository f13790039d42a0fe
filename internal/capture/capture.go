// Package capture provides frame sources: a live ffmpeg capture process, a directory of
// still images, and the one-time warm-up delay some devices need before the first frame.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/bdougie/handcam/internal/models"
)

// ErrEndOfData signals that a source has no more frames. It ends loops cleanly.
var ErrEndOfData = errors.New("end of capture data")

// Source yields frames one at a time
type Source interface {
	// Next blocks until a frame is available, the source is exhausted (ErrEndOfData)
	// or ctx is done.
	Next(ctx context.Context) (models.Frame, error)

	// Close releases the capture device
	Close() error
}

// Warmup waits once for d so a capture device can stabilize. It returns early with
// ctx.Err() if ctx is done first.
func Warmup(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
