// Package detectloop runs the local detection pipeline: capture, mirror and downscale,
// detect, map boxes back to full resolution, annotate and show.
package detectloop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"go.uber.org/multierr"

	"github.com/bdougie/handcam/internal/annotate"
	"github.com/bdougie/handcam/internal/capture"
	"github.com/bdougie/handcam/internal/models"
	"github.com/bdougie/handcam/internal/preprocess"
	"github.com/bdougie/handcam/internal/storage"
)

// ErrDetectionFailure wraps any error returned by a Detector
var ErrDetectionFailure = errors.New("detection failed")

// Detector finds objects in an image. Boxes are in the pixel space of img.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.DetectionBox, error)
}

// DisplaySink shows annotated frames and reports whether the viewer asked to stop
type DisplaySink interface {
	Show(frame models.Frame, overlay annotate.Overlay) error
	PollCancel() bool
	Close() error
}

// State of a Loop
type State int

const (
	// Idle is a loop that has not been run
	Idle State = iota
	// Warming waits out the capture warm-up
	Warming
	// Running processes frames
	Running
	// Stopped has released its source and sink
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Warming:
		return "warming"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the tunables of a loop
type Config struct {
	// Scale divides each side of the frame before detection
	Scale float64
	// Label is drawn under every box
	Label string
	// Warmup is slept once before the first capture
	Warmup time.Duration
}

// Option customises a Loop
type Option func(*Loop)

// WithClock replaces the wall clock, mostly for tests
func WithClock(clk clock.Clock) Option {
	return func(l *Loop) { l.clk = clk }
}

// WithStorage records every frame that has at least one detection
func WithStorage(s storage.Storage) Option {
	return func(l *Loop) { l.store = s }
}

// WithSessionID sets the id stamped on records and logs
func WithSessionID(id string) Option {
	return func(l *Loop) { l.sessionID = id }
}

// Loop is a single-threaded detection pipeline. It is not safe to Run twice.
type Loop struct {
	source    capture.Source
	detector  Detector
	sink      DisplaySink
	store     storage.Storage
	cfg       Config
	clk       clock.Clock
	logger    *slog.Logger
	sessionID string

	mu      sync.Mutex
	state   State
	metrics models.LoopMetrics

	releaseOnce sync.Once
	releaseErr  error
}

// New builds a loop. An invalid scale is rejected here, before anything is captured.
func New(source capture.Source, detector Detector, sink DisplaySink, cfg Config, logger *slog.Logger, opts ...Option) (*Loop, error) {
	if err := preprocess.ValidateScale(cfg.Scale); err != nil {
		return nil, err
	}
	l := &Loop{
		source:    source,
		detector:  detector,
		sink:      sink,
		cfg:       cfg,
		clk:       clock.New(),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logger.With("session", l.sessionID)
	return l, nil
}

// SessionID identifies this run
func (l *Loop) SessionID() string { return l.sessionID }

// State returns the current state
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Metrics returns a snapshot of the running counters
func (l *Loop) Metrics() models.LoopMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metrics
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	prev := l.state
	l.state = s
	l.mu.Unlock()
	if prev != s {
		l.logger.Debug("detection loop state", "from", prev, "to", s)
	}
}

// Run processes frames until the source runs dry, ctx is cancelled or the sink asks to
// stop, all of which return nil. Capture, detection and display errors are fatal. The
// source and sink are closed and storage flushed exactly once on every path.
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		l.setState(Stopped)
		err = multierr.Append(err, l.release())
		m := l.Metrics()
		l.logger.Info("detection loop stopped", "frames", m.FrameCount, "fps", fmt.Sprintf("%.2f", m.FPS()))
	}()

	l.setState(Warming)
	if err := capture.Warmup(ctx, l.clk, l.cfg.Warmup); err != nil {
		return nil
	}

	l.mu.Lock()
	l.metrics = models.LoopMetrics{}
	l.mu.Unlock()
	start := l.clk.Now()
	l.setState(Running)
	l.logger.Info("detection loop running", "scale", l.cfg.Scale)

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := l.source.Next(ctx)
		if errors.Is(err, capture.ErrEndOfData) {
			l.logger.Info("capture source exhausted")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("capture frame: %w", err)
		}

		if err := l.step(ctx, frame, start); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if l.sink.PollCancel() {
			l.logger.Info("stop requested by viewer")
			return nil
		}
	}
}

// step handles one captured frame
func (l *Loop) step(ctx context.Context, frame models.Frame, start time.Time) error {
	l.mu.Lock()
	l.metrics.Tick(l.clk.Since(start))
	l.mu.Unlock()

	working, scaled, err := preprocess.Preprocess(frame, l.cfg.Scale)
	if err != nil {
		return fmt.Errorf("preprocess frame %d: %w", frame.Seq, err)
	}

	found, err := l.detector.Detect(ctx, scaled.Image)
	if err != nil {
		return fmt.Errorf("%w: frame %d: %w", ErrDetectionFailure, frame.Seq, err)
	}

	overlay := annotate.NewOverlay()
	boxes := make([]models.DetectionBox, 0, len(found))
	l.mu.Lock()
	for _, b := range found {
		box := preprocess.RescaleBox(b, l.cfg.Scale)
		l.metrics.Observe(box)
		overlay.AddBox(box, l.cfg.Label)
		boxes = append(boxes, box)
	}
	m := l.metrics
	l.mu.Unlock()
	overlay.AddMetrics(m)

	l.logger.Debug("frame processed", "seq", frame.Seq, "boxes", len(boxes), "fps", m.FPS())

	if l.store != nil && len(boxes) > 0 {
		rec := models.DetectionRecord{
			SessionID:   l.sessionID,
			Seq:         frame.Seq,
			Captured:    frame.Captured,
			Width:       working.Width(),
			Height:      working.Height(),
			Boxes:       boxes,
			FPS:         m.FPS(),
			LastBoxSize: m.LastBoxSize,
			LastCenterX: m.LastCenterX,
		}
		if err := l.store.AddResult(ctx, rec); err != nil {
			l.logger.Warn("failed to record detections", "seq", frame.Seq, tint.Err(err))
		}
	}

	if err := l.sink.Show(working, overlay); err != nil {
		return fmt.Errorf("display frame %d: %w", frame.Seq, err)
	}
	return nil
}

func (l *Loop) release() error {
	l.releaseOnce.Do(func() {
		l.releaseErr = multierr.Combine(
			l.source.Close(),
			l.sink.Close(),
		)
		if l.store != nil {
			l.releaseErr = multierr.Append(l.releaseErr, l.store.Flush())
		}
	})
	return l.releaseErr
}
