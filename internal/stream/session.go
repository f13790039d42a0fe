// Package stream moves frames over the frame transport protocol: Session sends a capture
// source for a fixed budget, RemoteSource turns a received stream back into a source.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/bdougie/handcam/internal/capture"
	"github.com/bdougie/handcam/internal/codec"
	"github.com/bdougie/handcam/internal/framing"
	"github.com/bdougie/handcam/internal/transport"
)

// Stats summarises a finished session
type Stats struct {
	Frames  int
	Bytes   int64
	Elapsed time.Duration
}

// Session streams frames from a source to a connection
type Session struct {
	codec  codec.Codec
	clk    clock.Clock
	logger *slog.Logger
}

// SessionOption customises a Session
type SessionOption func(*Session)

// WithSessionClock replaces the wall clock used for the budget
func WithSessionClock(clk clock.Clock) SessionOption {
	return func(s *Session) { s.clk = clk }
}

// NewSession creates a session that encodes every frame with c
func NewSession(c codec.Codec, logger *slog.Logger, opts ...SessionOption) *Session {
	s := &Session{codec: c, clk: clock.New(), logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sends frames until the budget has elapsed, the source runs dry or ctx is done.
// The budget is checked after each frame, so the frame in flight always completes. The
// context handed to source.Next also expires with the budget so a silent source cannot
// hold the session open. The terminator is then attempted on every exit path, even after
// a failed write, and conn is closed exactly once. Write failures wrap transport.ErrTransportFailure.
// The source is left open for the caller.
func (s *Session) Run(ctx context.Context, source capture.Source, conn io.WriteCloser, budget time.Duration) (stats Stats, err error) {
	start := s.clk.Now()
	budgetCtx, cancel := s.clk.WithTimeout(ctx, budget)
	defer cancel()

	fw := framing.NewWriter(conn)

	defer func() {
		// after a failed write the buffered writer keeps its error, so nothing more reaches conn
		if terr := fw.WriteTerminator(); terr != nil {
			err = multierr.Append(err, transportError("terminator", terr))
		}
		err = multierr.Append(err, conn.Close())
		stats.Elapsed = s.clk.Since(start)
		s.logger.Info("stream session finished",
			"frames", stats.Frames,
			"bytes", stats.Bytes,
			"elapsed", stats.Elapsed.Round(time.Millisecond),
		)
	}()

	s.logger.Info("stream session started", "codec", s.codec.Name(), "budget", budget)

	for {
		frame, err := source.Next(budgetCtx)
		if errors.Is(err, capture.ErrEndOfData) {
			s.logger.Info("capture source exhausted")
			return stats, nil
		}
		if err != nil {
			if budgetCtx.Err() != nil {
				return stats, nil
			}
			return stats, fmt.Errorf("capture frame: %w", err)
		}

		payload, err := s.codec.Encode(frame.Image)
		if err != nil {
			return stats, fmt.Errorf("encode frame %d: %w", frame.Seq, err)
		}

		if err := fw.WriteFrame(payload); err != nil {
			return stats, transportError(fmt.Sprintf("frame %d", frame.Seq), err)
		}
		stats.Frames++
		stats.Bytes += int64(framing.HeaderSize + len(payload))
		s.logger.Debug("frame sent", "seq", frame.Seq, "bytes", len(payload))

		if budgetCtx.Err() != nil || s.clk.Since(start) >= budget {
			return stats, nil
		}
	}
}

func transportError(what string, err error) error {
	if errors.Is(err, transport.ErrTransportFailure) {
		return fmt.Errorf("send %s: %w", what, err)
	}
	return fmt.Errorf("%w: send %s: %w", transport.ErrTransportFailure, what, err)
}
