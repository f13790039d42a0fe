package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/bdougie/handcam/internal/capture"
	"github.com/bdougie/handcam/internal/codec"
	"github.com/bdougie/handcam/internal/framing"
	"github.com/bdougie/handcam/internal/models"
)

// RemoteSource reads frames sent by a Session. The terminator ends the source with
// capture.ErrEndOfData; a stream cut short is a framing.ErrTruncatedStream.
type RemoteSource struct {
	conn  io.ReadCloser
	r     *framing.Reader
	codec codec.Codec
	seq   uint64

	closed atomic.Bool
}

// NewRemoteSource decodes frames from conn with c. maxFrame bounds a single payload, 0 for no bound.
func NewRemoteSource(conn io.ReadCloser, c codec.Codec, maxFrame uint32) *RemoteSource {
	r := framing.NewReader(conn)
	r.MaxFrameSize = maxFrame
	return &RemoteSource{conn: conn, r: r, codec: c}
}

// Next blocks until a whole frame arrived. Cancelling ctx closes the connection.
func (s *RemoteSource) Next(ctx context.Context) (models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return models.Frame{}, err
	}
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	payload, err := s.r.ReadFrame()
	if errors.Is(err, framing.ErrEndOfStream) {
		return models.Frame{}, capture.ErrEndOfData
	}
	if err != nil {
		if ctx.Err() != nil {
			return models.Frame{}, ctx.Err()
		}
		return models.Frame{}, err
	}

	img, err := s.codec.Decode(payload)
	if err != nil {
		return models.Frame{}, fmt.Errorf("decode frame %d: %w", s.seq+1, err)
	}
	s.seq++
	return models.Frame{Seq: s.seq, Captured: time.Now(), Image: img}, nil
}

// Close closes the connection once
func (s *RemoteSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}
