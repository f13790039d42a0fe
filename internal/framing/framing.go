// Package framing implements the frame transport protocol: every message is a 4-byte
// little-endian payload length followed by the payload. A zero length terminates the stream.
package framing

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// HeaderSize is the size of the length prefix
const HeaderSize = 4

var (
	// ErrEndOfStream is returned by ReadFrame when the terminator is read
	ErrEndOfStream = errors.New("end of frame stream")

	// ErrTruncatedStream means the peer closed in the middle of a header or payload
	ErrTruncatedStream = errors.New("truncated frame stream")

	// ErrEmptyPayload is returned when encoding a zero-length payload, which would read as the terminator
	ErrEmptyPayload = errors.New("empty frame payload")

	// ErrPayloadTooLarge is returned for payloads that do not fit the 32-bit length header
	ErrPayloadTooLarge = errors.New("frame payload exceeds 32-bit length")

	// ErrFrameTooLarge is returned by a Reader whose MaxFrameSize is below the announced length
	ErrFrameTooLarge = errors.New("frame exceeds reader limit")
)

// EncodeFrame returns the wire form of one frame
func EncodeFrame(payload []byte) ([]byte, error) {
	if err := checkPayload(payload); err != nil {
		return nil, err
	}
	msg := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(msg, uint32(len(payload)))
	copy(msg[HeaderSize:], payload)
	return msg, nil
}

func checkPayload(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	return nil
}

// Writer writes frames to a stream. Every call flushes before returning,
// so no unsent frame stays buffered on the sending side.
type Writer struct {
	bw     *bufio.Writer
	header [HeaderSize]byte
}

// NewWriter wraps w
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteFrame writes the length header, flushes, then writes the payload and flushes.
// Errors are returned as-is; nothing is retried.
func (w *Writer) WriteFrame(payload []byte) error {
	if err := checkPayload(payload); err != nil {
		return err
	}
	if err := w.writeHeader(uint32(len(payload))); err != nil {
		return err
	}
	if _, err := w.bw.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush payload: %w", err)
	}
	return nil
}

// WriteTerminator writes the zero-length end-of-stream message
func (w *Writer) WriteTerminator() error {
	return w.writeHeader(0)
}

func (w *Writer) writeHeader(n uint32) error {
	binary.LittleEndian.PutUint32(w.header[:], n)
	if _, err := w.bw.Write(w.header[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush header: %w", err)
	}
	return nil
}

// Reader decodes frames from a stream
type Reader struct {
	r io.Reader

	// MaxFrameSize bounds the payload allocation. Zero means no limit.
	MaxFrameSize uint32

	header [HeaderSize]byte
	done   bool
}

// NewReader wraps r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame blocks until one full payload has been read. It returns ErrEndOfStream
// on the terminator (and on every call after it) without reading further, and
// ErrTruncatedStream if the stream ends inside a message.
func (r *Reader) ReadFrame() ([]byte, error) {
	if r.done {
		return nil, ErrEndOfStream
	}

	if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
		return nil, truncated("header", err)
	}

	n := binary.LittleEndian.Uint32(r.header[:])
	if n == 0 {
		r.done = true
		return nil, ErrEndOfStream
	}
	if r.MaxFrameSize > 0 && n > r.MaxFrameSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, n, r.MaxFrameSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, truncated("payload", err)
	}
	return payload, nil
}

func truncated(part string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrTruncatedStream, part)
	}
	return fmt.Errorf("%w: reading %s: %w", ErrTruncatedStream, part, err)
}
