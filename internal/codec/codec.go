// Package codec converts frames to and from the payload bytes carried by the frame protocol.
// A session picks one codec and keeps it for its whole lifetime.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrUnknownCodec is returned by Parse
var ErrUnknownCodec = errors.New("unknown codec")

// Codec encodes and decodes frame payloads
type Codec interface {
	Name() string
	Encode(img image.Image) ([]byte, error)
	Decode(payload []byte) (image.Image, error)
}

// Parse returns the codec for name. Raw codecs need the frame size to decode.
func Parse(name string, width, height, quality int) (Codec, error) {
	switch strings.ToLower(name) {
	case "rgb":
		return Raw{Order: RGB, Width: width, Height: height}, nil
	case "bgr":
		return Raw{Order: BGR, Width: width, Height: height}, nil
	case "jpeg", "jpg":
		return JPEG{Quality: quality}, nil
	case "png":
		return PNG{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// JPEG encodes frames as JPEG images
type JPEG struct {
	Quality int
}

func (JPEG) Name() string { return "jpeg" }

func (c JPEG) Encode(img image.Image) ([]byte, error) {
	q := c.Quality
	if q <= 0 || q > 100 {
		q = 80
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (JPEG) Decode(payload []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	return img, nil
}

// PNG encodes frames losslessly
type PNG struct{}

func (PNG) Name() string { return "png" }

func (PNG) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (PNG) Decode(payload []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}
