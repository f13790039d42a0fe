package codec

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ErrFrameSize is returned when a raw payload does not match the configured frame size
var ErrFrameSize = errors.New("raw payload size mismatch")

// ChannelOrder is the byte order of a packed 24-bit pixel
type ChannelOrder int

const (
	RGB ChannelOrder = iota
	BGR
)

// Raw is a packed 24-bit pixel buffer, row-major, no padding.
// Width and Height are only needed for decoding.
type Raw struct {
	Order  ChannelOrder
	Width  int
	Height int
}

func (r Raw) Name() string {
	if r.Order == BGR {
		return "bgr"
	}
	return "rgb"
}

func (r Raw) Encode(img image.Image) ([]byte, error) {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			if r.Order == BGR {
				out = append(out, row[x+2], row[x+1], row[x])
			} else {
				out = append(out, row[x], row[x+1], row[x+2])
			}
		}
	}
	return out, nil
}

func (r Raw) Decode(payload []byte) (image.Image, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("%w: frame size not configured", ErrFrameSize)
	}
	if len(payload) != r.Width*r.Height*3 {
		return nil, fmt.Errorf("%w: got %d bytes, want %dx%dx3", ErrFrameSize, len(payload), r.Width, r.Height)
	}
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i, j := 0, 0; i < len(payload); i, j = i+3, j+4 {
		if r.Order == BGR {
			img.Pix[j], img.Pix[j+1], img.Pix[j+2] = payload[i+2], payload[i+1], payload[i]
		} else {
			img.Pix[j], img.Pix[j+1], img.Pix[j+2] = payload[i], payload[i+1], payload[i+2]
		}
		img.Pix[j+3] = 0xff
	}
	return img, nil
}
