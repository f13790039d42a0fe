// Package preprocess prepares captured frames for detection and maps detections
// from the downscaled detection space back onto the full-size frame.
package preprocess

import (
	"errors"
	"fmt"
	"math"

	"github.com/disintegration/imaging"

	"github.com/bdougie/handcam/internal/models"
)

// ErrInvalidScaleFactor is returned for scale factors that are not finite and positive
var ErrInvalidScaleFactor = errors.New("invalid scale factor")

// ValidateScale checks a downscale factor
func ValidateScale(scale float64) error {
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidScaleFactor, scale)
	}
	return nil
}

// ScaledSize returns the detection image size for a w x h frame: each side divided
// by scale and rounded down, never below one pixel.
func ScaledSize(w, h int, scale float64) (int, int) {
	sw := int(float64(w) / scale)
	sh := int(float64(h) / scale)
	return max(sw, 1), max(sh, 1)
}

// Preprocess mirrors the frame horizontally and returns it as working, plus a copy of
// working downscaled by scale for the detector. The two never share pixel memory.
func Preprocess(frame models.Frame, scale float64) (working, scaled models.Frame, err error) {
	if err := ValidateScale(scale); err != nil {
		return models.Frame{}, models.Frame{}, err
	}
	if frame.Image == nil {
		return models.Frame{}, models.Frame{}, errors.New("frame has no image")
	}

	mirrored := imaging.FlipH(frame.Image)
	working = models.Frame{Seq: frame.Seq, Captured: frame.Captured, Image: mirrored}

	w, h := mirrored.Rect.Dx(), mirrored.Rect.Dy()
	sw, sh := ScaledSize(w, h, scale)
	scaled = working
	if sw == w && sh == h {
		scaled.Image = imaging.Clone(mirrored)
	} else {
		scaled.Image = imaging.Resize(mirrored, sw, sh, imaging.Linear)
	}
	return working, scaled, nil
}

// RescaleBox maps a box found on the scaled image back to working-frame coordinates.
// Every coordinate is multiplied by scale and truncated toward zero.
func RescaleBox(box models.DetectionBox, scale float64) models.DetectionBox {
	return models.DetectionBox{
		Left:   int(float64(box.Left) * scale),
		Top:    int(float64(box.Top) * scale),
		Right:  int(float64(box.Right) * scale),
		Bottom: int(float64(box.Bottom) * scale),
	}
}
