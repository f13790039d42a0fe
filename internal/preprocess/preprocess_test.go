package preprocess

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/disintegration/imaging"
	"go.viam.com/test"

	"github.com/bdougie/handcam/internal/models"
)

func frameWithMarker(w, h int) models.Frame {
	img := imaging.New(w, h, color.Black)
	img.Set(0, 0, color.White)
	return models.Frame{Seq: 7, Image: img}
}

func TestPreprocessMirrorsAndScales(t *testing.T) {
	working, scaled, err := Preprocess(frameWithMarker(840, 480), 2.0)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, working.Seq, test.ShouldEqual, uint64(7))
	test.That(t, working.Width(), test.ShouldEqual, 840)
	test.That(t, working.Height(), test.ShouldEqual, 480)
	// the top-left marker moved to the top-right
	test.That(t, color.GrayModel.Convert(working.Image.At(839, 0)), test.ShouldResemble, color.Gray{Y: 255})
	test.That(t, color.GrayModel.Convert(working.Image.At(0, 0)), test.ShouldResemble, color.Gray{Y: 0})

	test.That(t, scaled.Width(), test.ShouldEqual, 420)
	test.That(t, scaled.Height(), test.ShouldEqual, 240)
	test.That(t, scaled.Seq, test.ShouldEqual, uint64(7))
}

func TestPreprocessRoundsDown(t *testing.T) {
	_, scaled, err := Preprocess(frameWithMarker(101, 51), 2.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scaled.Width(), test.ShouldEqual, 50)
	test.That(t, scaled.Height(), test.ShouldEqual, 25)

	_, scaled, err = Preprocess(frameWithMarker(100, 60), 1.5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scaled.Width(), test.ShouldEqual, 66)
	test.That(t, scaled.Height(), test.ShouldEqual, 40)
}

func TestPreprocessUnitScaleIsCopy(t *testing.T) {
	working, scaled, err := Preprocess(frameWithMarker(8, 4), 1.0)
	test.That(t, err, test.ShouldBeNil)

	w := working.Image.(*image.NRGBA)
	s := scaled.Image.(*image.NRGBA)
	test.That(t, s.Pix, test.ShouldResemble, w.Pix)

	// drawing on the working frame must not leak into the detection frame
	w.Set(0, 0, color.White)
	test.That(t, color.GrayModel.Convert(s.At(0, 0)), test.ShouldResemble, color.Gray{Y: 0})
}

func TestPreprocessInvalidScale(t *testing.T) {
	for _, s := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, _, err := Preprocess(frameWithMarker(4, 4), s)
		test.That(t, errors.Is(err, ErrInvalidScaleFactor), test.ShouldBeTrue)
	}
	_, _, err := Preprocess(models.Frame{}, 2)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestScaledSizeClamps(t *testing.T) {
	w, h := ScaledSize(3, 3, 10)
	test.That(t, w, test.ShouldEqual, 1)
	test.That(t, h, test.ShouldEqual, 1)
}

func TestRescaleBox(t *testing.T) {
	box := models.DetectionBox{Left: 10, Top: 10, Right: 20, Bottom: 20}
	test.That(t, RescaleBox(box, 2.0), test.ShouldResemble, models.DetectionBox{Left: 20, Top: 20, Right: 40, Bottom: 40})
	test.That(t, RescaleBox(box, 1.0), test.ShouldResemble, box)

	odd := models.DetectionBox{Left: 3, Top: 5, Right: 7, Bottom: 9}
	test.That(t, RescaleBox(odd, 1.5), test.ShouldResemble, models.DetectionBox{Left: 4, Top: 7, Right: 10, Bottom: 13})

	// truncation is toward zero for boxes hanging off the left edge
	neg := models.DetectionBox{Left: -3, Top: 0, Right: 5, Bottom: 5}
	test.That(t, RescaleBox(neg, 1.5).Left, test.ShouldEqual, -4)
}
