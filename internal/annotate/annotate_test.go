package annotate

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"go.viam.com/test"

	"github.com/bdougie/handcam/internal/models"
)

func TestAddBox(t *testing.T) {
	o := NewOverlay()
	o.AddBox(models.DetectionBox{Left: 20, Top: 20, Right: 40, Bottom: 40}, "Hand Detected")

	test.That(t, o.Boxes, test.ShouldHaveLength, 1)
	test.That(t, o.Texts, test.ShouldHaveLength, 1)
	test.That(t, o.Texts[0].Value, test.ShouldEqual, "Hand Detected")
	test.That(t, o.Texts[0].At, test.ShouldResemble, image.Pt(20, 60))

	o.AddBox(models.DetectionBox{Left: 1, Top: 1, Right: 2, Bottom: 2}, "")
	test.That(t, o.Boxes, test.ShouldHaveLength, 2)
	test.That(t, o.Texts, test.ShouldHaveLength, 1)
}

func TestAddMetrics(t *testing.T) {
	m := models.LoopMetrics{FrameCount: 3, Elapsed: 2 * time.Second, LastBoxSize: 400, LastCenterX: 30}
	o := NewOverlay()
	o.AddMetrics(m)

	test.That(t, o.Texts, test.ShouldHaveLength, 3)
	test.That(t, o.Texts[0].Value, test.ShouldEqual, "FPS: 1.50")
	test.That(t, o.Texts[0].At, test.ShouldResemble, image.Pt(20, 20))
	test.That(t, o.Texts[1].Value, test.ShouldEqual, "Center: 30")
	test.That(t, o.Texts[1].At, test.ShouldResemble, image.Pt(540, 20))
	test.That(t, o.Texts[2].Value, test.ShouldEqual, "size: 400")
	test.That(t, o.Texts[2].At, test.ShouldResemble, image.Pt(540, 40))
}

func TestRender(t *testing.T) {
	src := imaging.New(100, 100, color.Black)
	o := NewOverlay()
	o.AddBox(models.DetectionBox{Left: 20, Top: 20, Right: 60, Bottom: 60}, "")

	out := Render(src, o)
	test.That(t, out.Bounds(), test.ShouldResemble, src.Bounds())

	// box edge is green, the inside and the source stay black
	r, g, b, _ := out.At(40, 20).RGBA()
	test.That(t, r>>8, test.ShouldEqual, uint32(0))
	test.That(t, g>>8, test.ShouldBeGreaterThan, uint32(100))
	test.That(t, b>>8, test.ShouldEqual, uint32(0))

	_, g, _, _ = out.At(40, 40).RGBA()
	test.That(t, g, test.ShouldEqual, uint32(0))
	_, g, _, _ = src.At(40, 20).RGBA()
	test.That(t, g, test.ShouldEqual, uint32(0))
}

func TestRenderText(t *testing.T) {
	src := imaging.New(120, 40, color.Black)
	o := NewOverlay()
	o.Texts = append(o.Texts, Text{Value: "FPS: 9.99", At: image.Pt(5, 25), Color: LabelColor})

	out := Render(src, o)
	lit := 0
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if r, _, _, _ := out.At(x, y).RGBA(); r > 0 {
				lit++
			}
		}
	}
	test.That(t, lit, test.ShouldBeGreaterThan, 0)
}
