// Package annotate builds and rasterises the diagnostic overlay drawn on each frame.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/bdougie/handcam/internal/models"
)

var (
	// BoxColor outlines every detection
	BoxColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	// LabelColor is used for box labels and the FPS counter
	LabelColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	// MetricColor is used for the center and size readouts
	MetricColor = color.RGBA{R: 25, G: 100, B: 233, A: 255}
)

const (
	// LabelOffset is how far below a box its label baseline sits
	LabelOffset = 20
	// FontSize of every overlay string
	FontSize  = 16
	lineWidth = 2
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// LabeledBox is a box in working-frame coordinates with its caption
type LabeledBox struct {
	Box   models.DetectionBox
	Label string
}

// Text is a string drawn with its baseline starting at At
type Text struct {
	Value string
	At    image.Point
	Color color.Color
}

// Overlay is everything drawn on top of one frame
type Overlay struct {
	Boxes []LabeledBox
	Texts []Text
}

// NewOverlay returns an empty overlay
func NewOverlay() Overlay {
	return Overlay{}
}

// AddBox adds a box and puts its label just below the bottom-left corner
func (o *Overlay) AddBox(box models.DetectionBox, label string) {
	o.Boxes = append(o.Boxes, LabeledBox{Box: box, Label: label})
	if label == "" {
		return
	}
	o.Texts = append(o.Texts, Text{
		Value: label,
		At:    image.Pt(box.Left, box.Bottom+LabelOffset),
		Color: LabelColor,
	})
}

// AddMetrics adds the FPS counter in the top-left corner and the last detection's
// center and size on the right.
func (o *Overlay) AddMetrics(m models.LoopMetrics) {
	o.Texts = append(o.Texts,
		Text{Value: fmt.Sprintf("FPS: %.2f", m.FPS()), At: image.Pt(20, 20), Color: LabelColor},
		Text{Value: fmt.Sprintf("Center: %d", m.LastCenterX), At: image.Pt(540, 20), Color: MetricColor},
		Text{Value: fmt.Sprintf("size: %d", m.LastBoxSize), At: image.Pt(540, 40), Color: MetricColor},
	)
}

// Render draws the overlay onto a copy of img. img itself is left untouched.
func Render(img image.Image, o Overlay) image.Image {
	dc := gg.NewContextForImage(img)

	dc.SetLineWidth(lineWidth)
	dc.SetColor(BoxColor)
	for _, b := range o.Boxes {
		r := b.Box
		dc.DrawRectangle(float64(r.Left), float64(r.Top), float64(r.Width()), float64(r.Height()))
		dc.Stroke()
	}

	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: FontSize}))
	for _, t := range o.Texts {
		dc.SetColor(t.Color)
		dc.DrawString(t.Value, float64(t.At.X), float64(t.At.Y))
	}
	return dc.Image()
}
