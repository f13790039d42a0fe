package models

import (
	"image"
	"time"
)

// Frame represents one captured image
type Frame struct {
	Seq      uint64
	Captured time.Time
	Image    image.Image
}

// Width returns the frame width in pixels
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// DetectionBox is an axis-aligned box in the pixel space of the image it was found on
type DetectionBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width of the box
func (b DetectionBox) Width() int { return b.Right - b.Left }

// Height of the box
func (b DetectionBox) Height() int { return b.Bottom - b.Top }

// Rect converts the box to an image.Rectangle
func (b DetectionBox) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// LoopMetrics holds the running counters of a detection loop
type LoopMetrics struct {
	FrameCount  uint64        `json:"frame_count"`
	Elapsed     time.Duration `json:"elapsed"`
	LastBoxSize int           `json:"last_box_size"`
	LastCenterX int           `json:"last_center_x"`
}

// Tick counts one frame and records the time elapsed since the loop started
func (m *LoopMetrics) Tick(elapsed time.Duration) {
	m.FrameCount++
	m.Elapsed = elapsed
}

// Observe updates the last-detection metrics from a box in full-resolution coordinates.
// The last box observed in a frame wins.
func (m *LoopMetrics) Observe(box DetectionBox) {
	m.LastBoxSize = box.Width() * box.Height()
	// right - floor(left/2), as the hand tracker has always reported it
	m.LastCenterX = box.Right - floorDiv(box.Left, 2)
}

// FPS is the average frame rate since the loop started
func (m LoopMetrics) FPS() float64 {
	if m.Elapsed <= 0 {
		return 0
	}
	return float64(m.FrameCount) / m.Elapsed.Seconds()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// DetectionRecord is what gets persisted for a frame with detections
type DetectionRecord struct {
	SessionID   string         `json:"session_id"`
	Seq         uint64         `json:"seq"`
	Captured    time.Time      `json:"captured"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Boxes       []DetectionBox `json:"boxes"`
	FPS         float64        `json:"fps"`
	LastBoxSize int            `json:"last_box_size"`
	LastCenterX int            `json:"last_center_x"`
}

// BoxSearchResult is one row of a similar-box search
type BoxSearchResult struct {
	SessionID  string
	Seq        uint64
	Box        DetectionBox
	Similarity float64
}
