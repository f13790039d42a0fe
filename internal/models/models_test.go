package models

import (
	"testing"
	"time"

	"go.viam.com/test"
)

func TestObserveLastWriteWins(t *testing.T) {
	var m LoopMetrics
	m.Observe(DetectionBox{Left: 0, Top: 0, Right: 100, Bottom: 100})
	m.Observe(DetectionBox{Left: 20, Top: 20, Right: 40, Bottom: 40})
	test.That(t, m.LastBoxSize, test.ShouldEqual, 400)
	test.That(t, m.LastCenterX, test.ShouldEqual, 30)
}

func TestCenterXUsesFloorDivision(t *testing.T) {
	var m LoopMetrics
	m.Observe(DetectionBox{Left: -3, Top: 0, Right: 10, Bottom: 5})
	// 10 - floor(-3/2) = 10 - (-2)
	test.That(t, m.LastCenterX, test.ShouldEqual, 12)
	test.That(t, m.LastBoxSize, test.ShouldEqual, 65)

	m.Observe(DetectionBox{Left: 7, Top: 0, Right: 20, Bottom: 1})
	test.That(t, m.LastCenterX, test.ShouldEqual, 17)
}

func TestFPS(t *testing.T) {
	var m LoopMetrics
	test.That(t, m.FPS(), test.ShouldEqual, 0.0)

	m.Tick(0)
	test.That(t, m.FrameCount, test.ShouldEqual, uint64(1))
	test.That(t, m.FPS(), test.ShouldEqual, 0.0)

	m.Tick(time.Second)
	m.Tick(2 * time.Second)
	test.That(t, m.FrameCount, test.ShouldEqual, uint64(3))
	test.That(t, m.FPS(), test.ShouldAlmostEqual, 1.5)
}

func TestFrameDimensions(t *testing.T) {
	var f Frame
	test.That(t, f.Width(), test.ShouldEqual, 0)
	test.That(t, f.Height(), test.ShouldEqual, 0)

	b := DetectionBox{Left: 2, Top: 3, Right: 12, Bottom: 8}
	test.That(t, b.Width(), test.ShouldEqual, 10)
	test.That(t, b.Height(), test.ShouldEqual, 5)
	test.That(t, b.Rect().Dx(), test.ShouldEqual, 10)
}
