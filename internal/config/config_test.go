package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/bdougie/handcam/internal/codec"
	"github.com/bdougie/handcam/internal/preprocess"
)

func TestDefaults(t *testing.T) {
	s := DefaultSender()
	test.That(t, s.Addr, test.ShouldEqual, "localhost:8000")
	test.That(t, s.Budget, test.ShouldEqual, 60*time.Second)
	test.That(t, s.Warmup, test.ShouldEqual, 2*time.Second)
	test.That(t, s.Codec, test.ShouldEqual, "bgr")
	test.That(t, s.Capture.Width, test.ShouldEqual, 840)
	test.That(t, s.Capture.Height, test.ShouldEqual, 480)
	test.That(t, s.Capture.VFlip, test.ShouldBeTrue)
	test.That(t, s.Validate(), test.ShouldBeNil)

	d := DefaultDetect()
	test.That(t, d.Scale, test.ShouldEqual, 2.0)
	test.That(t, d.Label, test.ShouldEqual, "Hand Detected")
	test.That(t, d.Detector, test.ShouldEqual, "remote")
	test.That(t, d.Capture.VFlip, test.ShouldBeFalse)
	test.That(t, d.Validate(), test.ShouldBeNil)

	pg := DefaultPostgres()
	test.That(t, pg.Port, test.ShouldEqual, "5432")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HANDCAM_ADDR", "10.0.0.2:9000")
	t.Setenv("HANDCAM_BUDGET", "5s")
	t.Setenv("HANDCAM_WIDTH", "640")
	t.Setenv("HANDCAM_VFLIP", "off")
	t.Setenv("HANDCAM_SCALE", "1.5")
	t.Setenv("HANDCAM_HEIGHT", "not-a-number")

	s := DefaultSender()
	test.That(t, s.Addr, test.ShouldEqual, "10.0.0.2:9000")
	test.That(t, s.Budget, test.ShouldEqual, 5*time.Second)
	test.That(t, s.Capture.Width, test.ShouldEqual, 640)
	test.That(t, s.Capture.Height, test.ShouldEqual, 480)
	test.That(t, s.Capture.VFlip, test.ShouldBeFalse)

	test.That(t, DefaultDetect().Scale, test.ShouldEqual, 1.5)
}

func TestLoadDotEnv(t *testing.T) {
	test.That(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")), test.ShouldBeNil)

	path := filepath.Join(t.TempDir(), ".env")
	test.That(t, os.WriteFile(path, []byte("HANDCAM_LABEL=Fist\n"), 0o644), test.ShouldBeNil)
	t.Setenv("HANDCAM_LABEL", "")
	os.Unsetenv("HANDCAM_LABEL")
	test.That(t, LoadDotEnv(path), test.ShouldBeNil)
	test.That(t, DefaultDetect().Label, test.ShouldEqual, "Fist")
}

func TestSenderValidate(t *testing.T) {
	s := DefaultSender()
	s.Addr = ""
	s.Codec = "gif"
	s.Capture.Width = 0
	err := s.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "address")
	test.That(t, errors.Is(err, codec.ErrUnknownCodec), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "capture size")

	s = DefaultSender()
	s.Capture = Capture{FramesDir: "frames"}
	test.That(t, s.Validate(), test.ShouldBeNil)
}

func TestDetectValidate(t *testing.T) {
	d := DefaultDetect()
	d.Scale = 0
	d.Detector = "dlib"
	d.Record = "json"
	err := d.Validate()
	test.That(t, errors.Is(err, preprocess.ErrInvalidScaleFactor), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown detector")
	test.That(t, err.Error(), test.ShouldContainSubstring, "output directory")

	d = DefaultDetect()
	d.Listen = ":8000"
	d.Capture.Input = ""
	test.That(t, d.Validate(), test.ShouldBeNil)

	d.Record = "sqlite"
	test.That(t, d.Validate(), test.ShouldNotBeNil)

	d = DefaultDetect()
	d.Listen = ":8000"
	d.MaxFrameSize = -1
	err = d.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max frame size -1")

	d.MaxFrameSize = 0
	test.That(t, d.Validate(), test.ShouldBeNil)
}
