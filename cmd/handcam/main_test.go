package main

import (
	"testing"

	"go.viam.com/test"

	"github.com/bdougie/handcam/internal/models"
)

func TestParseBox(t *testing.T) {
	box, err := parseBox("10, 20,110,220")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, box, test.ShouldResemble, models.DetectionBox{Left: 10, Top: 20, Right: 110, Bottom: 220})

	_, err = parseBox("1,2,3")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = parseBox("1,2,x,4")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	test.That(t, names, test.ShouldResemble, []string{"send", "detect", "initdb", "search", "extract"})
}

func TestDetectRejectsBadScale(t *testing.T) {
	app := newApp()
	err := app.Run([]string{"handcam", "detect", "--scale", "0", "--frames", t.TempDir(), "--keys=false"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "scale")
}
