// Package display holds the sinks annotated frames are shown on.
package display

import (
	"go.uber.org/multierr"

	"github.com/bdougie/handcam/internal/annotate"
	"github.com/bdougie/handcam/internal/detectloop"
	"github.com/bdougie/handcam/internal/models"
)

// Multi shows every frame on all of its sinks
type Multi []detectloop.DisplaySink

var _ detectloop.DisplaySink = Multi(nil)

// Show forwards to every sink, even after one fails
func (m Multi) Show(frame models.Frame, overlay annotate.Overlay) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Show(frame, overlay))
	}
	return err
}

// PollCancel is true if any sink asked to stop. Every sink is polled.
func (m Multi) PollCancel() bool {
	stop := false
	for _, s := range m {
		if s.PollCancel() {
			stop = true
		}
	}
	return stop
}

func (m Multi) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}
