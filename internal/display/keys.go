package display

import (
	"bufio"
	"io"
	"strings"
	"sync/atomic"

	"github.com/bdougie/handcam/internal/annotate"
	"github.com/bdougie/handcam/internal/models"
)

// KeyWatcher turns a "q" line on a reader (normally stdin) into a stop request.
// It shows nothing.
type KeyWatcher struct {
	stop atomic.Bool
	done chan struct{}
}

// NewKeyWatcher starts reading r in the background
func NewKeyWatcher(r io.Reader) *KeyWatcher {
	k := &KeyWatcher{done: make(chan struct{})}
	go k.watch(r)
	return k
}

func (k *KeyWatcher) watch(r io.Reader) {
	defer close(k.done)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if strings.EqualFold(strings.TrimSpace(sc.Text()), "q") {
			k.stop.Store(true)
			return
		}
	}
}

func (k *KeyWatcher) Show(models.Frame, annotate.Overlay) error { return nil }

func (k *KeyWatcher) PollCancel() bool { return k.stop.Load() }

// Close does not wait for the reader; a blocked stdin read is left behind
func (k *KeyWatcher) Close() error { return nil }
