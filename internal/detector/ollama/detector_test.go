package ollama

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/disintegration/imaging"
	"go.viam.com/test"

	"github.com/bdougie/handcam/internal/models"
)

func TestParseBoxes(t *testing.T) {
	bounds := image.Rect(0, 0, 420, 240)

	boxes, err := ParseBoxes(`Here you go: [{"left":10,"top":10,"right":20,"bottom":20}]`, bounds)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, boxes, test.ShouldResemble, []models.DetectionBox{{Left: 10, Top: 10, Right: 20, Bottom: 20}})

	boxes, err = ParseBoxes("```json\n[]\n```", bounds)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, boxes, test.ShouldBeEmpty)

	// swapped corners, clipping, and a degenerate box
	boxes, err = ParseBoxes(`[{"left":30,"top":50,"right":5,"bottom":10},{"left":400,"top":200,"right":500,"bottom":300},{"left":1,"top":1,"right":1,"bottom":9}]`, bounds)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, boxes, test.ShouldResemble, []models.DetectionBox{
		{Left: 5, Top: 10, Right: 30, Bottom: 50},
		{Left: 400, Top: 200, Right: 420, Bottom: 240},
	})
}

func TestParseBoxesMalformed(t *testing.T) {
	for _, reply := range []string{"I see a hand.", `[{"left":"ten"}]`, "] [", ""} {
		_, err := ParseBoxes(reply, image.Rect(0, 0, 10, 10))
		test.That(t, errors.Is(err, ErrBadResponse), test.ShouldBeTrue)
	}
}

type fakeRunner struct {
	reply  string
	err    error
	inputs int
}

func (f *fakeRunner) Run(ctx context.Context, opts ...agent.RunOptionFunc) (*agent.AgentRunAggregator, error) {
	ro := &agent.RunOptions{}
	for _, o := range opts {
		o(ro)
	}
	if len(ro.Images) != 1 || ro.Images[0].MimeType != "image/jpeg" || ro.Images[0].Base64Encoding == "" {
		return nil, errors.New("image missing")
	}
	if !strings.Contains(ro.Input, "hand") || !strings.Contains(ro.Input, "420x240") {
		return nil, errors.New("unexpected prompt: " + ro.Input)
	}
	f.inputs++
	if f.err != nil {
		return nil, f.err
	}
	agg := agent.NewAgentRunAggregator()
	agg.Push(&core.Message{Role: core.UserMessageRole, Content: ro.Input})
	agg.Push(&core.Message{Content: f.reply})
	return agg, nil
}

func newTestDetector(r *fakeRunner) *Detector {
	return &Detector{
		newAgent: func() (runner, error) { return r, nil },
		target:   "hand",
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestDetect(t *testing.T) {
	r := &fakeRunner{reply: `[{"left":10,"top":10,"right":20,"bottom":20}]`}
	d := newTestDetector(r)

	img := imaging.New(420, 240, color.Black)
	boxes, err := d.Detect(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, boxes, test.ShouldHaveLength, 1)

	_, err = d.Detect(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.inputs, test.ShouldEqual, 2)
}

func TestDetectErrors(t *testing.T) {
	img := imaging.New(420, 240, color.Black)

	_, err := newTestDetector(&fakeRunner{err: errors.New("model not found")}).Detect(context.Background(), img)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "model not found")

	_, err = newTestDetector(&fakeRunner{reply: "there is a hand"}).Detect(context.Background(), img)
	test.That(t, errors.Is(err, ErrBadResponse), test.ShouldBeTrue)
}

func TestCheckOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	host, port, ok := strings.Cut(srv.URL, "://127.0.0.1:")
	test.That(t, ok, test.ShouldBeTrue)
	p, err := strconv.Atoi(port)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, CheckOllama(context.Background(), Config{Host: host + "://127.0.0.1", Port: p}), test.ShouldBeNil)

	srv.Close()
	test.That(t, CheckOllama(context.Background(), Config{Host: host + "://127.0.0.1", Port: p}), test.ShouldNotBeNil)
}
