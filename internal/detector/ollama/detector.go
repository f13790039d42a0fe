// Package ollama detects objects by asking a vision model served by Ollama for
// bounding boxes as JSON.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/agent-api/core/agent"
	"github.com/disintegration/imaging"

	"github.com/bdougie/handcam/internal/models"
)

// ErrBadResponse is returned when the model output holds no parsable box list
var ErrBadResponse = errors.New("model response is not a box list")

type runner interface {
	Run(ctx context.Context, opts ...agent.RunOptionFunc) (*agent.AgentRunAggregator, error)
}

// Detector asks a vision model where the objects are
type Detector struct {
	newAgent func() (runner, error)
	target   string
	logger   *slog.Logger
}

// NewDetector connects to Ollama. target names what to look for, e.g. "hand".
func NewDetector(ctx context.Context, cfg Config, target string, logger *slog.Logger) (*Detector, error) {
	if err := CheckOllama(ctx, cfg); err != nil {
		return nil, err
	}
	factory, err := newAgentFactory(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("ollama detector ready", "model", cfg.Model, "target", target)
	return &Detector{newAgent: factory, target: target, logger: logger}, nil
}

func (d *Detector) prompt(b image.Rectangle) string {
	return fmt.Sprintf(
		"Find every %s in this %dx%d image. Answer with a JSON array of objects "+
			`{"left":int,"top":int,"right":int,"bottom":int} in pixel coordinates. `+
			"Answer [] if there is none.",
		d.target, b.Dx(), b.Dy(),
	)
}

// Detect sends img as a base64 JPEG and parses the boxes in the last reply
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]models.DetectionBox, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	a, err := d.newAgent()
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}

	response, err := a.Run(
		ctx,
		agent.WithInput(d.prompt(img.Bounds())),
		agent.WithImageBase64(base64.StdEncoding.EncodeToString(buf.Bytes()), "image/jpeg"),
	)
	if err != nil {
		return nil, err
	}
	if response == nil || len(response.Messages) == 0 {
		return nil, fmt.Errorf("no response messages received from model")
	}

	content := response.Messages[len(response.Messages)-1].Content
	d.logger.Debug("model response", "content", content)

	return ParseBoxes(content, img.Bounds())
}

type jsonBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// ParseBoxes pulls the first JSON array out of a model reply and clips each box to
// bounds. Boxes with swapped corners are normalised; empty boxes are dropped.
func ParseBoxes(content string, bounds image.Rectangle) ([]models.DetectionBox, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: %q", ErrBadResponse, truncate(content))
	}

	var raw []jsonBox
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}

	boxes := make([]models.DetectionBox, 0, len(raw))
	for _, b := range raw {
		r := image.Rect(b.Left, b.Top, b.Right, b.Bottom).Intersect(bounds)
		if r.Empty() {
			continue
		}
		boxes = append(boxes, models.DetectionBox{Left: r.Min.X, Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y})
	}
	return boxes, nil
}

func truncate(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
