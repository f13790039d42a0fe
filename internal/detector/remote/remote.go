// Package remote calls an HTTP inference service for detections.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/bdougie/handcam/internal/models"
)

// BoundingBox is one detection as the inference service reports it
type BoundingBox struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Class  string  `json:"class"`
	Conf   float32 `json:"confidence"`
}

// Box converts to corner form
func (b BoundingBox) Box() models.DetectionBox {
	return models.DetectionBox{Left: b.X, Top: b.Y, Right: b.X + b.Width, Bottom: b.Y + b.Height}
}

// Config for a Detector
type Config struct {
	// InferenceURL receives a multipart POST with the image in the "file" field
	InferenceURL string
	// MinConfidence drops weaker detections
	MinConfidence float32
	// Class keeps only detections of this class when set
	Class string
	// Quality of the JPEG sent to the service
	Quality int
}

// Detector posts each image to an inference service
type Detector struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewDetector creates a detector using client, http.DefaultClient when nil
func NewDetector(cfg Config, client *http.Client, logger *slog.Logger) *Detector {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 85
	}
	return &Detector{cfg: cfg, client: client, logger: logger}
}

// Detect sends img and returns the boxes that pass the filters, in the order received
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]models.DetectionBox, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := imaging.Encode(part, img, imaging.JPEG, imaging.JPEGQuality(d.cfg.Quality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.InferenceURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Detections []BoundingBox `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	boxes := make([]models.DetectionBox, 0, len(result.Detections))
	for _, det := range result.Detections {
		if det.Conf < d.cfg.MinConfidence {
			continue
		}
		if d.cfg.Class != "" && det.Class != d.cfg.Class {
			continue
		}
		boxes = append(boxes, det.Box())
	}
	d.logger.Debug("inference done", "received", len(result.Detections), "kept", len(boxes))
	return boxes, nil
}

// CheckHealth checks that the inference service answers on /health
func (d *Detector) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(d.cfg.InferenceURL, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
