package remote

import (
	"context"
	"encoding/json"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/disintegration/imaging"
	"go.viam.com/test"

	"github.com/bdougie/handcam/internal/models"
)

func logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func inferenceServer(t *testing.T, status int, dets []BoundingBox) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/detect", func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		img, err := imaging.Decode(f)
		if err != nil || img.Bounds().Dx() != 42 {
			http.Error(w, "bad image", http.StatusBadRequest)
			return
		}
		if status != http.StatusOK {
			http.Error(w, "model not loaded", status)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"detections": dets})
	})
	mux.HandleFunc("/detect/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDetect(t *testing.T) {
	srv := inferenceServer(t, http.StatusOK, []BoundingBox{
		{X: 10, Y: 10, Width: 10, Height: 10, Class: "hand", Conf: 0.9},
		{X: 0, Y: 0, Width: 5, Height: 5, Class: "hand", Conf: 0.2},
		{X: 1, Y: 2, Width: 3, Height: 4, Class: "face", Conf: 0.99},
	})
	d := NewDetector(Config{InferenceURL: srv.URL + "/detect", MinConfidence: 0.5, Class: "hand"}, srv.Client(), logger())

	boxes, err := d.Detect(context.Background(), imaging.New(42, 30, color.White))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, boxes, test.ShouldResemble, []models.DetectionBox{{Left: 10, Top: 10, Right: 20, Bottom: 20}})

	test.That(t, d.CheckHealth(context.Background()), test.ShouldBeNil)
}

func TestDetectNoFilters(t *testing.T) {
	srv := inferenceServer(t, http.StatusOK, []BoundingBox{
		{X: 1, Y: 2, Width: 3, Height: 4, Class: "face"},
	})
	d := NewDetector(Config{InferenceURL: srv.URL + "/detect"}, nil, logger())

	boxes, err := d.Detect(context.Background(), imaging.New(42, 30, color.White))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, boxes, test.ShouldHaveLength, 1)
	test.That(t, boxes[0], test.ShouldResemble, models.DetectionBox{Left: 1, Top: 2, Right: 4, Bottom: 6})
}

func TestDetectServiceError(t *testing.T) {
	srv := inferenceServer(t, http.StatusServiceUnavailable, nil)
	d := NewDetector(Config{InferenceURL: srv.URL + "/detect"}, srv.Client(), logger())

	_, err := d.Detect(context.Background(), imaging.New(42, 30, color.White))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "503")
	test.That(t, err.Error(), test.ShouldContainSubstring, "model not loaded")

	test.That(t, d.CheckHealth(context.Background()), test.ShouldNotBeNil)
}

func TestDetectCancelled(t *testing.T) {
	srv := inferenceServer(t, http.StatusOK, nil)
	d := NewDetector(Config{InferenceURL: srv.URL + "/detect"}, srv.Client(), logger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Detect(ctx, imaging.New(42, 30, color.White))
	test.That(t, err, test.ShouldNotBeNil)
}
