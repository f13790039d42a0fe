package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/bdougie/handcam/internal/capture"
	"github.com/bdougie/handcam/internal/codec"
	"github.com/bdougie/handcam/internal/config"
	"github.com/bdougie/handcam/internal/detectloop"
	"github.com/bdougie/handcam/internal/detector/ollama"
	"github.com/bdougie/handcam/internal/detector/remote"
	"github.com/bdougie/handcam/internal/display"
	"github.com/bdougie/handcam/internal/storage"
	"github.com/bdougie/handcam/internal/stream"
	"github.com/bdougie/handcam/internal/transport"
)

func detectCommand() *cli.Command {
	d := config.DefaultDetect()
	flags := []cli.Flag{
		&cli.StringFlag{Name: flagListen, Value: d.Listen, Usage: "receive frames from `handcam send` on `ADDR` instead of capturing"},
		&cli.StringFlag{Name: flagCodec, Value: d.Codec, Usage: "payload codec of received frames"},
		&cli.IntFlag{Name: flagMaxFrame, Value: d.MaxFrameSize, Usage: "largest received payload in bytes"},
		&cli.Float64Flag{Name: flagScale, Value: d.Scale, Usage: "downscale factor applied before detection"},
		&cli.StringFlag{Name: flagLabel, Value: d.Label, Usage: "caption drawn under each box"},
		&cli.DurationFlag{Name: flagWarmup, Value: d.Warmup, Usage: "wait before the first capture"},
		&cli.StringFlag{Name: flagDetector, Value: d.Detector, Usage: "remote or ollama"},
		&cli.StringFlag{Name: flagInferenceURL, Value: d.InferenceURL, Usage: "inference endpoint of the remote detector"},
		&cli.Float64Flag{Name: flagMinConfidence, Value: d.MinConfidence, Usage: "drop weaker remote detections"},
		&cli.StringFlag{Name: flagClass, Value: d.Class, Usage: "keep only this remote detection class"},
		&cli.StringFlag{Name: flagOllamaHost, Value: d.OllamaHost, Usage: "ollama base url"},
		&cli.IntFlag{Name: flagOllamaPort, Value: d.OllamaPort, Usage: "ollama port"},
		&cli.StringFlag{Name: flagOllamaModel, Value: d.OllamaModel, Usage: "ollama vision model"},
		&cli.StringFlag{Name: flagOut, Value: d.OutDir, Usage: "write annotated frames and json records to `DIR`"},
		&cli.StringFlag{Name: flagWS, Value: d.WSAddr, Usage: "serve a live viewer on `ADDR`"},
		&cli.BoolFlag{Name: flagKeys, Value: d.Keys, Usage: "stop when q is typed on stdin"},
		&cli.StringFlag{Name: flagRecord, Value: d.Record, Usage: "record detections: json or postgres"},
		&cli.StringFlag{Name: flagSession, Value: d.Session, Usage: "session name for records, random when empty"},
	}
	return &cli.Command{
		Name:   "detect",
		Usage:  "run the hand detection loop on a camera, a directory or a received stream",
		Flags:  append(flags, captureFlags(d.Capture)...),
		Action: withLogger(detectAction),
	}
}

func detectConfig(c *cli.Context) config.Detect {
	return config.Detect{
		Listen:        c.String(flagListen),
		Codec:         c.String(flagCodec),
		MaxFrameSize:  c.Int(flagMaxFrame),
		Capture:       captureConfig(c),
		Scale:         c.Float64(flagScale),
		Label:         c.String(flagLabel),
		Warmup:        c.Duration(flagWarmup),
		Detector:      c.String(flagDetector),
		InferenceURL:  c.String(flagInferenceURL),
		MinConfidence: c.Float64(flagMinConfidence),
		Class:         c.String(flagClass),
		OllamaHost:    c.String(flagOllamaHost),
		OllamaPort:    c.Int(flagOllamaPort),
		OllamaModel:   c.String(flagOllamaModel),
		OutDir:        c.String(flagOut),
		WSAddr:        c.String(flagWS),
		Keys:          c.Bool(flagKeys),
		Record:        c.String(flagRecord),
		Session:       c.String(flagSession),
	}
}

func detectAction(c *cli.Context, logger *slog.Logger) (err error) {
	cfg := detectConfig(c)
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := c.Context
	if cfg.Session == "" {
		cfg.Session = uuid.NewString()
	}

	det, err := newDetector(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sink, err := newSink(ctx, cfg, logger)
	if err != nil {
		return err
	}

	store, closeStore, err := newStorage(ctx, cfg, logger)
	if err != nil {
		sink.Close()
		return err
	}
	defer closeStore()

	src, err := openDetectSource(ctx, cfg, logger)
	if err != nil {
		if isCanceled(err) {
			err = nil
		}
		return multierr.Append(err, sink.Close())
	}

	opts := []detectloop.Option{detectloop.WithSessionID(cfg.Session)}
	if store != nil {
		opts = append(opts, detectloop.WithStorage(store))
	}
	loop, err := detectloop.New(src, det, sink, detectloop.Config{
		Scale:  cfg.Scale,
		Label:  cfg.Label,
		Warmup: cfg.Warmup,
	}, logger, opts...)
	if err != nil {
		return multierr.Combine(err, src.Close(), sink.Close())
	}

	return loop.Run(ctx)
}

func newDetector(ctx context.Context, cfg config.Detect, logger *slog.Logger) (detectloop.Detector, error) {
	switch cfg.Detector {
	case "ollama":
		return ollama.NewDetector(ctx, ollama.Config{
			Host:  cfg.OllamaHost,
			Port:  cfg.OllamaPort,
			Model: cfg.OllamaModel,
		}, "hand", logger)
	default:
		d := remote.NewDetector(remote.Config{
			InferenceURL:  cfg.InferenceURL,
			MinConfidence: float32(cfg.MinConfidence),
			Class:         cfg.Class,
		}, nil, logger)
		if err := d.CheckHealth(ctx); err != nil {
			logger.Warn("inference service health check failed", tint.Err(err))
		}
		return d, nil
	}
}

func newSink(ctx context.Context, cfg config.Detect, logger *slog.Logger) (detectloop.DisplaySink, error) {
	var sinks display.Multi
	if cfg.OutDir != "" {
		fs, err := display.NewFileSink(cfg.OutDir, 0, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if cfg.WSAddr != "" {
		ws := display.NewWebSocketSink(0, logger)
		if err := ws.Listen(ctx, cfg.WSAddr); err != nil {
			return nil, err
		}
		sinks = append(sinks, ws)
	}
	if cfg.Keys {
		sinks = append(sinks, display.NewKeyWatcher(os.Stdin))
	}
	if cfg.OutDir == "" && cfg.WSAddr == "" {
		logger.Warn("no --out or --ws given, annotated frames are not shown anywhere")
	}
	return sinks, nil
}

func newStorage(ctx context.Context, cfg config.Detect, logger *slog.Logger) (storage.Storage, func(), error) {
	switch cfg.Record {
	case "json":
		logger.Info("recording detections", "file", storage.Path(cfg.OutDir, cfg.Session))
		return storage.NewStorage(cfg.OutDir, cfg.Session, logger), func() {}, nil
	case "postgres":
		pg, err := storage.NewPostgresStorage(ctx, config.DefaultPostgres(), cfg.Session, logger)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return nil, func() {}, nil
	}
}

// openDetectSource waits for one sender when listening, otherwise opens a local capture
func openDetectSource(ctx context.Context, cfg config.Detect, logger *slog.Logger) (capture.Source, error) {
	if cfg.Listen == "" {
		return openCapture(ctx, cfg.Capture, logger)
	}

	fc, err := codec.Parse(cfg.Codec, cfg.Capture.Width, cfg.Capture.Height, 0)
	if err != nil {
		return nil, err
	}

	ln, err := transport.Listen(ctx, cfg.Listen)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	logger.Info("waiting for sender", "addr", ln.Addr())

	conn, err := ln.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept sender: %w", err)
	}
	logger.Info("sender connected", "remote", conn.RemoteAddr())
	return stream.NewRemoteSource(conn, fc, uint32(cfg.MaxFrameSize)), nil
}
