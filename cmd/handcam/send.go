package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/bdougie/handcam/internal/capture"
	"github.com/bdougie/handcam/internal/codec"
	"github.com/bdougie/handcam/internal/config"
	"github.com/bdougie/handcam/internal/stream"
	"github.com/bdougie/handcam/internal/transport"
)

func sendCommand() *cli.Command {
	defaults := config.DefaultSender()
	flags := []cli.Flag{
		&cli.StringFlag{Name: flagAddr, Value: defaults.Addr, Usage: "receiver `HOST:PORT`"},
		&cli.DurationFlag{Name: flagBudget, Value: defaults.Budget, Usage: "stop streaming after this long"},
		&cli.DurationFlag{Name: flagWarmup, Value: defaults.Warmup, Usage: "let the camera settle before the first frame"},
		&cli.StringFlag{Name: flagCodec, Value: defaults.Codec, Usage: "frame payload: bgr, rgb, jpeg or png"},
		&cli.IntFlag{Name: flagQuality, Value: defaults.Quality, Usage: "jpeg quality"},
	}
	return &cli.Command{
		Name:   "send",
		Usage:  "stream camera frames to a receiver for a fixed time",
		Flags:  append(flags, captureFlags(defaults.Capture)...),
		Action: withLogger(sendAction),
	}
}

func sendAction(c *cli.Context, logger *slog.Logger) error {
	cfg := config.Sender{
		Addr:    c.String(flagAddr),
		Budget:  c.Duration(flagBudget),
		Warmup:  c.Duration(flagWarmup),
		Codec:   c.String(flagCodec),
		Quality: c.Int(flagQuality),
		Capture: captureConfig(c),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := c.Context
	logger = logger.With("session", uuid.NewString())

	fc, err := codec.Parse(cfg.Codec, cfg.Capture.Width, cfg.Capture.Height, cfg.Quality)
	if err != nil {
		return err
	}

	src, err := openCapture(ctx, cfg.Capture, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := capture.Warmup(ctx, clock.New(), cfg.Warmup); err != nil {
		if isCanceled(err) {
			return nil
		}
		return err
	}

	conn, err := transport.Dial(ctx, cfg.Addr)
	if err != nil {
		return err
	}
	logger.Info("connected", "addr", conn.RemoteAddr())

	_, err = stream.NewSession(fc, logger).Run(ctx, src, conn, cfg.Budget)
	return err
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "dump the frames of a video to a directory for --frames replay",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagVideo, Required: true, Usage: "video `FILE` to extract"},
			&cli.StringFlag{Name: flagOut, Value: "frames", Usage: "parent `DIR` of the frame directory"},
			&cli.DurationFlag{Name: flagInterval, Value: time.Second, Usage: "time between extracted frames, 0 keeps all"},
		},
		Action: withLogger(func(c *cli.Context, logger *slog.Logger) error {
			dir, err := capture.ExtractFrames(c.Context, capture.ExtractConfig{
				Video:     c.String(flagVideo),
				OutputDir: c.String(flagOut),
				Interval:  c.Duration(flagInterval),
			}, logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, dir)
			return nil
		}),
	}
}

// openCapture opens a directory replay or an ffmpeg capture
func openCapture(ctx context.Context, cfg config.Capture, logger *slog.Logger) (capture.Source, error) {
	if cfg.FramesDir != "" {
		src, err := capture.NewDirSource(cfg.FramesDir, cfg.Loop)
		if err != nil {
			return nil, err
		}
		logger.Info("replaying frames", "dir", cfg.FramesDir, "count", src.Len(), "loop", cfg.Loop)
		return src, nil
	}

	src, err := capture.NewFFmpegSource(ctx, capture.FFmpegConfig{
		Input:       cfg.Input,
		InputFormat: cfg.Format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		FrameRate:   cfg.FrameRate,
		VFlip:       cfg.VFlip,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	return src, nil
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
