// Package main is the handcam command: it streams camera frames to a remote host and
// runs the local hand detection loop.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bdougie/handcam/internal/config"
)

const (
	// Global flags.
	flagEnvFile  = "env-file"
	flagLogLevel = "log-level"
	flagLogFile  = "log-file"

	// Capture flags.
	flagInput     = "input"
	flagFormat    = "input-format"
	flagWidth     = "width"
	flagHeight    = "height"
	flagFrameRate = "framerate"
	flagVFlip     = "vflip"
	flagFrames    = "frames"
	flagLoop      = "loop"

	// Sender flags.
	flagAddr    = "addr"
	flagBudget  = "budget"
	flagWarmup  = "warmup"
	flagCodec   = "codec"
	flagQuality = "quality"

	// Detector flags.
	flagListen        = "listen"
	flagMaxFrame      = "max-frame-size"
	flagScale         = "scale"
	flagLabel         = "label"
	flagDetector      = "detector"
	flagInferenceURL  = "inference-url"
	flagMinConfidence = "min-confidence"
	flagClass         = "class"
	flagOllamaHost    = "ollama-host"
	flagOllamaPort    = "ollama-port"
	flagOllamaModel   = "ollama-model"
	flagOut           = "out"
	flagWS            = "ws"
	flagKeys          = "keys"
	flagRecord        = "record"
	flagSession       = "session"

	// Search flags.
	flagBox   = "box"
	flagLimit = "limit"

	// Extract flags.
	flagVideo    = "video"
	flagInterval = "interval"
)

func main() {
	// .env has to be in the environment before flag defaults are computed
	envFile := ".env"
	for i, a := range os.Args {
		if (a == "--"+flagEnvFile || a == "-"+flagEnvFile) && i+1 < len(os.Args) {
			envFile = os.Args[i+1]
		}
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	logDefaults := config.DefaultLog()
	return &cli.App{
		Name:  "handcam",
		Usage: "stream camera frames and detect hands in them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagEnvFile,
				Value: ".env",
				Usage: "load environment overrides from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: logDefaults.Level,
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Value: logDefaults.File,
				Usage: "also write logs to a rotated `FILE`",
			},
		},
		Commands: []*cli.Command{
			sendCommand(),
			detectCommand(),
			{
				Name:   "initdb",
				Usage:  "create the postgres schema used by --record postgres",
				Action: withLogger(initDBAction),
			},
			searchCommand(),
			extractCommand(),
		},
	}
}

// newLogger builds the tint logger. With a log file the output is duplicated into a
// lumberjack rotated file and colours are turned off.
func newLogger(c *cli.Context) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String(flagLogLevel))); err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	noColor := false
	if file := c.String(flagLogFile); file != "" {
		lj := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
			LocalTime:  true,
		}
		w = io.MultiWriter(os.Stderr, lj)
		closer = lj
		noColor = true
	}

	logger := slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
			NoColor:    noColor,
		}),
	)
	return logger, closer, nil
}

func withLogger(action func(*cli.Context, *slog.Logger) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		logger, closer, err := newLogger(c)
		if err != nil {
			return err
		}
		defer closer.Close()
		return action(c, logger)
	}
}

func captureFlags(defaults config.Capture) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagInput, Value: defaults.Input, Usage: "camera device or video file read by ffmpeg"},
		&cli.StringFlag{Name: flagFormat, Value: defaults.Format, Usage: "ffmpeg input format, e.g. v4l2 or avfoundation"},
		&cli.IntFlag{Name: flagWidth, Value: defaults.Width, Usage: "frame width"},
		&cli.IntFlag{Name: flagHeight, Value: defaults.Height, Usage: "frame height"},
		&cli.IntFlag{Name: flagFrameRate, Value: defaults.FrameRate, Usage: "capture frame rate"},
		&cli.BoolFlag{Name: flagVFlip, Value: defaults.VFlip, Usage: "flip the picture vertically at the camera"},
		&cli.StringFlag{Name: flagFrames, Value: defaults.FramesDir, Usage: "replay the images of `DIR` instead of capturing"},
		&cli.BoolFlag{Name: flagLoop, Value: defaults.Loop, Usage: "restart --frames at the end"},
	}
}

func captureConfig(c *cli.Context) config.Capture {
	return config.Capture{
		Input:     c.String(flagInput),
		Format:    c.String(flagFormat),
		Width:     c.Int(flagWidth),
		Height:    c.Int(flagHeight),
		FrameRate: c.Int(flagFrameRate),
		VFlip:     c.Bool(flagVFlip),
		FramesDir: c.String(flagFrames),
		Loop:      c.Bool(flagLoop),
	}
}
