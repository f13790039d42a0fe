// Package config holds the typed settings of the sender and the detector with their
// defaults. Environment variables (HANDCAM_*, optionally from a .env file) override the
// defaults; command line flags override both.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/bdougie/handcam/internal/codec"
	"github.com/bdougie/handcam/internal/preprocess"
	"github.com/bdougie/handcam/internal/storage"
)

const envPrefix = "HANDCAM_"

// Capture describes where frames come from
type Capture struct {
	Input     string
	Format    string
	Width     int
	Height    int
	FrameRate int
	VFlip     bool
	// FramesDir replays a directory of images instead of running ffmpeg
	FramesDir string
	Loop      bool
}

// Sender is the configuration of `handcam send`
type Sender struct {
	Addr    string
	Budget  time.Duration
	Warmup  time.Duration
	Codec   string
	Quality int
	Capture Capture
}

// Detect is the configuration of `handcam detect`
type Detect struct {
	// Listen receives frames from a sender instead of capturing locally
	Listen       string
	Codec        string
	MaxFrameSize int
	Capture      Capture

	Scale  float64
	Label  string
	Warmup time.Duration

	Detector      string
	InferenceURL  string
	MinConfidence float64
	Class         string
	OllamaHost    string
	OllamaPort    int
	OllamaModel   string

	OutDir  string
	WSAddr  string
	Keys    bool
	Record  string
	Session string
}

// Log configures the process logger
type Log struct {
	Level string
	File  string
}

// LoadDotEnv reads path into the environment. A missing file is fine.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func defaultCapture() Capture {
	return Capture{
		Input:     getEnv("INPUT", "/dev/video0"),
		Format:    getEnv("INPUT_FORMAT", ""),
		Width:     getEnvInt("WIDTH", 840),
		Height:    getEnvInt("HEIGHT", 480),
		FrameRate: getEnvInt("FRAMERATE", 30),
		VFlip:     getEnvBool("VFLIP", false),
		FramesDir: getEnv("FRAMES_DIR", ""),
		Loop:      getEnvBool("LOOP", false),
	}
}

// DefaultSender returns the sender defaults with environment overrides applied
func DefaultSender() Sender {
	c := defaultCapture()
	c.VFlip = getEnvBool("VFLIP", true)
	return Sender{
		Addr:    getEnv("ADDR", "localhost:8000"),
		Budget:  getEnvDuration("BUDGET", 60*time.Second),
		Warmup:  getEnvDuration("WARMUP", 2*time.Second),
		Codec:   getEnv("CODEC", "bgr"),
		Quality: getEnvInt("QUALITY", 80),
		Capture: c,
	}
}

// DefaultDetect returns the detector defaults with environment overrides applied
func DefaultDetect() Detect {
	return Detect{
		Listen:       getEnv("LISTEN", ""),
		Codec:        getEnv("CODEC", "bgr"),
		MaxFrameSize: getEnvInt("MAX_FRAME_SIZE", 32<<20),
		Capture:      defaultCapture(),

		Scale:  getEnvFloat("SCALE", 2.0),
		Label:  getEnv("LABEL", "Hand Detected"),
		Warmup: getEnvDuration("DETECT_WARMUP", 0),

		Detector:      getEnv("DETECTOR", "remote"),
		InferenceURL:  getEnv("INFERENCE_URL", "http://localhost:5000/predict"),
		MinConfidence: getEnvFloat("MIN_CONFIDENCE", 0.5),
		Class:         getEnv("CLASS", ""),
		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost"),
		OllamaPort:    getEnvInt("OLLAMA_PORT", 11434),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3.2-vision:11b"),

		OutDir:  getEnv("OUT", ""),
		WSAddr:  getEnv("WS_ADDR", ""),
		Keys:    getEnvBool("KEYS", true),
		Record:  getEnv("RECORD", ""),
		Session: getEnv("SESSION", ""),
	}
}

// DefaultPostgres reads the database settings
func DefaultPostgres() storage.PostgresConfig {
	return storage.PostgresConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		DBName:   getEnv("DB_NAME", "handcam"),
	}
}

// DefaultLog reads the logger settings
func DefaultLog() Log {
	return Log{
		Level: getEnv("LOG_LEVEL", "info"),
		File:  getEnv("LOG_FILE", ""),
	}
}

func (c Capture) validate() error {
	if c.FramesDir != "" {
		return nil
	}
	var err error
	if c.Input == "" {
		err = multierr.Append(err, errors.New("capture input is empty"))
	}
	if c.Width <= 0 || c.Height <= 0 {
		err = multierr.Append(err, fmt.Errorf("invalid capture size %dx%d", c.Width, c.Height))
	}
	return err
}

// Validate reports every problem at once
func (s Sender) Validate() error {
	var err error
	if s.Addr == "" {
		err = multierr.Append(err, errors.New("sender address is empty"))
	}
	if s.Budget < 0 {
		err = multierr.Append(err, fmt.Errorf("negative budget %s", s.Budget))
	}
	if _, cerr := codec.Parse(s.Codec, s.Capture.Width, s.Capture.Height, s.Quality); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	return multierr.Append(err, s.Capture.validate())
}

// Validate reports every problem at once
func (d Detect) Validate() error {
	err := preprocess.ValidateScale(d.Scale)
	switch d.Detector {
	case "remote":
		if d.InferenceURL == "" {
			err = multierr.Append(err, errors.New("inference url is empty"))
		}
	case "ollama":
		if d.OllamaModel == "" {
			err = multierr.Append(err, errors.New("ollama model is empty"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown detector %q", d.Detector))
	}
	switch d.Record {
	case "", "json", "postgres":
	default:
		err = multierr.Append(err, fmt.Errorf("unknown record backend %q", d.Record))
	}
	if d.Record == "json" && d.OutDir == "" {
		err = multierr.Append(err, errors.New("json records need an output directory"))
	}
	if d.Listen != "" {
		if d.MaxFrameSize < 0 || int64(d.MaxFrameSize) > math.MaxUint32 {
			err = multierr.Append(err, fmt.Errorf("max frame size %d out of range", d.MaxFrameSize))
		}
		if _, cerr := codec.Parse(d.Codec, d.Capture.Width, d.Capture.Height, 0); cerr != nil {
			err = multierr.Append(err, cerr)
		}
		return err
	}
	return multierr.Append(err, d.Capture.validate())
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(envPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}
