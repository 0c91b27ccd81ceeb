package config

import (
	"fmt"
	"runtime"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ivlev/reelcomposer/internal/export"
	"github.com/ivlev/reelcomposer/internal/logging"
	"github.com/ivlev/reelcomposer/internal/renderer"
	"github.com/ivlev/reelcomposer/internal/transport"
)

type Config struct {
	Canvas   CanvasConfig   `yaml:"canvas"`
	Playback PlaybackConfig `yaml:"playback"`
	Export   ExportConfig   `yaml:"export"`
	Audio    AudioConfig    `yaml:"audio"`
	Assets   AssetsConfig   `yaml:"assets"`
	Preview  PreviewConfig  `yaml:"preview"`
	Log      logging.Config `yaml:"log"`

	BuildVersion string `yaml:"-"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for name, v := range map[string]validation.Validatable{
		"canvas":   &c.Canvas,
		"playback": &c.Playback,
		"export":   &c.Export,
		"audio":    &c.Audio,
		"assets":   &c.Assets,
		"preview":  &c.Preview,
	} {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return validation.ValidateStruct(&c.Log,
		validation.Field(&c.Log.Format, validation.In("", "json", "console")),
	)
}

type CanvasConfig struct {
	Aspect string `yaml:"aspect"`
}

func (c *CanvasConfig) Validate() error {
	names := make([]interface{}, 0, len(renderer.AspectRatios))
	for _, a := range renderer.AspectRatios {
		names = append(names, string(a))
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Aspect, validation.Required, validation.In(names...)),
	)
}

// AspectRatio returns the configured preset.
func (c *CanvasConfig) AspectRatio() renderer.AspectRatio {
	return renderer.AspectRatio(c.Aspect)
}

type PlaybackConfig struct {
	TickRate        int     `yaml:"tick_rate"`
	StepMode        string  `yaml:"step_mode"`
	FixedStep       float64 `yaml:"fixed_step"`
	PixelsPerSecond float64 `yaml:"pixels_per_second"`
}

func (c *PlaybackConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TickRate, validation.Required, validation.Min(1), validation.Max(240)),
		validation.Field(&c.StepMode, validation.Required, validation.In(string(transport.StepDelta), string(transport.StepFixed))),
		validation.Field(&c.FixedStep, validation.Required, validation.Min(0.001)),
		validation.Field(&c.PixelsPerSecond, validation.Required, validation.Min(1.0)),
	)
}

// TransportOptions maps the playback section onto the transport.
func (c *PlaybackConfig) TransportOptions() transport.Options {
	return transport.Options{
		Mode:      transport.StepMode(c.StepMode),
		FixedStep: c.FixedStep,
		TickRate:  c.TickRate,
	}
}

type ExportConfig struct {
	FPS          int    `yaml:"fps"`
	Encoder      string `yaml:"encoder"` // empty = autodetect
	Quality      int    `yaml:"quality"` // 0 = per-encoder default
	Pacing       string `yaml:"pacing"`
	FFmpegPath   string `yaml:"ffmpeg_path"`
	IncludeAudio bool   `yaml:"include_audio"`
	ShowStats    bool   `yaml:"show_stats"`
}

func (c *ExportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FPS, validation.Required, validation.Min(1), validation.Max(120)),
		validation.Field(&c.Quality, validation.Min(0)),
		validation.Field(&c.Pacing, validation.Required, validation.In(string(export.Offline), string(export.Realtime))),
		validation.Field(&c.FFmpegPath, validation.Required),
	)
}

type AudioConfig struct {
	SampleRate    int `yaml:"sample_rate"`
	Channels      int `yaml:"channels"`
	DecodeWorkers int `yaml:"decode_workers"`
}

func (c *AudioConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SampleRate, validation.Required, validation.In(22050, 44100, 48000)),
		validation.Field(&c.Channels, validation.Required, validation.In(1, 2)),
		validation.Field(&c.DecodeWorkers, validation.Required, validation.Min(1)),
	)
}

type AssetsConfig struct {
	Dir    string `yaml:"dir"`
	PDFDPI int    `yaml:"pdf_dpi"`
	QRSize int    `yaml:"qr_size"`
}

func (c *AssetsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PDFDPI, validation.Required, validation.Min(36), validation.Max(600)),
		validation.Field(&c.QRSize, validation.Required, validation.Min(64)),
	)
}

// PreviewConfig configures the HTTP preview server. ExportDir is the only
// directory POST /export writes into.
type PreviewConfig struct {
	Addr      string `yaml:"addr"`
	ExportDir string `yaml:"export_dir"`
}

func (c *PreviewConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.ExportDir, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	workers := runtime.NumCPU()
	if workers > 4 {
		workers = 4
	}
	return &Config{
		Canvas: CanvasConfig{Aspect: string(renderer.Aspect16x9)},
		Playback: PlaybackConfig{
			TickRate:        60,
			StepMode:        string(transport.StepDelta),
			FixedStep:       transport.DefaultFixedStep,
			PixelsPerSecond: 60,
		},
		Export: ExportConfig{
			FPS:          export.DefaultFPS,
			Pacing:       string(export.Offline),
			FFmpegPath:   "ffmpeg",
			IncludeAudio: true,
		},
		Audio: AudioConfig{
			SampleRate:    48000,
			Channels:      2,
			DecodeWorkers: workers,
		},
		Assets: AssetsConfig{
			Dir:    "input",
			PDFDPI: 150,
			QRSize: 512,
		},
		Preview: PreviewConfig{
			Addr:      "127.0.0.1:8088",
			ExportDir: "output",
		},
		Log: logging.Config{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}
