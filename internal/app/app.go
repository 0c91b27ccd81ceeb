// Package app assembles a complete editing session from configuration:
// asset loading, audio decoding and playback, the editor and the exporter.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ivlev/reelcomposer/internal/assets"
	"github.com/ivlev/reelcomposer/internal/audio"
	"github.com/ivlev/reelcomposer/internal/config"
	"github.com/ivlev/reelcomposer/internal/editor"
	"github.com/ivlev/reelcomposer/internal/export"
	"github.com/ivlev/reelcomposer/internal/logging"
	"github.com/ivlev/reelcomposer/internal/renderer"
	"github.com/ivlev/reelcomposer/internal/script"
	"github.com/ivlev/reelcomposer/internal/source"
	"github.com/ivlev/reelcomposer/internal/timeline"
	"github.com/ivlev/reelcomposer/internal/video"
)

type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Images   *source.Loader
	Decodes  *audio.DecodeCache
	Fonts    *renderer.FontBook
	Editor   *editor.Editor
	Exporter *export.Exporter
	Registry *assets.Registry
}

// New builds a session. Without an audio output the session is silent, but
// audio is still decoded for clip durations and export.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Log: log, Registry: assets.NewRegistry(nil, nil, nil)}

	fonts, err := renderer.NewFontBook()
	if err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}
	a.Fonts = fonts

	a.Images = source.NewLoader(source.LoaderOptions{
		Client:      o.client,
		Concurrency: cfg.Audio.DecodeWorkers,
	}, logging.Component(log, "images"))

	decoder := o.decoder
	if decoder == nil {
		d := audio.NewFFmpegDecoder(cfg.Export.FFmpegPath, cfg.Audio.SampleRate, cfg.Audio.Channels)
		d.Client = o.client
		decoder = d
	}
	a.Decodes = audio.NewDecodeCache(decoder, cfg.Audio.DecodeWorkers, logging.Component(log, "decode"))

	out := o.output
	if out == nil && o.deviceAudio {
		dev, err := audio.NewDeviceOutput(cfg.Audio.SampleRate)
		if err != nil {
			log.Warn().Err(err).Msg("audio device unavailable, playing silently")
		} else {
			out = dev
		}
	}
	var sched *audio.Scheduler
	if out != nil {
		sched = audio.NewScheduler(a.Decodes, out, logging.Component(log, "scheduler"))
	}

	a.Editor, err = editor.New(editor.Config{
		PixelsPerSecond: cfg.Playback.PixelsPerSecond,
		Aspect:          cfg.Canvas.AspectRatio(),
		Transport:       cfg.Playback.TransportOptions(),
		Renderer:        renderer.New(a.Images, fonts, logging.Component(log, "renderer")),
		Scheduler:       sched,
		Decodes:         a.Decodes,
		Images:          a.Images,
	}, logging.Component(log, "editor"))
	if err != nil {
		a.Close()
		return nil, err
	}

	sinks := o.sinks
	if sinks == nil {
		sinks = export.FFmpegSinks(video.SinkOptions{
			FFmpegPath: cfg.Export.FFmpegPath,
			Encoder:    cfg.Export.Encoder,
			Quality:    cfg.Export.Quality,
		}, logging.Component(log, "encoder"))
	}
	expOpts := export.Options{
		FPS:     cfg.Export.FPS,
		Pacing:  export.Pacing(cfg.Export.Pacing),
		Images:  a.Images,
		OnFrame: o.progress,
	}
	if cfg.Export.IncludeAudio {
		expOpts.Audio = &export.AudioOptions{
			Cache:      a.Decodes,
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
		}
	}
	a.Exporter = export.New(a.Editor, sinks, expOpts, logging.Component(log, "export"))
	return a, nil
}

// LoadAssets scans dir into the session's registry. PDF pages and QR codes
// are registered with the image loader.
func (a *App) LoadAssets(ctx context.Context, dir string) error {
	reg, err := assets.LoadDir(ctx, dir, a.assetOptions(), a.Images, logging.Component(a.Log, "assets"))
	if err != nil {
		return fmt.Errorf("load assets: %w", err)
	}
	a.Registry.Replace(reg.Images(), reg.Texts(), reg.Audios())
	return nil
}

func (a *App) assetOptions() assets.LoadOptions {
	return assets.LoadOptions{
		PDFDPI:  a.Config.Assets.PDFDPI,
		Workers: a.Config.Audio.DecodeWorkers,
		QRSize:  a.Config.Assets.QRSize,
	}
}

// LoadScript replaces the timeline with the script at path. Audio sources
// are decoded first so that dropped audio clips take their real length.
func (a *App) LoadScript(ctx context.Context, path string) (*script.Script, error) {
	s, err := script.Read(path)
	if err != nil {
		return nil, err
	}
	if s.Assets != "" {
		dir := s.Assets
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		if err := a.LoadAssets(ctx, dir); err != nil {
			return nil, err
		}
	}

	a.preloadAudio(ctx, s)

	a.Editor.Store().Clear()
	ids, err := script.Apply(s, a.Editor, a.Registry)
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", path, err)
	}
	a.Log.Info().
		Str("script", path).
		Int("clips", len(ids)).
		Float64("duration", a.Editor.Store().TotalDuration()).
		Msg("script loaded")
	return s, nil
}

func (a *App) preloadAudio(ctx context.Context, s *script.Script) {
	for _, e := range s.Clips {
		if e.Track != timeline.TrackAudio {
			continue
		}
		src := e.Source
		if e.Asset != nil {
			p, ok := a.Registry.AudioPayload(*e.Asset)
			if !ok {
				continue
			}
			src = p.Ref
		}
		if src == "" {
			continue
		}
		if _, err := a.Decodes.Wait(ctx, src); err != nil {
			a.Log.Warn().Err(err).Str("source", src).Msg("audio not decodable, using default clip length")
		}
	}
}

// WaitImages blocks until every image on the timeline finished loading.
func (a *App) WaitImages(ctx context.Context) error {
	var refs []string
	for _, c := range a.Editor.Snapshot().ByTrack(timeline.TrackVideo) {
		if v, ok := c.AsVideo(); ok {
			refs = append(refs, v.Source)
		}
	}
	return a.Images.Wait(ctx, refs...)
}

// Close stops playback and releases loaders and decoders.
func (a *App) Close() {
	if a.Editor != nil {
		a.Editor.Close()
	}
	if a.Decodes != nil {
		a.Decodes.Close()
	}
	if a.Images != nil {
		a.Images.Close()
	}
	if a.Fonts != nil {
		a.Fonts.Close()
	}
}
