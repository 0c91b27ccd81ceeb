package export

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ivlev/reelcomposer/internal/video"
)

// FFmpegSinks creates ffmpeg encoding sinks. base supplies the binary,
// encoder and quality; the rest comes from each export.
func FFmpegSinks(base video.SinkOptions, log zerolog.Logger) SinkFactory {
	return func(ctx context.Context, spec SinkSpec) (Sink, error) {
		opts := base
		opts.Path = spec.Path
		opts.FPS = spec.FPS
		opts.Width = spec.Canvas.Width
		opts.Height = spec.Canvas.Height
		opts.AudioPath = spec.AudioPath
		opts.AudioSampleRate = spec.AudioSampleRate
		opts.AudioChannels = spec.AudioChannels
		s, err := video.Open(ctx, opts, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
