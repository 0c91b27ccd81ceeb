package app

import (
	"net/http"

	"github.com/ivlev/reelcomposer/internal/audio"
	"github.com/ivlev/reelcomposer/internal/export"
)

// Option is a functional option for configuring a session.
type Option func(*options)

type options struct {
	deviceAudio bool
	output      audio.Output
	decoder     audio.Decoder
	sinks       export.SinkFactory
	client      *http.Client
	progress    func(frame int, t float64)
}

// WithDeviceAudio plays audio clips on the system audio device.
func WithDeviceAudio() Option {
	return func(o *options) {
		o.deviceAudio = true
	}
}

// WithAudioOutput plays audio clips on out.
func WithAudioOutput(out audio.Output) Option {
	return func(o *options) {
		o.output = out
	}
}

// WithDecoder replaces the ffmpeg audio decoder.
func WithDecoder(d audio.Decoder) Option {
	return func(o *options) {
		o.decoder = d
	}
}

// WithSinks replaces the ffmpeg export sinks.
func WithSinks(f export.SinkFactory) Option {
	return func(o *options) {
		o.sinks = f
	}
}

// WithHTTPClient sets the client used for remote images and audio.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithProgress is called after every exported frame.
func WithProgress(fn func(frame int, t float64)) Option {
	return func(o *options) {
		o.progress = fn
	}
}
