package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rendering
	FramesRendered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reel_frames_rendered_total",
			Help: "Total number of composition frames rendered",
		},
	)

	ClipsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_clips_skipped_total",
			Help: "Clips not drawn or not played because their resource was not ready",
		},
		[]string{"track"},
	)

	FrameRenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reel_frame_render_duration_seconds",
			Help:    "Time spent rendering one frame",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
	)

	// Assets
	ImageLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_image_loads_total",
			Help: "Image source loads by result",
		},
		[]string{"result"},
	)

	AudioDecodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_audio_decodes_total",
			Help: "Audio source decodes by result",
		},
		[]string{"result"},
	)

	// Playback
	VoicesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reel_audio_voices_started_total",
			Help: "Audio playback sources started by the scheduler",
		},
	)

	ActiveVoices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reel_audio_voices_active",
			Help: "Audio playback sources currently playing",
		},
	)

	// Export
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_exports_total",
			Help: "Exports by final status",
		},
		[]string{"status"},
	)

	ExportedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reel_exported_frames_total",
			Help: "Frames written to export sinks",
		},
	)

	ExportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reel_export_duration_seconds",
			Help:    "Wall time of a full export",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		},
	)
)
