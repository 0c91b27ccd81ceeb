// Package export drives the frame renderer through a whole composition at a
// fixed frame rate and hands every frame to an encoding sink.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/reelcomposer/internal/audio"
	"github.com/ivlev/reelcomposer/internal/metrics"
	"github.com/ivlev/reelcomposer/internal/renderer"
	"github.com/ivlev/reelcomposer/internal/system"
	"github.com/ivlev/reelcomposer/internal/timeline"
	"github.com/ivlev/reelcomposer/internal/transport"
)

// DefaultFPS is the capture rate of an export.
const DefaultFPS = 30

var (
	ErrExportInProgress = errors.New("export already in progress")
	ErrEmptyTimeline    = errors.New("timeline is empty")
	ErrSinkUnavailable  = errors.New("video encoding is not available")
)

type State int

const (
	Idle State = iota
	Exporting
)

func (s State) String() string {
	if s == Exporting {
		return "exporting"
	}
	return "idle"
}

// Pacing decides which clock places frames in time.
type Pacing string

const (
	// Offline renders frame i at i/fps as fast as the machine allows.
	Offline Pacing = "offline"
	// Realtime renders at the wall-clock time elapsed since the export began.
	Realtime Pacing = "realtime"
)

// Sink receives rendered frames in order.
type Sink interface {
	WriteFrame(*image.RGBA) error
	// Close finalizes the output.
	Close() error
	// Abort discards any partial output.
	Abort()
}

type SinkSpec struct {
	Path   string
	FPS    int
	Canvas renderer.Canvas
	// AudioPath is a raw f32le PCM file to mux as the soundtrack, or empty.
	AudioPath       string
	AudioSampleRate int
	AudioChannels   int
}

type SinkFactory func(ctx context.Context, spec SinkSpec) (Sink, error)

// Session is the live editing session an export borrows its timeline,
// playhead and renderer from.
type Session interface {
	Snapshot() *timeline.Snapshot
	Canvas() renderer.Canvas
	Transport() *transport.Transport
	Renderer() *renderer.Renderer
}

// ImageWaiter blocks until image sources finished loading.
type ImageWaiter interface {
	Wait(ctx context.Context, refs ...string) error
}

type AudioOptions struct {
	Cache      *audio.DecodeCache
	SampleRate int
	Channels   int
}

type Options struct {
	FPS    int
	Pacing Pacing
	// Images is waited on before an offline export so that no frame misses
	// a source that is still loading.
	Images ImageWaiter
	// Audio mixes the audio track into the output when set.
	Audio   *AudioOptions
	TempDir string
	Pool    *system.FramePool
	// OnFrame is called after each captured frame.
	OnFrame func(frame int, t float64)
}

type Report struct {
	Path     string
	Frames   int
	FPS      int
	Duration float64 // composition length in seconds
	Elapsed  time.Duration
	Audio    bool
	Host     system.HostStats
}

// VideoDuration is the playable length of the written file.
func (r Report) VideoDuration() float64 {
	if r.FPS == 0 {
		return 0
	}
	return float64(r.Frames) / float64(r.FPS)
}

type Exporter struct {
	session Session
	sinks   SinkFactory
	opts    Options
	log     zerolog.Logger

	mu    sync.Mutex
	state State
}

func New(session Session, sinks SinkFactory, opts Options, log zerolog.Logger) *Exporter {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.Pacing == "" {
		opts.Pacing = Offline
	}
	if opts.Pool == nil {
		opts.Pool = system.NewFramePool()
	}
	return &Exporter{session: session, sinks: sinks, opts: opts, log: log}
}

func (e *Exporter) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Export writes the composition to path. Playback is paused and held, so
// Play is refused until the export ends, and the playhead is rewound to 0
// before capture begins and again when it ends. On any failure
// the partial output is discarded and a single error is returned.
func (e *Exporter) Export(ctx context.Context, path string) (Report, error) {
	snap := e.session.Snapshot()
	total := snap.TotalDuration()

	e.mu.Lock()
	if e.state == Exporting {
		e.mu.Unlock()
		metrics.ExportsTotal.WithLabelValues("rejected").Inc()
		return Report{}, ErrExportInProgress
	}
	if total <= 0 {
		e.mu.Unlock()
		metrics.ExportsTotal.WithLabelValues("rejected").Inc()
		return Report{}, ErrEmptyTimeline
	}
	e.state = Exporting
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.state = Idle
		e.mu.Unlock()
	}()

	start := time.Now()
	report := Report{Path: path, FPS: e.opts.FPS, Duration: total}
	log := e.log.With().Str("path", path).Float64("duration", total).Logger()

	tr := e.session.Transport()
	release := tr.Hold()
	defer release()
	tr.Seek(0)
	defer tr.Seek(0)

	if err := e.prepare(ctx, snap); err != nil {
		metrics.ExportsTotal.WithLabelValues("failed").Inc()
		return report, err
	}

	spec := SinkSpec{Path: path, FPS: e.opts.FPS, Canvas: e.session.Canvas()}
	if e.opts.Audio != nil {
		pcm, err := e.writeMixdown(ctx, snap, total)
		if err != nil {
			log.Warn().Err(err).Msg("exporting without audio")
		} else if pcm != "" {
			defer os.Remove(pcm)
			spec.AudioPath = pcm
			spec.AudioSampleRate = e.opts.Audio.SampleRate
			spec.AudioChannels = e.opts.Audio.Channels
			report.Audio = true
		}
	}

	sink, err := e.sinks(ctx, spec)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues("unavailable").Inc()
		log.Error().Err(err).Msg("cannot create export sink")
		return report, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}

	log.Info().
		Int("fps", e.opts.FPS).
		Str("pacing", string(e.opts.Pacing)).
		Str("canvas", spec.Canvas.String()).
		Msg("export started")

	frames, err := e.capture(ctx, snap, total, spec.Canvas, sink)
	report.Frames = frames
	if err == nil {
		if err = sink.Close(); err != nil {
			err = fmt.Errorf("finalize export: %w", err)
		}
	}
	if err != nil {
		sink.Abort()
		metrics.ExportsTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).Int("frames", frames).Msg("export failed")
		return report, err
	}

	report.Elapsed = time.Since(start)
	if host, err := system.SampleHost(ctx); err == nil {
		report.Host = host
	} else {
		log.Debug().Err(err).Msg("host stats unavailable")
	}
	metrics.ExportsTotal.WithLabelValues("ok").Inc()
	metrics.ExportDuration.Observe(report.Elapsed.Seconds())
	log.Info().
		Int("frames", frames).
		Dur("elapsed", report.Elapsed).
		Bool("audio", report.Audio).
		Msg("export finished")
	return report, nil
}

// prepare waits for every image an offline export will draw. Sources that
// failed to load stay blank, as they do in the preview.
func (e *Exporter) prepare(ctx context.Context, snap *timeline.Snapshot) error {
	if e.opts.Pacing != Offline || e.opts.Images == nil {
		return nil
	}
	var refs []string
	for _, c := range snap.ByTrack(timeline.TrackVideo) {
		if v, ok := c.AsVideo(); ok {
			refs = append(refs, v.Source)
		}
	}
	if err := e.opts.Images.Wait(ctx, refs...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.log.Warn().Err(err).Msg("some images failed to load")
	}
	return nil
}

type frameJob struct {
	img *image.RGBA
	// last marks the final use of img, after which it returns to the pool.
	last bool
}

// capture renders frames on one goroutine and feeds the sink on another.
func (e *Exporter) capture(ctx context.Context, snap *timeline.Snapshot, total float64, c renderer.Canvas, sink Sink) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan frameJob, 4)

	g.Go(func() error {
		defer close(jobs)
		if e.opts.Pacing == Realtime {
			return e.produceRealtime(gctx, snap, total, c, jobs)
		}
		return e.produceOffline(gctx, snap, total, c, jobs)
	})

	written := 0
	g.Go(func() error {
		for job := range jobs {
			if err := sink.WriteFrame(job.img); err != nil {
				return fmt.Errorf("frame %d: %w", written, err)
			}
			if job.last {
				e.opts.Pool.Put(job.img)
			}
			written++
			metrics.ExportedFrames.Inc()
			if e.opts.OnFrame != nil {
				e.opts.OnFrame(written, float64(written)/float64(e.opts.FPS))
			}
		}
		return nil
	})

	err := g.Wait()
	return written, err
}

func (e *Exporter) render(snap *timeline.Snapshot, t float64, c renderer.Canvas) *image.RGBA {
	e.session.Transport().Seek(t)
	frame := e.opts.Pool.Get(c.Rect())
	e.session.Renderer().RenderInto(frame, snap, t)
	return frame
}

func (e *Exporter) produceOffline(ctx context.Context, snap *timeline.Snapshot, total float64, c renderer.Canvas, jobs chan<- frameJob) error {
	fps := float64(e.opts.FPS)
	for i := 0; ; i++ {
		t := float64(i) / fps
		if t >= total {
			return nil
		}
		if err := send(ctx, jobs, frameJob{img: e.render(snap, t, c), last: true}); err != nil {
			return err
		}
	}
}

// produceRealtime renders at the wall-clock time elapsed since the start.
// Frame slots that passed while rendering repeat the latest frame, so the
// output duration follows the wall clock.
func (e *Exporter) produceRealtime(ctx context.Context, snap *timeline.Snapshot, total float64, c renderer.Canvas, jobs chan<- frameJob) error {
	fps := float64(e.opts.FPS)
	start := time.Now()
	written := 0
	for {
		t := time.Since(start).Seconds()
		if t >= total {
			return nil
		}
		frame := e.render(snap, t, c)
		due := int(t*fps) + 1
		n := due - written
		if n <= 0 {
			e.opts.Pool.Put(frame)
		}
		for k := 0; k < n; k++ {
			if err := send(ctx, jobs, frameJob{img: frame, last: k == n-1}); err != nil {
				return err
			}
		}
		if n > 0 {
			written = due
		}

		next := start.Add(time.Duration(float64(written) / fps * float64(time.Second)))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func send(ctx context.Context, jobs chan<- frameJob, job frameJob) error {
	select {
	case jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
