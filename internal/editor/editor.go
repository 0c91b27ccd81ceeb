// Package editor ties the timeline, transport, renderer and audio scheduler
// into one editing session and translates pointer input into timeline edits.
package editor

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ivlev/reelcomposer/internal/assets"
	"github.com/ivlev/reelcomposer/internal/audio"
	"github.com/ivlev/reelcomposer/internal/renderer"
	"github.com/ivlev/reelcomposer/internal/timeline"
	"github.com/ivlev/reelcomposer/internal/transport"
)

// PixelsPerSecond is the default horizontal timeline scale.
const PixelsPerSecond = 60.0

// TrailingSeconds of empty timeline shown after the last clip.
const TrailingSeconds = 10.0

var ErrNoSelection = errors.New("no clip selected")

// Preloader starts fetching an image before it is first drawn.
type Preloader interface {
	Request(ref string)
}

type Config struct {
	PixelsPerSecond float64
	Aspect          renderer.AspectRatio
	Transport       transport.Options

	Renderer *renderer.Renderer
	// Scheduler may be nil for a silent session.
	Scheduler *audio.Scheduler
	// Decodes supplies audio durations for drops when Scheduler is nil.
	Decodes *audio.DecodeCache
	Images  Preloader
}

// clipDrag is the state captured when a clip is grabbed.
type clipDrag struct {
	id        string
	pointerX  float64
	origStart float64
}

// Editor is one editing session. All methods are safe for concurrent use.
type Editor struct {
	store     *timeline.Store
	transport *transport.Transport
	renderer  *renderer.Renderer
	sched     *audio.Scheduler
	decodes   *audio.DecodeCache
	images    Preloader
	pps       float64
	log       zerolog.Logger

	mu       sync.Mutex
	aspect   renderer.AspectRatio
	canvas   renderer.Canvas
	viewport float64
	selected string
	dragging *assets.Payload
	moving   *clipDrag
	snap     *timeline.Snapshot
}

func New(cfg Config, log zerolog.Logger) (*Editor, error) {
	if cfg.Renderer == nil {
		return nil, errors.New("editor needs a renderer")
	}
	if cfg.PixelsPerSecond <= 0 {
		cfg.PixelsPerSecond = PixelsPerSecond
	}
	if cfg.Aspect == "" {
		cfg.Aspect = renderer.Aspect16x9
	}
	canvas, err := renderer.CanvasFor(cfg.Aspect)
	if err != nil {
		return nil, err
	}

	if cfg.Scheduler != nil {
		cfg.Decodes = cfg.Scheduler.Cache()
	}

	e := &Editor{
		store:    timeline.NewStore(),
		renderer: cfg.Renderer,
		sched:    cfg.Scheduler,
		decodes:  cfg.Decodes,
		images:   cfg.Images,
		pps:      cfg.PixelsPerSecond,
		log:      log,
		aspect:   cfg.Aspect,
		canvas:   canvas,
	}
	e.transport = transport.New(e.store.TotalDuration, cfg.Transport, log.With().Str("component", "transport").Logger())
	e.transport.Subscribe(e.syncAudio)
	return e, nil
}

// syncAudio keeps voices on the same time value the next frame renders.
// Scrubbing is silent; a direct time jump restarts voices at their new
// offsets.
func (e *Editor) syncAudio(ev transport.Event) {
	if e.sched == nil {
		return
	}
	if ev.Seek {
		e.sched.StopAll()
	}
	e.sched.Sync(e.Snapshot(), ev.Time, ev.State == transport.Playing && !ev.Scrubbing)
}

func (e *Editor) Store() *timeline.Store          { return e.store }
func (e *Editor) Transport() *transport.Transport { return e.transport }
func (e *Editor) Renderer() *renderer.Renderer    { return e.renderer }
func (e *Editor) Scheduler() *audio.Scheduler     { return e.sched }
func (e *Editor) PixelsPerSecond() float64        { return e.pps }

// Snapshot returns an immutable view of the timeline, reused while the
// timeline is unchanged.
func (e *Editor) Snapshot() *timeline.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap == nil || e.snap.Version() != e.store.Version() {
		e.snap = e.store.Snapshot()
	}
	return e.snap
}

// SetAspect switches the canvas preset. Clip geometry is relative, so
// nothing on the timeline changes.
func (e *Editor) SetAspect(a renderer.AspectRatio) error {
	c, err := renderer.CanvasFor(a)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.aspect, e.canvas = a, c
	e.mu.Unlock()
	e.log.Info().Str("aspect", string(a)).Str("canvas", c.String()).Msg("aspect changed")
	return nil
}

func (e *Editor) Aspect() renderer.AspectRatio {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aspect
}

func (e *Editor) Canvas() renderer.Canvas {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canvas
}

// SetViewport records the visible timeline width in pixels.
func (e *Editor) SetViewport(px float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewport = math.Max(0, px)
}

// ContentWidth is the scrollable timeline width in pixels: the composition
// plus trailing room, never narrower than the viewport.
func (e *Editor) ContentWidth() float64 {
	e.mu.Lock()
	viewport := e.viewport
	e.mu.Unlock()
	return math.Max(viewport, (e.store.TotalDuration()+TrailingSeconds)*e.pps)
}

// Frame renders the composition at the current playhead.
func (e *Editor) Frame() *image.RGBA {
	return e.FrameAt(e.transport.Time())
}

// FrameAt renders the composition at t without moving the playhead.
func (e *Editor) FrameAt(t float64) *image.RGBA {
	return e.renderer.RenderFrame(e.Snapshot(), t, e.Canvas())
}

// Play, Pause, Toggle and Stop drive the transport. Audio follows through
// the transport listener.
// Play starts playback, first queueing every audio source on the timeline
// for decoding so later clips are ready when the playhead reaches them.
func (e *Editor) Play() bool {
	if e.sched != nil && !e.transport.Held() {
		e.sched.Preload(e.Snapshot())
	}
	return e.transport.Play()
}

func (e *Editor) Pause()  { e.transport.Pause() }
func (e *Editor) Toggle() { e.transport.Toggle() }
func (e *Editor) Stop()   { e.transport.Stop() }

// Step advances the playhead by delta seconds, as one tick of the loop.
func (e *Editor) Step(delta float64) transport.Event {
	e.transport.Tick(delta)
	return e.transport.Snapshot()
}

// Run drives the session until ctx is done, handing every tick's frame to
// onFrame. A nil onFrame runs audio only.
func (e *Editor) Run(ctx context.Context, onFrame func(*image.RGBA, transport.Event)) error {
	if onFrame == nil {
		return e.RunEvents(ctx, nil)
	}
	return e.RunEvents(ctx, func(ev transport.Event) {
		onFrame(e.FrameAt(ev.Time), ev)
	})
}

// RunEvents drives the session like Run without rendering frames.
func (e *Editor) RunEvents(ctx context.Context, onTick func(transport.Event)) error {
	return e.transport.Run(ctx, onTick)
}

// Close stops playback and silences audio.
func (e *Editor) Close() {
	e.transport.Pause()
	if e.sched != nil {
		e.sched.StopAll()
	}
}
