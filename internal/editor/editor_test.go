package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/reelcomposer/internal/assets"
	"github.com/ivlev/reelcomposer/internal/audio"
	"github.com/ivlev/reelcomposer/internal/lazy"
	"github.com/ivlev/reelcomposer/internal/metrics"
	"github.com/ivlev/reelcomposer/internal/renderer"
	"github.com/ivlev/reelcomposer/internal/timeline"
	"github.com/ivlev/reelcomposer/internal/transport"
)

type voice struct{ done chan struct{} }

func (v *voice) Stop() {
	select {
	case <-v.done:
	default:
		close(v.done)
	}
}
func (v *voice) Done() <-chan struct{} { return v.done }

type recordingOutput struct {
	mu      sync.Mutex
	offsets map[string]float64
}

func (o *recordingOutput) Start(clipID string, buf *audio.Buffer, offset float64) (audio.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.offsets == nil {
		o.offsets = make(map[string]float64)
	}
	o.offsets[clipID] = offset
	return &voice{done: make(chan struct{})}, nil
}

type preloads struct {
	mu   sync.Mutex
	refs []string
}

func (p *preloads) Request(ref string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs = append(p.refs, ref)
}

func newEditor(t *testing.T, out audio.Output) (*Editor, *audio.DecodeCache) {
	t.Helper()
	fonts, err := renderer.NewFontBook()
	require.NoError(t, err)
	t.Cleanup(func() { fonts.Close() })

	cache := audio.NewDecodeCache(audio.DecoderFunc(func(ctx context.Context, src string) (*audio.Buffer, error) {
		return nil, errors.New("not decodable in tests")
	}), 0, zerolog.Nop())
	t.Cleanup(cache.Close)

	var sched *audio.Scheduler
	if out != nil {
		sched = audio.NewScheduler(cache, out, zerolog.Nop())
	}
	e, err := New(Config{
		Renderer:  renderer.New(nil, fonts, zerolog.Nop()),
		Scheduler: sched,
		Images:    &preloads{},
		Transport: transport.Options{Mode: transport.StepFixed},
	}, zerolog.Nop())
	require.NoError(t, err)
	return e, cache
}

func silence(seconds float64) *audio.Buffer {
	return &audio.Buffer{SampleRate: 100, Channels: 1, Samples: make([]float32, int(seconds*100))}
}

func TestDropCreatesSelectedClip(t *testing.T) {
	e, _ := newEditor(t, nil)

	e.BeginDrag(assets.Payload{Kind: assets.KindImage, Ref: "https://cdn/a.png"})
	id, ok := e.Drop(timeline.TrackVideo, 120)
	require.True(t, ok)

	clip, ok := e.Selected()
	require.True(t, ok)
	assert.Equal(t, id, clip.ID)
	assert.Equal(t, 2.0, clip.StartTime)
	assert.Equal(t, timeline.DefaultClipDuration, clip.Duration)
	assert.Equal(t, timeline.TrackVideo, clip.Track())
	assert.Equal(t, []string{"https://cdn/a.png"}, e.images.(*preloads).refs)
}

func TestDropClampsNegativeOffset(t *testing.T) {
	e, _ := newEditor(t, nil)
	e.BeginDrag(assets.TemplatePayload())
	id, ok := e.Drop(timeline.TrackText, -300)
	require.True(t, ok)

	clip, _ := e.Store().Get(id)
	assert.Zero(t, clip.StartTime)
	tx, ok := clip.AsText()
	require.True(t, ok)
	assert.Equal(t, assets.TemplateHeadline, tx.Text)
}

func TestInvalidDropsAreIgnored(t *testing.T) {
	e, _ := newEditor(t, nil)

	_, ok := e.Drop(timeline.TrackVideo, 10)
	assert.False(t, ok, "no drag in progress")

	e.BeginDrag(assets.Payload{Kind: assets.KindAudio, Ref: "vo.mp3"})
	_, ok = e.Drop(timeline.TrackVideo, 10)
	assert.False(t, ok, "audio on the video track")

	// The failed drop consumed the drag.
	_, ok = e.Drop(timeline.TrackAudio, 10)
	assert.False(t, ok)

	e.BeginDrag(assets.Payload{Kind: assets.KindImage, Ref: "a.png"})
	e.CancelDrag()
	_, ok = e.Drop(timeline.TrackVideo, 10)
	assert.False(t, ok)

	assert.Zero(t, e.Store().Len())
}

func TestAudioDropUsesDecodedDuration(t *testing.T) {
	e, cache := newEditor(t, &recordingOutput{})
	cache.Put("vo.mp3", silence(7.5))

	e.BeginDrag(assets.Payload{Kind: assets.KindAudio, Ref: "vo.mp3", DisplayName: "Voice"})
	id, ok := e.Drop(timeline.TrackAudio, 0)
	require.True(t, ok)
	clip, _ := e.Store().Get(id)
	assert.InDelta(t, 7.5, clip.Duration, 1e-9)

	e.BeginDrag(assets.Payload{Kind: assets.KindAudio, Ref: "unknown.mp3"})
	id, ok = e.Drop(timeline.TrackAudio, 0)
	require.True(t, ok)
	clip, _ = e.Store().Get(id)
	assert.Equal(t, timeline.DefaultAudioDuration, clip.Duration)
}

func TestDragRepositionsByPointerDelta(t *testing.T) {
	e, _ := newEditor(t, nil)
	clip := timeline.NewVideoClip("a.png", 2)
	require.NoError(t, e.Store().Add(clip))

	require.True(t, e.PointerDownClip(clip.ID, 100))
	e.PointerMove(145)
	got, _ := e.Store().Get(clip.ID)
	assert.InDelta(t, 2.75, got.StartTime, 1e-9)

	e.PointerMove(-1000)
	got, _ = e.Store().Get(clip.ID)
	assert.Zero(t, got.StartTime)

	e.PointerUp()
	e.PointerMove(400)
	got, _ = e.Store().Get(clip.ID)
	assert.Zero(t, got.StartTime, "released clip no longer follows the pointer")

	assert.False(t, e.PointerDownClip("missing", 0))
}

func TestClipsMayOverlap(t *testing.T) {
	e, _ := newEditor(t, nil)
	a := timeline.NewVideoClip("a.png", 0)
	b := timeline.NewVideoClip("b.png", 10)
	require.NoError(t, e.Store().Add(a))
	require.NoError(t, e.Store().Add(b))

	e.PointerDownClip(b.ID, 600)
	e.PointerMove(0)
	e.PointerUp()

	got, _ := e.Store().Get(b.ID)
	assert.Zero(t, got.StartTime)
	assert.Len(t, e.Store().ActiveAt(1, timeline.TrackVideo), 2)
}

func TestScrubClampsToContentWidth(t *testing.T) {
	e, _ := newEditor(t, nil)
	require.NoError(t, e.Store().Add(timeline.NewVideoClip("a.png", 0)))

	// (5s + 10s trailing) * 60px
	assert.Equal(t, 900.0, e.ContentWidth())

	e.PointerDownRuler(-20)
	assert.Zero(t, e.Transport().Time())
	e.PointerMove(5000)
	assert.Equal(t, 15.0, e.Transport().Time())
	e.PointerUp()

	e.SetViewport(1200)
	assert.Equal(t, 1200.0, e.ContentWidth())
	e.PointerDownRuler(5000)
	assert.Equal(t, 20.0, e.Transport().Time())
	e.PointerUp()
}

func TestScrubWhilePlayingIsNotOverwritten(t *testing.T) {
	e, _ := newEditor(t, nil)
	require.NoError(t, e.Store().Add(timeline.NewVideoClip("a.png", 0)))
	require.True(t, e.Play())
	e.Step(0)

	e.PointerDownRuler(120)
	ev := e.Step(0)
	assert.Equal(t, 2.0, ev.Time)
	assert.True(t, ev.Scrubbing)

	e.PointerUp()
	assert.Equal(t, transport.Playing, e.Transport().State())
	assert.Equal(t, 2.0, e.Step(0).Time)
	assert.InDelta(t, 2.016, e.Step(0).Time, 1e-9)
}

func TestPlayOnEmptyTimeline(t *testing.T) {
	e, _ := newEditor(t, nil)
	assert.Zero(t, e.Store().TotalDuration())
	assert.False(t, e.Play())
	assert.Equal(t, transport.Stopped, e.Transport().State())
}

func TestSelectionDeleteAndUpdate(t *testing.T) {
	e, _ := newEditor(t, nil)

	_, err := e.UpdateSelected(timeline.Patch{Duration: timeline.Float(3)})
	assert.ErrorIs(t, err, ErrNoSelection)
	assert.False(t, e.DeleteSelected())

	text := timeline.NewTextClip("Hi", 0)
	require.NoError(t, e.Store().Add(text))
	assert.False(t, e.Select("missing"))
	require.True(t, e.Select(text.ID))

	c, err := e.UpdateSelected(timeline.Patch{Color: timeline.String("#ff0000"), Duration: timeline.Float(3)})
	require.NoError(t, err)
	tx, _ := c.AsText()
	assert.Equal(t, "#ff0000", tx.Color)
	assert.Equal(t, 3.0, c.Duration)

	_, err = e.UpdateSelected(timeline.Patch{Animation: timeline.AnimationPtr(timeline.AnimationZoomIn)})
	assert.ErrorIs(t, err, timeline.ErrTrackMismatch)

	assert.True(t, e.DeleteSelected())
	_, ok := e.Selected()
	assert.False(t, ok)
	assert.Zero(t, e.Store().Len())

	require.True(t, e.Select(""))
}

func TestSetAspectKeepsRelativeGeometry(t *testing.T) {
	e, _ := newEditor(t, nil)
	text := timeline.NewTextClip("Hi", 0)
	require.NoError(t, e.Store().Add(text))

	require.NoError(t, e.SetAspect(renderer.Aspect9x16))
	assert.Equal(t, renderer.Canvas{Width: 720, Height: 1280}, e.Canvas())
	assert.Equal(t, renderer.Aspect9x16, e.Aspect())

	got, _ := e.Store().Get(text.ID)
	assert.Equal(t, text, got)

	frame := e.Frame()
	assert.Equal(t, 720, frame.Bounds().Dx())
	assert.Equal(t, 1280, frame.Bounds().Dy())

	assert.Error(t, e.SetAspect("3:2"))
}

func TestPlayFromInsideAudioClipStartsAtOffset(t *testing.T) {
	out := &recordingOutput{}
	e, cache := newEditor(t, out)
	cache.Put("vo.mp3", silence(10))

	clip := timeline.NewAudioClip("vo.mp3", "vo", 2, 3)
	require.NoError(t, e.Store().Add(clip))

	e.Transport().Seek(3)
	assert.Empty(t, e.Scheduler().Active())
	require.True(t, e.Play())

	out.mu.Lock()
	offset, ok := out.offsets[clip.ID]
	out.mu.Unlock()
	require.True(t, ok)
	assert.InDelta(t, 1.0, offset, 1e-9)

	e.Pause()
	assert.Empty(t, e.Scheduler().Active())
}

func TestSnapshotIsReusedUntilChange(t *testing.T) {
	e, _ := newEditor(t, nil)
	require.NoError(t, e.Store().Add(timeline.NewVideoClip("a.png", 0)))

	s1 := e.Snapshot()
	assert.Same(t, s1, e.Snapshot())

	require.NoError(t, e.Store().Add(timeline.NewVideoClip("b.png", 0)))
	assert.NotSame(t, s1, e.Snapshot())
	assert.Equal(t, 2, e.Snapshot().Len())
}

func TestPlayQueuesAudioDecoding(t *testing.T) {
	e, cache := newEditor(t, &recordingOutput{})
	require.NoError(t, e.Store().Add(timeline.NewAudioClip("late.wav", "late", 5, 1)))
	assert.Equal(t, lazy.Unknown, cache.State("late.wav"))

	require.True(t, e.Play())
	assert.NotEqual(t, lazy.Unknown, cache.State("late.wav"))
}

func TestRunEventsDoesNotRender(t *testing.T) {
	e, _ := newEditor(t, nil)
	clip := timeline.NewVideoClip("a.png", 0)
	require.NoError(t, e.Store().Add(clip))
	require.True(t, e.Play())

	before := testutil.ToFloat64(metrics.FramesRendered)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ticks := 0
	err := e.RunEvents(ctx, func(ev transport.Event) {
		ticks++
		if ticks == 3 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, ticks, 3)
	assert.Equal(t, before, testutil.ToFloat64(metrics.FramesRendered))
}
