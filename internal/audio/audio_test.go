package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/reelcomposer/internal/lazy"
	"github.com/ivlev/reelcomposer/internal/timeline"
)

const testRate = 1000

// ramp returns a mono buffer whose sample i equals i/rate, so a sample value
// is its own time offset.
func ramp(seconds float64) *Buffer {
	n := int(seconds * testRate)
	b := &Buffer{SampleRate: testRate, Channels: 1, Samples: make([]float32, n)}
	for i := range b.Samples {
		b.Samples[i] = float32(i) / testRate
	}
	return b
}

type started struct {
	clipID string
	offset float64
}

type fakeVoice struct {
	done    chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

func (v *fakeVoice) Stop() {
	v.stopped.Store(true)
	v.finish()
}
func (v *fakeVoice) Done() <-chan struct{} { return v.done }
func (v *fakeVoice) finish()               { v.once.Do(func() { close(v.done) }) }

type fakeOutput struct {
	mu     sync.Mutex
	starts []started
	voices map[string]*fakeVoice
	fail   bool
}

func (o *fakeOutput) Start(clipID string, buf *Buffer, offset float64) (Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return nil, errors.New("device busy")
	}
	if o.voices == nil {
		o.voices = make(map[string]*fakeVoice)
	}
	v := &fakeVoice{done: make(chan struct{})}
	o.voices[clipID] = v
	o.starts = append(o.starts, started{clipID, offset})
	return v, nil
}

func newCacheWith(t *testing.T, bufs map[string]*Buffer) *DecodeCache {
	t.Helper()
	c := NewDecodeCache(DecoderFunc(func(ctx context.Context, src string) (*Buffer, error) {
		if b, ok := bufs[src]; ok {
			return b, nil
		}
		return nil, errors.New("unsupported format")
	}), 2, zerolog.Nop())
	t.Cleanup(c.Close)
	for src := range bufs {
		_, err := c.Wait(context.Background(), src)
		require.NoError(t, err)
	}
	return c
}

func TestSchedulerStartsAtClipOffset(t *testing.T) {
	cache := newCacheWith(t, map[string]*Buffer{"vo.mp3": ramp(5)})
	out := &fakeOutput{}
	s := NewScheduler(cache, out, zerolog.Nop())

	clip := timeline.NewAudioClip("vo.mp3", "vo", 2, 3)
	snap := timeline.NewSnapshot(clip)

	// playhead parked at 3s, then play
	s.Sync(snap, 3, false)
	assert.Empty(t, out.starts)
	s.Sync(snap, 3, true)

	require.Len(t, out.starts, 1)
	assert.Equal(t, clip.ID, out.starts[0].clipID)
	assert.InDelta(t, 1.0, out.starts[0].offset, 1e-9)
	assert.Equal(t, []string{clip.ID}, s.Active())
}

func TestSchedulerOneVoicePerClip(t *testing.T) {
	cache := newCacheWith(t, map[string]*Buffer{"a": ramp(10)})
	out := &fakeOutput{}
	s := NewScheduler(cache, out, zerolog.Nop())

	clip := timeline.NewAudioClip("a", "a", 0, 10)
	snap := timeline.NewSnapshot(clip)
	for _, tm := range []float64{0, 0.016, 0.032, 1} {
		s.Sync(snap, tm, true)
	}
	assert.Len(t, out.starts, 1)
}

func TestSchedulerStopsInactiveAndPaused(t *testing.T) {
	cache := newCacheWith(t, map[string]*Buffer{"a": ramp(10), "b": ramp(10)})
	out := &fakeOutput{}
	s := NewScheduler(cache, out, zerolog.Nop())

	a := timeline.NewAudioClip("a", "a", 0, 2)
	b := timeline.NewAudioClip("b", "b", 1, 5)
	snap := timeline.NewSnapshot(a, b)

	s.Sync(snap, 1.5, true)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, s.Active())

	// a's window is half-open: inactive exactly at 2
	s.Sync(snap, 2, true)
	assert.True(t, out.voices[a.ID].stopped.Load())
	assert.Equal(t, []string{b.ID}, s.Active())

	s.Sync(snap, 2.5, false)
	assert.True(t, out.voices[b.ID].stopped.Load())
	assert.Empty(t, s.Active())
}

func TestSchedulerReapsFinishedVoices(t *testing.T) {
	cache := newCacheWith(t, map[string]*Buffer{"short": ramp(1)})
	out := &fakeOutput{}
	s := NewScheduler(cache, out, zerolog.Nop())

	clip := timeline.NewAudioClip("short", "short", 0, 5)
	snap := timeline.NewSnapshot(clip)

	s.Sync(snap, 0.5, true)
	require.Len(t, out.starts, 1)
	out.voices[clip.ID].finish()

	// Past the end of the source: no restart.
	s.Sync(snap, 1.2, true)
	assert.Empty(t, s.Active())
	assert.Len(t, out.starts, 1)
}

func TestSchedulerSilentUntilDecoded(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	cache := NewDecodeCache(DecoderFunc(func(ctx context.Context, src string) (*Buffer, error) {
		calls.Add(1)
		<-release
		return ramp(10), nil
	}), 0, zerolog.Nop())
	defer cache.Close()

	out := &fakeOutput{}
	s := NewScheduler(cache, out, zerolog.Nop())
	clip := timeline.NewAudioClip("slow.mp3", "slow", 0, 10)
	snap := timeline.NewSnapshot(clip)

	s.Sync(snap, 1, true)
	s.Sync(snap, 1.016, true)
	assert.Empty(t, out.starts)
	assert.Equal(t, lazy.Pending, cache.State("slow.mp3"))

	close(release)
	_, err := cache.Wait(context.Background(), "slow.mp3")
	require.NoError(t, err)

	s.Sync(snap, 2, true)
	require.Len(t, out.starts, 1)
	assert.InDelta(t, 2.0, out.starts[0].offset, 1e-9)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSchedulerStopAllAndStartFailure(t *testing.T) {
	cache := newCacheWith(t, map[string]*Buffer{"a": ramp(10)})
	out := &fakeOutput{}
	s := NewScheduler(cache, out, zerolog.Nop())
	clip := timeline.NewAudioClip("a", "a", 0, 10)
	snap := timeline.NewSnapshot(clip)

	s.Sync(snap, 0, true)
	s.StopAll()
	assert.Empty(t, s.Active())
	assert.True(t, out.voices[clip.ID].stopped.Load())

	out.fail = true
	s.Sync(snap, 1, true)
	assert.Empty(t, s.Active())
}

func TestDecodeCacheDeduplicatesAndNeverRetries(t *testing.T) {
	var calls atomic.Int32
	cache := NewDecodeCache(DecoderFunc(func(ctx context.Context, src string) (*Buffer, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return nil, errors.New("corrupt stream")
	}), 0, zerolog.Nop())
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Request("bad.mp3")
		}()
	}
	wg.Wait()

	_, err := cache.Wait(context.Background(), "bad.mp3")
	require.Error(t, err)
	cache.Request("bad.mp3")

	assert.Equal(t, int32(1), calls.Load())
	_, ok := cache.Get("bad.mp3")
	assert.False(t, ok)
	_, err = cache.Duration("bad.mp3")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestDecodeCachePutAndDuration(t *testing.T) {
	cache := NewDecodeCache(DecoderFunc(func(ctx context.Context, src string) (*Buffer, error) {
		return nil, errors.New("unexpected decode")
	}), 0, zerolog.Nop())
	defer cache.Close()

	cache.Put("mem", ramp(2.5))
	d, err := cache.Duration("mem")
	require.NoError(t, err)
	assert.InDelta(t, 2.5, d, 1e-9)
}

func TestBufferReaderAndFrameAt(t *testing.T) {
	b := &Buffer{SampleRate: 4, Channels: 2, Samples: []float32{0, 0, 1, -1, 2, -2, 3, -3}}
	assert.Equal(t, 4, b.Frames())
	assert.InDelta(t, 1.0, b.Duration(), 1e-9)
	assert.Equal(t, 2, b.FrameAt(0.5))
	assert.Equal(t, 4, b.FrameAt(9))
	assert.Equal(t, 0, b.FrameAt(-1))

	// Small reads exercise partial sample words.
	var got bytes.Buffer
	r := b.Reader(0.5)
	chunk := make([]byte, 3)
	for {
		n, err := r.Read(chunk)
		got.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, []float32{2, -2, 3, -3}, fromF32LE(got.Bytes()))
}

func TestBufferRemix(t *testing.T) {
	mono := &Buffer{SampleRate: 10, Channels: 1, Samples: []float32{0.1, 0.2}}
	st := mono.Remix(2)
	assert.Equal(t, []float32{0.1, 0.1, 0.2, 0.2}, st.Samples)
	assert.Same(t, mono, mono.Remix(1))
}

func TestMixerPlacesVoicesOnClock(t *testing.T) {
	cache := newCacheWith(t, map[string]*Buffer{"a": ramp(5)})
	m := NewMixer(testRate, 1)
	s := NewScheduler(cache, m, zerolog.Nop())

	clip := timeline.NewAudioClip("a", "a", 1, 2)
	snap := timeline.NewSnapshot(clip)

	for i := 0; i <= 40; i++ {
		tm := float64(i) / 10
		m.SetTime(tm)
		s.Sync(snap, tm, true)
	}
	s.StopAll()
	assert.Equal(t, 1, m.Voices())

	out := m.Render(4)
	require.Equal(t, 4*testRate, out.Frames())
	assert.Zero(t, out.Samples[500])
	// At 1.5s the clip is 0.5s in, and the ramp value equals its offset.
	assert.InDelta(t, 0.5, out.Samples[1500], 1e-3)
	// Stopped at 3s when the clip window closed.
	assert.Zero(t, out.Samples[3500])
}

func TestMixerRejectsRateMismatch(t *testing.T) {
	m := NewMixer(48000, 2)
	_, err := m.Start("x", ramp(1), 0)
	assert.Error(t, err)
}
