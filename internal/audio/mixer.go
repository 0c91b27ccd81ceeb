package audio

import (
	"fmt"
	"math"
	"sync"
)

// Mixer is an offline Output. Voices are placed on a virtual clock that the
// caller advances, and Render sums everything that played into one buffer.
// It lets an export drive the same Scheduler a live session uses.
type Mixer struct {
	SampleRate int
	Channels   int

	mu     sync.Mutex
	now    float64
	voices []*mixVoice
}

type mixVoice struct {
	buf    *Buffer
	offset float64 // seconds into buf at start
	start  float64 // clock time the voice began
	end    float64 // clock time the voice ended or will end
	done   chan struct{}
	once   sync.Once
	mixer  *Mixer
}

func NewMixer(sampleRate, channels int) *Mixer {
	return &Mixer{SampleRate: sampleRate, Channels: channels}
}

// SetTime moves the virtual clock. Voices whose buffer ran out by t finish.
func (m *Mixer) SetTime(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
	for _, v := range m.voices {
		if t >= v.end {
			v.finish()
		}
	}
}

func (m *Mixer) Start(clipID string, buf *Buffer, offset float64) (Voice, error) {
	if buf.SampleRate != m.SampleRate {
		return nil, fmt.Errorf("clip %s: sample rate %d, mixer runs at %d", clipID, buf.SampleRate, m.SampleRate)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v := &mixVoice{
		buf:    buf.Remix(m.Channels),
		offset: offset,
		start:  m.now,
		end:    m.now + buf.Duration() - offset,
		done:   make(chan struct{}),
		mixer:  m,
	}
	m.voices = append(m.voices, v)
	return v, nil
}

func (v *mixVoice) Stop() {
	v.mixer.mu.Lock()
	defer v.mixer.mu.Unlock()
	if v.mixer.now < v.end {
		v.end = v.mixer.now
	}
	v.finish()
}

func (v *mixVoice) Done() <-chan struct{} { return v.done }

func (v *mixVoice) finish() {
	v.once.Do(func() { close(v.done) })
}

// Voices reports how many voices were started.
func (m *Mixer) Voices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Render mixes every voice into a buffer of the given length. Samples are
// hard-clipped to [-1, 1].
func (m *Mixer) Render(duration float64) *Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()

	frames := int(math.Round(duration * float64(m.SampleRate)))
	out := &Buffer{SampleRate: m.SampleRate, Channels: m.Channels, Samples: make([]float32, frames*m.Channels)}

	for _, v := range m.voices {
		from := int(math.Round(v.start * float64(m.SampleRate)))
		to := int(math.Round(v.end * float64(m.SampleRate)))
		if to > frames {
			to = frames
		}
		src := v.buf.FrameAt(v.offset)
		for f := from; f < to && src < v.buf.Frames(); f, src = f+1, src+1 {
			for c := 0; c < m.Channels; c++ {
				out.Samples[f*m.Channels+c] += v.buf.Samples[src*m.Channels+c]
			}
		}
	}

	for i, s := range out.Samples {
		out.Samples[i] = float32(math.Max(-1, math.Min(1, float64(s))))
	}
	return out
}
