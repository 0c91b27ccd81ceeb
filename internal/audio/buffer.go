// Package audio decodes audio sources into PCM buffers, caches them per
// source, and keeps playback voices in step with the playhead.
package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// ErrNotReady reports a source that has not finished decoding, or never will.
var ErrNotReady = errors.New("audio not ready")

// Buffer is interleaved float32 PCM.
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Frames is the number of sample frames (one sample per channel).
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// FrameAt converts a time offset into a frame index, clamped to the buffer.
func (b *Buffer) FrameAt(offset float64) int {
	if offset <= 0 || b.SampleRate <= 0 {
		return 0
	}
	f := int(math.Round(offset * float64(b.SampleRate)))
	if n := b.Frames(); f > n {
		return n
	}
	return f
}

// Reader streams the buffer from an offset as little-endian float32.
func (b *Buffer) Reader(offset float64) io.Reader {
	return &f32Reader{samples: b.Samples[b.FrameAt(offset)*b.Channels:]}
}

type f32Reader struct {
	samples []float32
	partial []byte
}

func (r *f32Reader) Read(p []byte) (int, error) {
	n := 0
	if len(r.partial) > 0 {
		n = copy(p, r.partial)
		r.partial = r.partial[n:]
	}
	for n < len(p) && len(r.samples) > 0 {
		var word [4]byte
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(r.samples[0]))
		r.samples = r.samples[1:]
		c := copy(p[n:], word[:])
		n += c
		if c < 4 {
			r.partial = append(r.partial[:0], word[c:]...)
		}
	}
	if n == 0 && len(r.samples) == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// fromF32LE decodes raw little-endian float32 bytes.
func fromF32LE(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// Remix returns the buffer converted to the given channel count. Mono is
// duplicated into every output channel; other layouts keep the first
// channels and zero-fill the rest.
func (b *Buffer) Remix(channels int) *Buffer {
	if b.Channels == channels || channels <= 0 {
		return b
	}
	frames := b.Frames()
	out := &Buffer{SampleRate: b.SampleRate, Channels: channels, Samples: make([]float32, frames*channels)}
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			src := c
			if b.Channels == 1 {
				src = 0
			} else if src >= b.Channels {
				continue
			}
			out.Samples[f*channels+c] = b.Samples[f*b.Channels+src]
		}
	}
	return out
}
