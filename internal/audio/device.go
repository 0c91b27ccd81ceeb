package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

// deviceChannels is the only layout the ebiten float32 player accepts.
const deviceChannels = 2

const pollInterval = 20 * time.Millisecond

// DeviceOutput plays voices on the system audio device.
type DeviceOutput struct {
	ctx *audio.Context
}

// NewDeviceOutput opens the process audio context at sampleRate, or reuses
// the existing one if its rate matches.
func NewDeviceOutput(sampleRate int) (*DeviceOutput, error) {
	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(sampleRate)
	} else if ctx.SampleRate() != sampleRate {
		return nil, fmt.Errorf("audio context already open at %d Hz", ctx.SampleRate())
	}
	return &DeviceOutput{ctx: ctx}, nil
}

func (d *DeviceOutput) Start(clipID string, buf *Buffer, offset float64) (Voice, error) {
	if buf.SampleRate != d.ctx.SampleRate() {
		return nil, fmt.Errorf("clip %s: sample rate %d, device runs at %d", clipID, buf.SampleRate, d.ctx.SampleRate())
	}
	p, err := d.ctx.NewPlayerF32(buf.Remix(deviceChannels).Reader(offset))
	if err != nil {
		return nil, fmt.Errorf("clip %s: %w", clipID, err)
	}
	v := &deviceVoice{player: p, done: make(chan struct{}), stop: make(chan struct{})}
	p.Play()
	go v.watch()
	return v, nil
}

type deviceVoice struct {
	player *audio.Player
	done   chan struct{}
	stop   chan struct{}
	once   sync.Once
}

func (v *deviceVoice) watch() {
	defer close(v.done)
	defer v.player.Close()

	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-v.stop:
			v.player.Pause()
			return
		case <-t.C:
			if !v.player.IsPlaying() {
				return
			}
		}
	}
}

func (v *deviceVoice) Stop() {
	v.once.Do(func() { close(v.stop) })
}

func (v *deviceVoice) Done() <-chan struct{} { return v.done }
