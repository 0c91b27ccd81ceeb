// Package transport owns the playhead: current time, play state and the
// timed advance loop.
package transport

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// StepMode selects how far a tick advances the playhead.
type StepMode string

const (
	// StepDelta advances by the measured time since the previous tick.
	StepDelta StepMode = "delta"
	// StepFixed advances by a constant nominal step regardless of real time.
	StepFixed StepMode = "fixed"
)

// DefaultFixedStep is one frame at 60Hz.
const DefaultFixedStep = 0.016

// ParseStepMode validates a step mode name.
func ParseStepMode(s string) (StepMode, error) {
	switch StepMode(s) {
	case StepDelta, StepFixed:
		return StepMode(s), nil
	default:
		return "", fmt.Errorf("unknown step mode: %q", s)
	}
}

// Event describes the transport after a change.
type Event struct {
	State     State
	Time      float64
	Scrubbing bool
	// Seek is set when the time was placed directly rather than advanced.
	Seek bool
}

type Listener func(Event)

type Options struct {
	Mode      StepMode
	FixedStep float64
	TickRate  int // ticks per second for Run
}

// Transport is safe for concurrent use. Listeners run outside the lock, in
// the goroutine that caused the change.
type Transport struct {
	duration func() float64
	opts     Options
	log      zerolog.Logger

	mu        sync.Mutex
	state     State
	time      float64
	scrubbing bool
	timeSet   bool // set directly since the last tick
	holds     int  // outstanding Hold calls; Play is refused while > 0
	listeners []Listener
}

// New creates a stopped transport at time 0. duration reports the current
// composition length.
func New(duration func() float64, opts Options, log zerolog.Logger) *Transport {
	if opts.Mode == "" {
		opts.Mode = StepDelta
	}
	if opts.FixedStep <= 0 {
		opts.FixedStep = DefaultFixedStep
	}
	if opts.TickRate <= 0 {
		opts.TickRate = 60
	}
	return &Transport{duration: duration, opts: opts, log: log}
}

// Subscribe registers fn for every subsequent change.
func (t *Transport) Subscribe(fn Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *Transport) Time() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.time
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Playing() bool {
	return t.State() == Playing
}

func (t *Transport) Scrubbing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scrubbing
}

// Snapshot returns state, time and scrub flag read together.
func (t *Transport) Snapshot() Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eventLocked()
}

// Play starts playback. With nothing to play, or while held, it has no
// effect and reports false.
func (t *Transport) Play() bool {
	t.mu.Lock()
	if t.holds > 0 || t.duration() <= 0 {
		t.mu.Unlock()
		return false
	}
	if t.state == Playing {
		t.mu.Unlock()
		return true
	}
	t.state = Playing
	t.timeSet = false
	t.mu.Unlock()
	t.log.Debug().Float64("at", t.Time()).Msg("play")
	t.emit(false)
	return true
}

// Pause keeps the current time.
func (t *Transport) Pause() {
	t.mu.Lock()
	if t.state != Playing {
		t.mu.Unlock()
		return
	}
	t.state = Paused
	t.mu.Unlock()
	t.log.Debug().Msg("pause")
	t.emit(false)
}

// Hold pauses playback and refuses Play until every returned release func
// has been called. Seeks are still honoured.
func (t *Transport) Hold() (release func()) {
	t.mu.Lock()
	t.holds++
	t.mu.Unlock()
	t.Pause()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			t.holds--
			t.mu.Unlock()
		})
	}
}

// Held reports whether Play is currently refused.
func (t *Transport) Held() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.holds > 0
}

// Toggle pauses when playing and plays otherwise.
func (t *Transport) Toggle() {
	if t.Playing() {
		t.Pause()
		return
	}
	t.Play()
}

// Stop halts playback and rewinds to 0.
func (t *Transport) Stop() {
	t.mu.Lock()
	t.state = Stopped
	t.time = 0
	t.timeSet = true
	t.mu.Unlock()
	t.log.Debug().Msg("stop")
	t.emit(true)
}

// Seek sets the time directly. Negative values clamp to 0 and NaN or
// infinite values are ignored. The next tick does not advance past a seek.
func (t *Transport) Seek(at float64) {
	t.mu.Lock()
	ok := t.setLocked(at)
	t.mu.Unlock()
	if ok {
		t.emit(true)
	}
}

// BeginScrub suspends the autonomous advance and moves to at. Play state is
// retained.
func (t *Transport) BeginScrub(at float64) {
	t.mu.Lock()
	t.scrubbing = true
	t.setLocked(at)
	t.mu.Unlock()
	t.emit(true)
}

// ScrubTo moves the playhead while scrubbing; otherwise it is ignored.
func (t *Transport) ScrubTo(at float64) {
	t.mu.Lock()
	if !t.scrubbing {
		t.mu.Unlock()
		return
	}
	ok := t.setLocked(at)
	t.mu.Unlock()
	if ok {
		t.emit(true)
	}
}

// EndScrub releases the playhead. A paused or stopped transport stays so.
func (t *Transport) EndScrub() {
	t.mu.Lock()
	if !t.scrubbing {
		t.mu.Unlock()
		return
	}
	t.scrubbing = false
	t.mu.Unlock()
	t.emit(false)
}

func (t *Transport) setLocked(at float64) bool {
	if math.IsNaN(at) || math.IsInf(at, 0) {
		t.log.Warn().Float64("at", at).Msg("ignoring non-finite time")
		return false
	}
	if at < 0 {
		at = 0
	}
	t.time = at
	t.timeSet = true
	return true
}

// Tick advances a playing transport. delta is the real time since the last
// tick and is ignored in fixed-step mode. Reaching the end of the
// composition stops playback and rewinds to 0. It reports whether the time
// changed.
func (t *Transport) Tick(delta float64) bool {
	t.mu.Lock()
	if t.state != Playing || t.scrubbing {
		t.mu.Unlock()
		return false
	}
	if t.timeSet {
		t.timeSet = false
		t.mu.Unlock()
		return false
	}

	step := delta
	if t.opts.Mode == StepFixed {
		step = t.opts.FixedStep
	}
	if step <= 0 {
		t.mu.Unlock()
		return false
	}

	next := t.time + step
	if total := t.duration(); next >= total {
		t.state = Stopped
		t.time = 0
		t.mu.Unlock()
		t.log.Debug().Float64("duration", total).Msg("end of composition")
		t.emit(true)
		return true
	}
	t.time = next
	t.mu.Unlock()
	t.emit(false)
	return true
}

// Run ticks at the configured rate until ctx is done, calling onTick after
// each tick with the resulting transport state.
func (t *Transport) Run(ctx context.Context, onTick func(Event)) error {
	interval := time.Second / time.Duration(t.opts.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			t.Tick(now.Sub(last).Seconds())
			last = now
			if onTick != nil {
				onTick(t.Snapshot())
			}
		}
	}
}

func (t *Transport) eventLocked() Event {
	return Event{State: t.state, Time: t.time, Scrubbing: t.scrubbing}
}

func (t *Transport) emit(seek bool) {
	t.mu.Lock()
	ev := t.eventLocked()
	ev.Seek = seek
	ls := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()
	for _, fn := range ls {
		fn(ev)
	}
}
