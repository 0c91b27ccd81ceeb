package audio

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ivlev/reelcomposer/internal/metrics"
	"github.com/ivlev/reelcomposer/internal/timeline"
)

// Output plays buffers.
type Output interface {
	// Start plays buf beginning offset seconds into it.
	Start(clipID string, buf *Buffer, offset float64) (Voice, error)
}

// Voice is one playing source.
type Voice interface {
	Stop()
	// Done is closed when the voice finished or was stopped.
	Done() <-chan struct{}
}

// Scheduler keeps exactly one voice per audio clip whose active window
// contains the playhead. It owns its decode cache and voice set; nothing is
// process-global.
type Scheduler struct {
	cache *DecodeCache
	out   Output
	log   zerolog.Logger

	mu     sync.Mutex
	voices map[string]Voice
}

func NewScheduler(cache *DecodeCache, out Output, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cache:  cache,
		out:    out,
		log:    log,
		voices: make(map[string]Voice),
	}
}

// Cache returns the decode cache the scheduler reads from.
func (s *Scheduler) Cache() *DecodeCache { return s.cache }

// Sync reconciles voices with the timeline at time t. When not playing every
// voice is stopped. Clips whose audio is not decoded yet stay silent and are
// picked up by a later call.
func (s *Scheduler) Sync(snap *timeline.Snapshot, t float64, playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { metrics.ActiveVoices.Set(float64(len(s.voices))) }()

	s.reapLocked()

	if !playing {
		s.stopAllLocked()
		return
	}

	active := snap.ActiveAt(t, timeline.TrackAudio)
	want := make(map[string]struct{}, len(active))
	for _, c := range active {
		want[c.ID] = struct{}{}
	}
	for id, v := range s.voices {
		if _, ok := want[id]; !ok {
			v.Stop()
			delete(s.voices, id)
		}
	}

	for _, c := range active {
		if _, ok := s.voices[c.ID]; ok {
			continue
		}
		a, _ := c.AsAudio()
		buf, ok := s.cache.Get(a.Source)
		if !ok {
			s.cache.Request(a.Source)
			metrics.ClipsSkipped.WithLabelValues(string(timeline.TrackAudio)).Inc()
			continue
		}
		offset := t - c.StartTime
		if offset >= buf.Duration() {
			// Source is shorter than the clip; the tail is silence.
			continue
		}
		v, err := s.out.Start(c.ID, buf, offset)
		if err != nil {
			s.log.Warn().Err(err).Str("clip_id", c.ID).Str("source", a.Source).Msg("voice start failed")
			continue
		}
		s.voices[c.ID] = v
		metrics.VoicesStarted.Inc()
		s.log.Debug().Str("clip_id", c.ID).Float64("offset", offset).Msg("voice started")
	}
}

// Preload requests decoding of every audio source on the timeline.
func (s *Scheduler) Preload(snap *timeline.Snapshot) {
	for _, c := range snap.ByTrack(timeline.TrackAudio) {
		a, _ := c.AsAudio()
		s.cache.Request(a.Source)
	}
}

// StopAll silences every voice immediately.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAllLocked()
	metrics.ActiveVoices.Set(0)
}

// Active lists the clip ids that currently have a voice.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	ids := make([]string, 0, len(s.voices))
	for id := range s.voices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Scheduler) stopAllLocked() {
	for id, v := range s.voices {
		v.Stop()
		delete(s.voices, id)
	}
}

// reapLocked drops voices that finished on their own.
func (s *Scheduler) reapLocked() {
	for id, v := range s.voices {
		select {
		case <-v.Done():
			delete(s.voices, id)
		default:
		}
	}
}
