package timeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrClipNotFound  = errors.New("clip not found")
	ErrDuplicateClip = errors.New("duplicate clip id")
	ErrInvalidClip   = errors.New("invalid clip")
	ErrTrackMismatch = errors.New("track mismatch")
)

// Store is the single source of truth for clip placement. It is safe for
// concurrent use; readers that need a consistent view across several calls
// should take a Snapshot.
type Store struct {
	mu      sync.RWMutex
	clips   []Clip
	index   map[string]int
	version uint64
}

// NewStore creates an empty timeline.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Add inserts a validated clip.
func (s *Store) Add(c Clip) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[c.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateClip, c.ID)
	}
	s.index[c.ID] = len(s.clips)
	s.clips = append(s.clips, c)
	s.version++
	return nil
}

// Update applies a partial update and returns the new clip value.
func (s *Store) Update(id string, p Patch) (Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return Clip{}, fmt.Errorf("%w: %s", ErrClipNotFound, id)
	}
	updated, err := p.Apply(s.clips[i])
	if err != nil {
		return s.clips[i], err
	}
	s.clips[i] = updated
	s.version++
	return updated, nil
}

// Remove deletes the clip. Unknown ids are a no-op; the result reports
// whether anything was removed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.clips = append(s.clips[:i], s.clips[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.clips); j++ {
		s.index[s.clips[j].ID] = j
	}
	s.version++
	return true
}

// Clear removes every clip.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips = nil
	s.index = make(map[string]int)
	s.version++
}

// Get returns the clip with the given id.
func (s *Store) Get(id string) (Clip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Clip{}, false
	}
	return s.clips[i], true
}

// Len returns the number of clips.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clips)
}

// Version increases on every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ByTrack returns the clips of one track in insertion order.
func (s *Store) ByTrack(track Track) []Clip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byTrack(s.clips, track)
}

// ActiveAt returns the clips whose active window contains t, restricted to
// the given tracks (all tracks when none are given), ordered by ascending
// layer.
func (s *Store) ActiveAt(t float64, tracks ...Track) []Clip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeAt(s.clips, t, tracks)
}

// TotalDuration is the furthest clip end, or 0 for an empty timeline.
func (s *Store) TotalDuration() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return totalDuration(s.clips)
}

// Snapshot returns an immutable copy of the current state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clips := make([]Clip, len(s.clips))
	copy(clips, s.clips)
	return &Snapshot{clips: clips, version: s.version}
}

// Snapshot is a read-only view of the timeline at one version. Payloads are
// plain values, so a shallow slice copy is a full copy.
type Snapshot struct {
	clips   []Clip
	version uint64
}

// NewSnapshot builds a snapshot from loose clips, mostly for tests and
// headless rendering.
func NewSnapshot(clips ...Clip) *Snapshot {
	cp := make([]Clip, len(clips))
	copy(cp, clips)
	return &Snapshot{clips: cp}
}

func (s *Snapshot) Clips() []Clip {
	out := make([]Clip, len(s.clips))
	copy(out, s.clips)
	return out
}

func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) Len() int { return len(s.clips) }

func (s *Snapshot) ByTrack(track Track) []Clip { return byTrack(s.clips, track) }

func (s *Snapshot) ActiveAt(t float64, tracks ...Track) []Clip {
	return activeAt(s.clips, t, tracks)
}

func (s *Snapshot) TotalDuration() float64 { return totalDuration(s.clips) }

func byTrack(clips []Clip, track Track) []Clip {
	var out []Clip
	for _, c := range clips {
		if c.Track() == track {
			out = append(out, c)
		}
	}
	return out
}

func activeAt(clips []Clip, t float64, tracks []Track) []Clip {
	var out []Clip
	for _, c := range clips {
		if !c.ActiveAt(t) || !wanted(c.Track(), tracks) {
			continue
		}
		out = append(out, c)
	}
	// stable: equal layers keep insertion order
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Layer < out[j].Layer
	})
	return out
}

func wanted(track Track, tracks []Track) bool {
	if len(tracks) == 0 {
		return true
	}
	for _, t := range tracks {
		if t == track {
			return true
		}
	}
	return false
}

func totalDuration(clips []Clip) float64 {
	total := 0.0
	for _, c := range clips {
		if end := c.End(); end > total {
			total = end
		}
	}
	return total
}
