package editor

import (
	"fmt"
	"math"

	"github.com/ivlev/reelcomposer/internal/assets"
	"github.com/ivlev/reelcomposer/internal/timeline"
)

// BeginDrag starts dragging an asset from the registry.
func (e *Editor) BeginDrag(p assets.Payload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dragging = &p
}

// CancelDrag forgets the dragged asset.
func (e *Editor) CancelDrag() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dragging = nil
}

// Drop places the dragged asset on track at pointer offset x, measured in
// pixels from the start of the timeline content. Without a drag in progress,
// or when the asset does not belong on track, the drop is ignored. The new
// clip becomes the selection.
func (e *Editor) Drop(track timeline.Track, x float64) (string, bool) {
	e.mu.Lock()
	p := e.dragging
	e.dragging = nil
	e.mu.Unlock()

	if p == nil || p.Kind.Track() != track {
		e.log.Debug().Str("track", string(track)).Msg("drop ignored")
		return "", false
	}

	at := math.Max(0, x/e.pps)
	var clip timeline.Clip
	switch p.Kind {
	case assets.KindImage:
		if e.images != nil {
			e.images.Request(p.Ref)
		}
		clip = timeline.NewVideoClip(p.Ref, at)
	case assets.KindText:
		clip = timeline.NewTextClip(p.Text, at)
	case assets.KindAudio:
		clip = timeline.NewAudioClip(p.Ref, p.DisplayName, at, e.audioDuration(p.Ref))
	default:
		return "", false
	}

	if err := e.store.Add(clip); err != nil {
		e.log.Warn().Err(err).Str("track", string(track)).Msg("drop rejected")
		return "", false
	}
	e.mu.Lock()
	e.selected = clip.ID
	e.mu.Unlock()

	e.log.Info().
		Str("clip_id", clip.ID).
		Str("track", string(track)).
		Float64("start", clip.StartTime).
		Float64("duration", clip.Duration).
		Msg("clip added")
	return clip.ID, true
}

// audioDuration is the decoded length of src when known. Otherwise decoding
// is started and 0 selects the default clip duration.
func (e *Editor) audioDuration(src string) float64 {
	if e.decodes == nil {
		return 0
	}
	d, err := e.decodes.Duration(src)
	if err != nil {
		e.decodes.Request(src)
		return 0
	}
	return d
}

// PointerDownClip grabs a clip for repositioning and selects it.
func (e *Editor) PointerDownClip(id string, x float64) bool {
	clip, ok := e.store.Get(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = id
	e.moving = &clipDrag{id: id, pointerX: x, origStart: clip.StartTime}
	return true
}

// PointerDownRuler starts scrubbing at pointer offset x.
func (e *Editor) PointerDownRuler(x float64) {
	e.transport.BeginScrub(e.rulerTime(x))
}

// PointerMove continues a scrub or a clip drag, whichever is active.
func (e *Editor) PointerMove(x float64) {
	if e.transport.Scrubbing() {
		e.transport.ScrubTo(e.rulerTime(x))
		return
	}

	e.mu.Lock()
	m := e.moving
	e.mu.Unlock()
	if m == nil {
		return
	}

	start := math.Max(0, m.origStart+(x-m.pointerX)/e.pps)
	if _, err := e.store.Update(m.id, timeline.Patch{StartTime: &start}); err != nil {
		// The clip was deleted mid-drag.
		e.mu.Lock()
		e.moving = nil
		e.mu.Unlock()
	}
}

// PointerUp ends any scrub or clip drag. Playback is not resumed.
func (e *Editor) PointerUp() {
	e.transport.EndScrub()
	e.mu.Lock()
	e.moving = nil
	e.mu.Unlock()
}

// rulerTime maps a ruler offset to a time within the content width.
func (e *Editor) rulerTime(x float64) float64 {
	limit := e.ContentWidth() / e.pps
	return math.Min(math.Max(0, x/e.pps), limit)
}

// Select makes id the sole selected clip. An empty id clears the selection.
func (e *Editor) Select(id string) bool {
	if id != "" {
		if _, ok := e.store.Get(id); !ok {
			return false
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = id
	return true
}

// Selected returns the selected clip.
func (e *Editor) Selected() (timeline.Clip, bool) {
	e.mu.Lock()
	id := e.selected
	e.mu.Unlock()
	if id == "" {
		return timeline.Clip{}, false
	}
	return e.store.Get(id)
}

// DeleteSelected removes the selected clip and clears the selection.
func (e *Editor) DeleteSelected() bool {
	e.mu.Lock()
	id := e.selected
	e.selected = ""
	if e.moving != nil && e.moving.id == id {
		e.moving = nil
	}
	e.mu.Unlock()
	if id == "" {
		return false
	}
	removed := e.store.Remove(id)
	if removed {
		e.log.Info().Str("clip_id", id).Msg("clip deleted")
	}
	return removed
}

// UpdateSelected applies a property edit to the selected clip.
func (e *Editor) UpdateSelected(p timeline.Patch) (timeline.Clip, error) {
	e.mu.Lock()
	id := e.selected
	e.mu.Unlock()
	if id == "" {
		return timeline.Clip{}, ErrNoSelection
	}
	c, err := e.store.Update(id, p)
	if err != nil {
		return timeline.Clip{}, fmt.Errorf("update %s: %w", id, err)
	}
	return c, nil
}
