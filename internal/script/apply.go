package script

import (
	"errors"
	"fmt"

	"github.com/ivlev/reelcomposer/internal/assets"
	"github.com/ivlev/reelcomposer/internal/editor"
	"github.com/ivlev/reelcomposer/internal/renderer"
	"github.com/ivlev/reelcomposer/internal/timeline"
)

var ErrUnknownAsset = errors.New("unknown asset")

// Apply adds every entry of s to the editor's timeline, in order, by
// dragging the asset onto its track and editing the dropped clip. reg may be
// nil when all entries are inline. It returns the new clip ids.
func Apply(s *Script, ed *editor.Editor, reg *assets.Registry) ([]string, error) {
	if s.Aspect != "" {
		if err := ed.SetAspect(renderer.AspectRatio(s.Aspect)); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(s.Clips))
	for i, e := range s.Clips {
		p, err := e.payload(reg)
		if err != nil {
			return ids, fmt.Errorf("clip %d: %w", i, err)
		}
		ed.BeginDrag(p)
		id, ok := ed.Drop(e.Track, e.At*ed.PixelsPerSecond())
		if !ok {
			return ids, fmt.Errorf("clip %d: cannot place %s asset on the %s track", i, p.Kind, e.Track)
		}
		ids = append(ids, id)

		if !e.Set.IsEmpty() {
			if _, err := ed.UpdateSelected(e.Set); err != nil {
				return ids, fmt.Errorf("clip %d: %w", i, err)
			}
		}
	}
	ed.Select("")
	return ids, nil
}

func (e Entry) payload(reg *assets.Registry) (assets.Payload, error) {
	kind, err := kindFor(e.Track)
	if err != nil {
		return assets.Payload{}, err
	}
	if e.Asset != nil {
		if reg == nil {
			return assets.Payload{}, fmt.Errorf("%w: %s #%d (no asset folder)", ErrUnknownAsset, kind, *e.Asset)
		}
		p, ok := reg.Lookup(kind, *e.Asset)
		if !ok {
			return assets.Payload{}, fmt.Errorf("%w: %s #%d", ErrUnknownAsset, kind, *e.Asset)
		}
		return p, nil
	}

	switch kind {
	case assets.KindText:
		if e.Text == "" {
			return assets.TemplatePayload(), nil
		}
		return assets.Payload{Kind: kind, Text: e.Text}, nil
	default:
		if e.Source == "" {
			return assets.Payload{}, fmt.Errorf("%s entry needs a source or an asset index", e.Track)
		}
		return assets.Payload{Kind: kind, Ref: e.Source, DisplayName: e.Name}, nil
	}
}

func kindFor(t timeline.Track) (assets.Kind, error) {
	switch t {
	case timeline.TrackVideo:
		return assets.KindImage, nil
	case timeline.TrackText:
		return assets.KindText, nil
	case timeline.TrackAudio:
		return assets.KindAudio, nil
	default:
		return "", fmt.Errorf("unknown track %q", t)
	}
}

// Capture describes the editor's current timeline as an inline script.
func Capture(ed *editor.Editor) *Script {
	s := &Script{Version: Version, Aspect: string(ed.Aspect())}
	for _, c := range ed.Snapshot().Clips() {
		e := Entry{
			Track: c.Track(),
			At:    c.StartTime,
			Set: timeline.Patch{
				Duration: timeline.Float(c.Duration),
				Layer:    timeline.Int(c.Layer),
			},
		}
		switch p := c.Payload.(type) {
		case timeline.Video:
			e.Source = p.Source
			e.Set.Animation = timeline.AnimationPtr(p.Animation)
		case timeline.Text:
			e.Text = p.Text
			if p.Text == "" {
				e.Set.Text = timeline.String("")
			}
			e.Set.FontSize = timeline.Float(p.FontSize)
			e.Set.FontFamily = timeline.String(p.FontFamily)
			e.Set.Color = timeline.String(p.Color)
			e.Set.Align = timeline.AlignPtr(p.Align)
			e.Set.X = timeline.Float(p.X)
			e.Set.Y = timeline.Float(p.Y)
			e.Set.Width = timeline.Float(p.Width)
		case timeline.Audio:
			e.Source = p.Source
			e.Name = p.DisplayName
		}
		s.Clips = append(s.Clips, e)
	}
	return s
}
