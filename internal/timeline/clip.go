package timeline

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Track is one of the three parallel lanes of the timeline.
type Track string

const (
	TrackVideo Track = "video"
	TrackText  Track = "text"
	TrackAudio Track = "audio"
)

// Tracks lists every track in paint order of the editor lanes.
var Tracks = []Track{TrackVideo, TrackText, TrackAudio}

// ParseTrack validates a track name.
func ParseTrack(s string) (Track, error) {
	switch Track(s) {
	case TrackVideo, TrackText, TrackAudio:
		return Track(s), nil
	default:
		return "", fmt.Errorf("unknown track: %q", s)
	}
}

// Animation is the per-clip motion applied to a video clip image.
type Animation string

const (
	AnimationNone     Animation = "none"
	AnimationZoomIn   Animation = "zoom-in"
	AnimationZoomOut  Animation = "zoom-out"
	AnimationPanLeft  Animation = "pan-left"
	AnimationPanRight Animation = "pan-right"
)

// ParseAnimation validates an animation name. Empty string means none.
func ParseAnimation(s string) (Animation, error) {
	switch Animation(s) {
	case "":
		return AnimationNone, nil
	case AnimationNone, AnimationZoomIn, AnimationZoomOut, AnimationPanLeft, AnimationPanRight:
		return Animation(s), nil
	default:
		return "", fmt.Errorf("unknown animation: %q", s)
	}
}

// Align is the horizontal alignment of a text clip around its anchor.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// ParseAlign validates an alignment name. Empty string means center.
func ParseAlign(s string) (Align, error) {
	switch Align(s) {
	case "":
		return AlignCenter, nil
	case AlignLeft, AlignCenter, AlignRight:
		return Align(s), nil
	default:
		return "", fmt.Errorf("unknown text alignment: %q", s)
	}
}

// Defaults applied to clips created from dropped assets.
const (
	DefaultClipDuration  = 5.0
	DefaultAudioDuration = 10.0

	VideoLayer = 1
	TextLayer  = 2
	AudioLayer = 0

	DefaultFontSize   = 60.0
	DefaultFontFamily = "Arial"
	DefaultTextColor  = "#ffffff"
	DefaultTextWidth  = 0.8
)

// Payload is the kind-specific part of a clip. The set of implementations is
// closed: Video, Text and Audio.
type Payload interface {
	Track() Track
	isPayload()
}

// Video shows a raster image, optionally animated.
type Video struct {
	Source    string    `json:"source" yaml:"source"`
	Animation Animation `json:"animation" yaml:"animation"`
}

// Text draws one or more lines of text at a normalized canvas position.
type Text struct {
	Text       string  `json:"text" yaml:"text"`
	FontSize   float64 `json:"font_size" yaml:"font_size"`
	FontFamily string  `json:"font_family" yaml:"font_family"`
	Color      string  `json:"color" yaml:"color"`
	Align      Align   `json:"align" yaml:"align"`
	X          float64 `json:"x" yaml:"x"`
	Y          float64 `json:"y" yaml:"y"`
	Width      float64 `json:"width" yaml:"width"` // advisory, no wrapping
}

// Audio plays a decodable audio source.
type Audio struct {
	Source      string `json:"source" yaml:"source"`
	DisplayName string `json:"display_name" yaml:"display_name"`
}

func (Video) Track() Track { return TrackVideo }
func (Text) Track() Track  { return TrackText }
func (Audio) Track() Track { return TrackAudio }

func (Video) isPayload() {}
func (Text) isPayload()  {}
func (Audio) isPayload() {}

// Clip is a placed asset instance. The track is derived from the payload kind,
// so a clip can never move between tracks.
type Clip struct {
	ID        string  `json:"id"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
	Layer     int     `json:"layer"`
	Payload   Payload `json:"payload"`
}

// NewVideoClip creates an image clip with the default duration and layer.
func NewVideoClip(source string, start float64) Clip {
	return Clip{
		ID:        newID(),
		StartTime: start,
		Duration:  DefaultClipDuration,
		Layer:     VideoLayer,
		Payload:   Video{Source: source, Animation: AnimationNone},
	}
}

// NewTextClip creates a centered white text clip.
func NewTextClip(text string, start float64) Clip {
	return Clip{
		ID:        newID(),
		StartTime: start,
		Duration:  DefaultClipDuration,
		Layer:     TextLayer,
		Payload: Text{
			Text:       text,
			FontSize:   DefaultFontSize,
			FontFamily: DefaultFontFamily,
			Color:      DefaultTextColor,
			Align:      AlignCenter,
			X:          0.5,
			Y:          0.5,
			Width:      DefaultTextWidth,
		},
	}
}

// NewAudioClip creates an audio clip. A non-positive duration falls back to
// DefaultAudioDuration.
func NewAudioClip(source, name string, start, duration float64) Clip {
	if duration <= 0 {
		duration = DefaultAudioDuration
	}
	return Clip{
		ID:        newID(),
		StartTime: start,
		Duration:  duration,
		Layer:     AudioLayer,
		Payload:   Audio{Source: source, DisplayName: name},
	}
}

func newID() string {
	return uuid.NewString()
}

// Track returns the lane the clip lives on.
func (c Clip) Track() Track {
	if c.Payload == nil {
		return ""
	}
	return c.Payload.Track()
}

// End is the exclusive end of the active window.
func (c Clip) End() float64 {
	return c.StartTime + c.Duration
}

// ActiveAt reports whether t lies in [StartTime, StartTime+Duration).
func (c Clip) ActiveAt(t float64) bool {
	return t >= c.StartTime && t < c.End()
}

// Progress returns the local progress of t inside the clip, in [0,1).
func (c Clip) Progress(t float64) float64 {
	if c.Duration <= 0 {
		return 0
	}
	p := (t - c.StartTime) / c.Duration
	if p < 0 {
		return 0
	}
	if p >= 1 {
		return math.Nextafter(1, 0)
	}
	return p
}

// AsVideo returns the video payload when the clip is on the video track.
func (c Clip) AsVideo() (Video, bool) {
	v, ok := c.Payload.(Video)
	return v, ok
}

// AsText returns the text payload when the clip is on the text track.
func (c Clip) AsText() (Text, bool) {
	v, ok := c.Payload.(Text)
	return v, ok
}

// AsAudio returns the audio payload when the clip is on the audio track.
func (c Clip) AsAudio() (Audio, bool) {
	v, ok := c.Payload.(Audio)
	return v, ok
}

// Validate checks the clip invariants.
func (c Clip) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidClip)
	}
	if c.Payload == nil {
		return fmt.Errorf("%w: clip %s has no payload", ErrInvalidClip, c.ID)
	}
	if !finite(c.StartTime) || c.StartTime < 0 {
		return fmt.Errorf("%w: clip %s start time %v", ErrInvalidClip, c.ID, c.StartTime)
	}
	if !finite(c.Duration) || c.Duration <= 0 {
		return fmt.Errorf("%w: clip %s duration %v", ErrInvalidClip, c.ID, c.Duration)
	}

	switch p := c.Payload.(type) {
	case Video:
		if _, err := ParseAnimation(string(p.Animation)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidClip, err)
		}
	case Text:
		if !finite(p.FontSize) || p.FontSize <= 0 {
			return fmt.Errorf("%w: clip %s font size %v", ErrInvalidClip, c.ID, p.FontSize)
		}
		if _, err := ParseAlign(string(p.Align)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidClip, err)
		}
		for _, v := range []float64{p.X, p.Y} {
			if !finite(v) || v < 0 || v > 1 {
				return fmt.Errorf("%w: clip %s position outside [0,1]", ErrInvalidClip, c.ID)
			}
		}
	case Audio:
		if p.Source == "" {
			return fmt.Errorf("%w: clip %s has no audio source", ErrInvalidClip, c.ID)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
