package timeline

import "fmt"

// Patch is a partial clip update. Nil fields are left untouched. Fields that
// belong to a different clip kind than the target are rejected with
// ErrTrackMismatch.
type Patch struct {
	StartTime *float64 `yaml:"start_time,omitempty"`
	Duration  *float64 `yaml:"duration,omitempty"`
	Layer     *int     `yaml:"layer,omitempty"`

	// video
	Animation *Animation `yaml:"animation,omitempty"`

	// text
	Text       *string  `yaml:"text,omitempty"`
	FontSize   *float64 `yaml:"font_size,omitempty"`
	FontFamily *string  `yaml:"font_family,omitempty"`
	Color      *string  `yaml:"color,omitempty"`
	Align      *Align   `yaml:"align,omitempty"`
	X          *float64 `yaml:"x,omitempty"`
	Y          *float64 `yaml:"y,omitempty"`
	Width      *float64 `yaml:"width,omitempty"`

	// audio
	DisplayName *string `yaml:"display_name,omitempty"`
}

// Float returns a pointer to v, for building patches.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// AnimationPtr returns a pointer to v.
func AnimationPtr(v Animation) *Animation { return &v }

// AlignPtr returns a pointer to v.
func AlignPtr(v Align) *Align { return &v }

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

func (p Patch) hasVideo() bool { return p.Animation != nil }

func (p Patch) hasText() bool {
	return p.Text != nil || p.FontSize != nil || p.FontFamily != nil || p.Color != nil ||
		p.Align != nil || p.X != nil || p.Y != nil || p.Width != nil
}

func (p Patch) hasAudio() bool { return p.DisplayName != nil }

// Apply returns a copy of c with the patch applied. The result is validated.
func (p Patch) Apply(c Clip) (Clip, error) {
	track := c.Track()
	if (p.hasVideo() && track != TrackVideo) ||
		(p.hasText() && track != TrackText) ||
		(p.hasAudio() && track != TrackAudio) {
		return c, fmt.Errorf("%w: patch fields do not match %s clip %s", ErrTrackMismatch, track, c.ID)
	}

	out := c
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.Duration != nil {
		out.Duration = *p.Duration
	}
	if p.Layer != nil {
		out.Layer = *p.Layer
	}

	switch pl := c.Payload.(type) {
	case Video:
		if p.Animation != nil {
			pl.Animation = *p.Animation
		}
		out.Payload = pl
	case Text:
		if p.Text != nil {
			pl.Text = *p.Text
		}
		if p.FontSize != nil {
			pl.FontSize = *p.FontSize
		}
		if p.FontFamily != nil {
			pl.FontFamily = *p.FontFamily
		}
		if p.Color != nil {
			pl.Color = *p.Color
		}
		if p.Align != nil {
			pl.Align = *p.Align
		}
		if p.X != nil {
			pl.X = *p.X
		}
		if p.Y != nil {
			pl.Y = *p.Y
		}
		if p.Width != nil {
			pl.Width = *p.Width
		}
		out.Payload = pl
	case Audio:
		if p.DisplayName != nil {
			pl.DisplayName = *p.DisplayName
		}
		out.Payload = pl
	}

	if err := out.Validate(); err != nil {
		return c, err
	}
	return out, nil
}
