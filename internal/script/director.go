package script

import (
	"image"

	"github.com/ivlev/reelcomposer/internal/analyzer"
	"github.com/ivlev/reelcomposer/internal/assets"
	"github.com/ivlev/reelcomposer/internal/timeline"
)

// motions cycles through the image animations of a storyboard.
var motions = []timeline.Animation{
	timeline.AnimationZoomIn,
	timeline.AnimationPanLeft,
	timeline.AnimationZoomOut,
	timeline.AnimationPanRight,
}

// Director lays out a first-cut storyboard from an asset registry.
type Director struct {
	MinDwell float64 // Minimum time per image (seconds)
	MaxDwell float64 // Maximum time per image (seconds)
	// CaptionY is the vertical anchor of headline captions.
	CaptionY float64
	// AltCaptionY is used instead when the image is busier around CaptionY.
	AltCaptionY float64

	Detector analyzer.Detector
	// Frames returns a loaded image by ref. Without it captions always sit
	// at CaptionY.
	Frames func(ref string) (image.Image, bool)
}

func NewDirector() *Director {
	return &Director{
		MinDwell:    2.0,
		MaxDwell:    6.0,
		CaptionY:    0.8,
		AltCaptionY: 0.2,
		Detector:    analyzer.NewContrastDetector(),
	}
}

// Storyboard places every image back to back, captions image i with text i,
// ends on the last CTA and lays the first audio asset under everything.
// target is the wanted total duration; 0 uses the default clip duration per
// image.
func (d *Director) Storyboard(reg *assets.Registry, target float64) *Script {
	s := &Script{Version: Version}
	images, texts, audios := reg.Images(), reg.Texts(), reg.Audios()
	if len(images) == 0 {
		return s
	}

	dwell := d.calculateDwellTime(target, len(images))
	at := 0.0
	for i := range images {
		idx := i
		s.Clips = append(s.Clips, Entry{
			Track: timeline.TrackVideo,
			At:    at,
			Asset: &idx,
			Set: timeline.Patch{
				Duration:  timeline.Float(dwell),
				Animation: timeline.AnimationPtr(motions[i%len(motions)]),
			},
		})
		if i < len(texts) && texts[i].Headline != "" {
			s.Clips = append(s.Clips, Entry{
				Track: timeline.TrackText,
				At:    at,
				Asset: &idx,
				Set: timeline.Patch{
					Duration: timeline.Float(dwell),
					Y:        timeline.Float(d.captionY(images[i].Ref)),
				},
			})
		}
		at += dwell
	}

	if cta := lastCTA(texts); cta != "" {
		s.Clips = append(s.Clips, Entry{
			Track: timeline.TrackText,
			At:    at - dwell,
			Text:  cta,
			Set: timeline.Patch{
				Duration: timeline.Float(dwell),
				Y:        timeline.Float(0.5),
				FontSize: timeline.Float(timeline.DefaultFontSize * 1.2),
			},
		})
	}

	if len(audios) > 0 {
		first := 0
		s.Clips = append(s.Clips, Entry{
			Track: timeline.TrackAudio,
			At:    0,
			Asset: &first,
			Set:   timeline.Patch{Duration: timeline.Float(at)},
		})
	}
	return s
}

// captionBand is the height of a caption, as a fraction of the frame.
const captionBand = 0.15

func (d *Director) captionY(ref string) float64 {
	if d.Frames == nil || d.Detector == nil {
		return d.CaptionY
	}
	img, ok := d.Frames(ref)
	if !ok {
		return d.CaptionY
	}
	return analyzer.CaptionAnchor(d.Detector, img, captionBand, d.CaptionY, d.AltCaptionY)
}

// calculateDwellTime determines how long to show each image.
func (d *Director) calculateDwellTime(target float64, count int) float64 {
	if target <= 0 {
		return timeline.DefaultClipDuration
	}
	dwell := target / float64(count)
	if dwell < d.MinDwell {
		dwell = d.MinDwell
	}
	if dwell > d.MaxDwell {
		dwell = d.MaxDwell
	}
	return dwell
}

func lastCTA(texts []assets.TextAsset) string {
	for i := len(texts) - 1; i >= 0; i-- {
		if texts[i].CTA != "" {
			return texts[i].CTA
		}
	}
	return ""
}
