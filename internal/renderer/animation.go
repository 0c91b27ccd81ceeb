package renderer

import (
	"github.com/ivlev/reelcomposer/internal/timeline"
)

// MaxScale is the scale reached at the end of a zoom and held during pans.
const MaxScale = 1.2

// Placement is the destination rectangle of an image on the canvas, in
// canvas pixels. It may extend beyond the canvas.
type Placement struct {
	X, Y float64
	W, H float64
}

// Scale returns the placement width relative to the canvas width.
func (p Placement) Scale(c Canvas) float64 {
	if c.Width == 0 {
		return 0
	}
	return p.W / float64(c.Width)
}

// Place computes where an animated image is drawn at local progress p in
// [0,1). Geometry is always derived from the current canvas size.
func Place(anim timeline.Animation, p float64, c Canvas) Placement {
	cw, ch := float64(c.Width), float64(c.Height)

	switch anim {
	case timeline.AnimationZoomIn:
		return centered(lerp(1, MaxScale, p), cw, ch)
	case timeline.AnimationZoomOut:
		return centered(lerp(MaxScale, 1, p), cw, ch)
	case timeline.AnimationPanLeft:
		w, h := cw*MaxScale, ch*MaxScale
		return Placement{
			X: lerp(0, -(w - cw), p),
			Y: (ch - h) / 2,
			W: w,
			H: h,
		}
	case timeline.AnimationPanRight:
		w, h := cw*MaxScale, ch*MaxScale
		return Placement{
			X: lerp(-(w - cw), 0, p),
			Y: (ch - h) / 2,
			W: w,
			H: h,
		}
	default: // none
		return Placement{W: cw, H: ch}
	}
}

// centered scales the canvas-sized image around the canvas center.
func centered(scale, cw, ch float64) Placement {
	w, h := cw*scale, ch*scale
	return Placement{
		X: (cw - w) / 2,
		Y: (ch - h) / 2,
		W: w,
		H: h,
	}
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
