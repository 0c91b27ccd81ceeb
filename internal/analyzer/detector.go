// Package analyzer finds busy regions of an image so that text laid over it
// can go where the picture is quiet.
package analyzer

import "image"

// Block is a region of dense detail, in fractions of the image size.
type Block struct {
	Left, Top, Right, Bottom float64
}

func (b Block) Width() float64  { return b.Right - b.Left }
func (b Block) Height() float64 { return b.Bottom - b.Top }

// Detector is the interface for image analysis strategies
type Detector interface {
	Detect(img image.Image) []Block
}

// CaptionAnchor picks the anchor, a vertical position in [0,1], whose band
// of the given height covers the least block area. Ties go to the earlier
// anchor, so callers list their preferred position first.
func CaptionAnchor(d Detector, img image.Image, band float64, anchors ...float64) float64 {
	if len(anchors) == 0 {
		return 0.5
	}
	blocks := d.Detect(img)
	best, bestCost := anchors[0], -1.0
	for _, a := range anchors {
		top, bottom := a-band/2, a+band/2
		cost := 0.0
		for _, b := range blocks {
			overlap := min(bottom, b.Bottom) - max(top, b.Top)
			if overlap > 0 {
				cost += overlap * b.Width()
			}
		}
		if bestCost < 0 || cost < bestCost {
			best, bestCost = a, cost
		}
	}
	return best
}
