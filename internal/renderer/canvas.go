package renderer

import (
	"fmt"
	"image"
)

// AspectRatio is one of the supported canvas presets.
type AspectRatio string

const (
	Aspect16x9 AspectRatio = "16:9"
	Aspect9x16 AspectRatio = "9:16"
	Aspect1x1  AspectRatio = "1:1"
	Aspect4x5  AspectRatio = "4:5"
)

// AspectRatios lists the presets in menu order.
var AspectRatios = []AspectRatio{Aspect16x9, Aspect9x16, Aspect1x1, Aspect4x5}

var aspectDimensions = map[AspectRatio]Canvas{
	Aspect16x9: {Width: 1280, Height: 720},
	Aspect9x16: {Width: 720, Height: 1280},
	Aspect1x1:  {Width: 1080, Height: 1080},
	Aspect4x5:  {Width: 1080, Height: 1350},
}

// Canvas is the pixel size of the drawing surface.
type Canvas struct {
	Width, Height int
}

// CanvasFor returns the pixel size for a preset.
func CanvasFor(a AspectRatio) (Canvas, error) {
	c, ok := aspectDimensions[a]
	if !ok {
		return Canvas{}, fmt.Errorf("unknown aspect ratio: %q", a)
	}
	return c, nil
}

// Rect returns the canvas bounds.
func (c Canvas) Rect() image.Rectangle {
	return image.Rect(0, 0, c.Width, c.Height)
}

func (c Canvas) String() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}
