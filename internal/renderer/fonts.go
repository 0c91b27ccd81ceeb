package renderer

import (
	"fmt"
	"image/color"
	"math"
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// ReferenceWidth is the canvas width at which a font size is used unscaled.
const ReferenceWidth = 1000.0

// LineHeightFactor is the line pitch relative to the scaled font size.
const LineHeightFactor = 1.2

// maxFaces bounds the face cache. Sizes scale with the canvas width, so a
// long session across many aspects would otherwise keep every size.
const maxFaces = 64

// FontBook maps CSS-like family names onto the embedded Go fonts and caches
// faces by size. Faces are not safe for concurrent use, so callers hold the
// book while drawing.
type FontBook struct {
	mu    sync.Mutex
	fonts map[string]*opentype.Font
	faces map[faceKey]font.Face
}

type faceKey struct {
	family string
	size   int // whole px
}

// NewFontBook parses the embedded fonts.
func NewFontBook() (*FontBook, error) {
	b := &FontBook{
		fonts: make(map[string]*opentype.Font),
		faces: make(map[faceKey]font.Face),
	}
	for name, data := range map[string][]byte{
		"regular": goregular.TTF,
		"bold":    gobold.TTF,
		"italic":  goitalic.TTF,
		"mono":    gomono.TTF,
	} {
		f, err := opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s font: %w", name, err)
		}
		b.fonts[name] = f
	}
	return b, nil
}

// Lock serializes use of faces returned by Face.
func (b *FontBook) Lock()   { b.mu.Lock() }
func (b *FontBook) Unlock() { b.mu.Unlock() }

// Face returns a face for the family at a pixel size rounded to whole
// pixels. Must be called with the book locked.
func (b *FontBook) Face(family string, px float64) (font.Face, error) {
	key := faceKey{family: resolveFamily(family), size: max(1, int(math.Round(px)))}
	if f, ok := b.faces[key]; ok {
		return f, nil
	}
	face, err := opentype.NewFace(b.fonts[key.family], &opentype.FaceOptions{
		Size:    float64(key.size),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, err
	}
	if len(b.faces) >= maxFaces {
		// Faces handed out earlier may still be drawing this frame, so they
		// are dropped rather than closed.
		clear(b.faces)
	}
	b.faces[key] = face
	return face, nil
}

// Close releases cached faces.
func (b *FontBook) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, f := range b.faces {
		f.Close()
		delete(b.faces, k)
	}
	return nil
}

func resolveFamily(family string) string {
	f := strings.ToLower(family)
	switch {
	case strings.Contains(f, "mono"), strings.Contains(f, "courier"), strings.Contains(f, "consol"):
		return "mono"
	case strings.Contains(f, "bold"), strings.Contains(f, "black"), strings.Contains(f, "impact"):
		return "bold"
	case strings.Contains(f, "italic"), strings.Contains(f, "oblique"):
		return "italic"
	default:
		return "regular"
	}
}

// ParseColor accepts #rgb and #rrggbb strings. Anything else is white, so a
// bad property value never stops rendering.
func ParseColor(s string) color.Color {
	c, err := colorful.Hex(strings.TrimSpace(s))
	if err != nil {
		return color.White
	}
	r, g, bl := c.RGB255()
	return color.RGBA{R: r, G: g, B: bl, A: 0xff}
}
