package renderer

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/reelcomposer/internal/metrics"
	"github.com/ivlev/reelcomposer/internal/timeline"
)

// Text shadow, matching a 50% black shadow with a 4px blur.
var shadowColor = color.NRGBA{A: 0x80}

const shadowBlur = 4

// ImageProvider resolves an image reference without blocking. ok is false
// while the image is loading or after it failed to load.
type ImageProvider interface {
	Image(ref string) (img image.Image, ok bool)
}

// Renderer paints a timeline snapshot at a point in time. It keeps no
// per-frame state: the same snapshot, time and canvas always produce the same
// pixels.
type Renderer struct {
	images ImageProvider
	fonts  *FontBook
	log    zerolog.Logger
}

func New(images ImageProvider, fonts *FontBook, log zerolog.Logger) *Renderer {
	return &Renderer{images: images, fonts: fonts, log: log}
}

// RenderFrame allocates a canvas-sized frame and renders into it.
func (r *Renderer) RenderFrame(snap *timeline.Snapshot, t float64, c Canvas) *image.RGBA {
	dst := image.NewRGBA(c.Rect())
	r.RenderInto(dst, snap, t)
	return dst
}

// RenderInto renders onto dst, using its bounds as the canvas size.
func (r *Renderer) RenderInto(dst *image.RGBA, snap *timeline.Snapshot, t float64) {
	start := time.Now()
	defer func() {
		metrics.FramesRendered.Inc()
		metrics.FrameRenderDuration.Observe(time.Since(start).Seconds())
	}()

	b := dst.Bounds()
	c := Canvas{Width: b.Dx(), Height: b.Dy()}

	// Base layer: clips are not required to cover the canvas.
	draw.Draw(dst, b, image.Black, image.Point{}, draw.Src)

	for _, clip := range snap.ActiveAt(t, timeline.TrackVideo, timeline.TrackText) {
		switch p := clip.Payload.(type) {
		case timeline.Video:
			r.drawVideo(dst, c, clip, p, t)
		case timeline.Text:
			r.drawText(dst, c, p)
		}
	}
}

func (r *Renderer) drawVideo(dst *image.RGBA, c Canvas, clip timeline.Clip, v timeline.Video, t float64) {
	if r.images == nil {
		return
	}
	img, ok := r.images.Image(v.Source)
	if !ok || img.Bounds().Empty() {
		metrics.ClipsSkipped.WithLabelValues(string(timeline.TrackVideo)).Inc()
		return
	}

	pl := Place(v.Animation, clip.Progress(t), c)
	sr := img.Bounds()
	sx := pl.W / float64(sr.Dx())
	sy := pl.H / float64(sr.Dy())
	ox := float64(dst.Bounds().Min.X) + pl.X
	oy := float64(dst.Bounds().Min.Y) + pl.Y

	s2d := f64.Aff3{
		sx, 0, ox - float64(sr.Min.X)*sx,
		0, sy, oy - float64(sr.Min.Y)*sy,
	}
	xdraw.ApproxBiLinear.Transform(dst, s2d, img, sr, xdraw.Over, nil)
}

type textLine struct {
	text string
	dot  fixed.Point26_6
}

func (r *Renderer) drawText(dst *image.RGBA, c Canvas, tx timeline.Text) {
	if r.fonts == nil || tx.Text == "" {
		return
	}
	size := tx.FontSize * (float64(c.Width) / ReferenceWidth)
	if size <= 0 {
		return
	}

	r.fonts.Lock()
	defer r.fonts.Unlock()

	face, err := r.fonts.Face(tx.FontFamily, size)
	if err != nil {
		r.log.Warn().Err(err).Str("family", tx.FontFamily).Msg("font face unavailable")
		return
	}

	b := dst.Bounds()
	anchorX := float64(b.Min.X) + tx.X*float64(c.Width)
	anchorY := float64(b.Min.Y) + tx.Y*float64(c.Height)
	lineHeight := size * LineHeightFactor

	// Baseline offset that puts the middle of the em box on the line's y.
	m := face.Metrics()
	middle := float64(m.Ascent-m.Descent) / 64 / 2

	lines := strings.Split(tx.Text, "\n")
	placed := make([]textLine, 0, len(lines))
	var bounds image.Rectangle
	for i, line := range lines {
		width := float64(font.MeasureString(face, line)) / 64
		x := anchorX
		switch tx.Align {
		case timeline.AlignCenter, "":
			x -= width / 2
		case timeline.AlignRight:
			x -= width
		}
		y := anchorY + (float64(i)-float64(len(lines)-1)/2)*lineHeight + middle
		dot := fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)}
		placed = append(placed, textLine{text: line, dot: dot})

		lb, _ := font.BoundString(face, line)
		lr := image.Rect(
			(dot.X + lb.Min.X).Floor(), (dot.Y + lb.Min.Y).Floor(),
			(dot.X + lb.Max.X).Ceil(), (dot.Y + lb.Max.Y).Ceil(),
		)
		bounds = bounds.Union(lr)
	}

	bounds = bounds.Inset(-2 * shadowBlur).Intersect(b)
	if bounds.Empty() {
		return
	}

	mask := image.NewAlpha(bounds)
	d := font.Drawer{Dst: mask, Src: image.Opaque, Face: face}
	for _, l := range placed {
		d.Dot = l.dot
		d.DrawString(l.text)
	}

	// Blur returns a copy anchored at the origin.
	shadow := imaging.Blur(mask, shadowBlur/2)
	draw.DrawMask(dst, bounds, image.NewUniform(shadowColor), image.Point{}, shadow, image.Point{}, draw.Over)
	draw.DrawMask(dst, bounds, image.NewUniform(ParseColor(tx.Color)), image.Point{}, mask, bounds.Min, draw.Over)
}
