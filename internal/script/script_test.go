package script

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/reelcomposer/internal/assets"
	"github.com/ivlev/reelcomposer/internal/editor"
	"github.com/ivlev/reelcomposer/internal/renderer"
	"github.com/ivlev/reelcomposer/internal/timeline"
)

func newEditor(t *testing.T) *editor.Editor {
	t.Helper()
	fonts, err := renderer.NewFontBook()
	require.NoError(t, err)
	t.Cleanup(func() { fonts.Close() })
	e, err := editor.New(editor.Config{Renderer: renderer.New(nil, fonts, zerolog.Nop())}, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func registry() *assets.Registry {
	return assets.NewRegistry(
		[]assets.ImageAsset{{Ref: "a.png"}, {Ref: "b.png"}, {Ref: "c.png"}},
		[]assets.TextAsset{
			{Headline: "Fresh coffee", CTA: ""},
			{Headline: "", Body: "Every morning"},
			{Headline: "Order now", CTA: "https://example.com/order"},
		},
		[]assets.AudioAsset{{DisplayName: "Upbeat", Source: "music.mp3"}},
	)
}

func idx(i int) *int { return &i }

func TestApplyPlacesClips(t *testing.T) {
	ed := newEditor(t)
	s := &Script{
		Aspect: "9:16",
		Clips: []Entry{
			{Track: timeline.TrackVideo, At: 2.5, Asset: idx(1), Set: timeline.Patch{Animation: timeline.AnimationPtr(timeline.AnimationZoomIn)}},
			{Track: timeline.TrackText, At: 0, Text: "Hello", Set: timeline.Patch{Color: timeline.String("#00ff00")}},
			{Track: timeline.TrackText, At: 1, Asset: idx(1)},
			{Track: timeline.TrackAudio, At: 0, Asset: idx(0), Set: timeline.Patch{Duration: timeline.Float(7.5)}},
		},
	}

	ids, err := Apply(s, ed, registry())
	require.NoError(t, err)
	require.Len(t, ids, 4)
	assert.Equal(t, renderer.Aspect9x16, ed.Aspect())

	img, ok := ed.Store().Get(ids[0])
	require.True(t, ok)
	assert.Equal(t, 2.5, img.StartTime)
	v, _ := img.AsVideo()
	assert.Equal(t, "b.png", v.Source)
	assert.Equal(t, timeline.AnimationZoomIn, v.Animation)

	hello, _ := ed.Store().Get(ids[1])
	tx, _ := hello.AsText()
	assert.Equal(t, "Hello", tx.Text)
	assert.Equal(t, "#00ff00", tx.Color)

	template, _ := ed.Store().Get(ids[2])
	tx, _ = template.AsText()
	assert.Equal(t, assets.TemplateHeadline, tx.Text)

	music, _ := ed.Store().Get(ids[3])
	a, _ := music.AsAudio()
	assert.Equal(t, "Upbeat", a.DisplayName)
	assert.Equal(t, 7.5, music.Duration)

	_, selected := ed.Selected()
	assert.False(t, selected)
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		reg   *assets.Registry
	}{
		{"unknown track", Entry{Track: "subtitles", Text: "x"}, nil},
		{"asset out of range", Entry{Track: timeline.TrackVideo, Asset: idx(9)}, registry()},
		{"asset without registry", Entry{Track: timeline.TrackVideo, Asset: idx(0)}, nil},
		{"missing source", Entry{Track: timeline.TrackAudio}, nil},
		{"patch for another track", Entry{Track: timeline.TrackVideo, Source: "a.png", Set: timeline.Patch{Color: timeline.String("#fff")}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(&Script{Clips: []Entry{tt.entry}}, newEditor(t), tt.reg)
			assert.Error(t, err)
		})
	}

	_, err := Apply(&Script{Aspect: "2:1"}, newEditor(t), nil)
	assert.Error(t, err)
}

func TestCaptureReplaysTheSameTimeline(t *testing.T) {
	ed := newEditor(t)
	_, err := Apply(&Script{Clips: []Entry{
		{Track: timeline.TrackVideo, At: 0, Source: "a.png", Set: timeline.Patch{Layer: timeline.Int(4)}},
		{Track: timeline.TrackText, At: 1, Text: "", Set: timeline.Patch{Text: timeline.String(""), Align: timeline.AlignPtr(timeline.AlignLeft), X: timeline.Float(0.1)}},
		{Track: timeline.TrackAudio, At: 3, Source: "vo.mp3", Name: "Voice"},
	}}, ed, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "comp.yaml")
	require.NoError(t, Write(Capture(ed), path))
	s, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, Version, s.Version)

	replay := newEditor(t)
	_, err = Apply(s, replay, nil)
	require.NoError(t, err)

	want, got := ed.Snapshot().Clips(), replay.Snapshot().Clips()
	require.Len(t, got, len(want))
	for i := range want {
		want[i].ID, got[i].ID = "", ""
	}
	assert.Equal(t, want, got)
}

func TestReadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clips: [\n"), 0o644))
	_, err := Read(path)
	assert.Error(t, err)

	_, err = Read(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStoryboard(t *testing.T) {
	d := NewDirector()
	s := d.Storyboard(registry(), 9)

	var video, text, audio []Entry
	for _, e := range s.Clips {
		switch e.Track {
		case timeline.TrackVideo:
			video = append(video, e)
		case timeline.TrackText:
			text = append(text, e)
		case timeline.TrackAudio:
			audio = append(audio, e)
		}
	}

	require.Len(t, video, 3)
	for i, e := range video {
		assert.Equal(t, float64(i)*3, e.At)
		assert.Equal(t, 3.0, *e.Set.Duration)
	}
	// Headlines for images 0 and 2 plus the closing CTA.
	require.Len(t, text, 3)
	assert.Equal(t, "https://example.com/order", text[2].Text)
	assert.Equal(t, 6.0, text[2].At)
	require.Len(t, audio, 1)
	assert.Equal(t, 9.0, *audio[0].Set.Duration)

	ed := newEditor(t)
	_, err := Apply(s, ed, registry())
	require.NoError(t, err)
	assert.Equal(t, 9.0, ed.Store().TotalDuration())
}

func TestDwellIsClamped(t *testing.T) {
	d := NewDirector()
	assert.Equal(t, timeline.DefaultClipDuration, d.calculateDwellTime(0, 3))
	assert.Equal(t, d.MinDwell, d.calculateDwellTime(1, 3))
	assert.Equal(t, d.MaxDwell, d.calculateDwellTime(100, 3))
	assert.Empty(t, d.Storyboard(assets.NewRegistry(nil, nil, nil), 10).Clips)
}

func TestStoryboardMovesCaptionsOffBusyAreas(t *testing.T) {
	// b.png has detail in its lower third.
	busy := image.NewGray(image.Rect(0, 0, 200, 200))
	for y := 130; y < 190; y++ {
		for x := 20; x < 180; x++ {
			busy.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	flat := image.NewGray(image.Rect(0, 0, 200, 200))

	d := NewDirector()
	d.Frames = func(ref string) (image.Image, bool) {
		switch ref {
		case "a.png":
			return flat, true
		case "b.png":
			return busy, true
		}
		return nil, false
	}

	reg := assets.NewRegistry(
		[]assets.ImageAsset{{Ref: "a.png"}, {Ref: "b.png"}, {Ref: "c.png"}},
		[]assets.TextAsset{{Headline: "One"}, {Headline: "Two"}, {Headline: "Three"}},
		nil,
	)
	var ys []float64
	for _, e := range d.Storyboard(reg, 9).Clips {
		if e.Track == timeline.TrackText && e.Set.Y != nil {
			ys = append(ys, *e.Set.Y)
		}
	}
	require.Len(t, ys, 3)
	assert.Equal(t, []float64{0.8, 0.2, 0.8}, ys)
}
