package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/reelcomposer/internal/editor"
	"github.com/ivlev/reelcomposer/internal/export"
	"github.com/ivlev/reelcomposer/internal/renderer"
	"github.com/ivlev/reelcomposer/internal/timeline"
)

type nullSink struct{ frames int }

func (s *nullSink) WriteFrame(*image.RGBA) error { s.frames++; return nil }
func (s *nullSink) Close() error                 { return nil }
func (s *nullSink) Abort()                       {}

func testEnv(t *testing.T, sinks export.SinkFactory) (*editor.Editor, http.Handler) {
	t.Helper()
	return testEnvIn(t, sinks, t.TempDir())
}

func testEnvIn(t *testing.T, sinks export.SinkFactory, exportDir string) (*editor.Editor, http.Handler) {
	t.Helper()
	fonts, err := renderer.NewFontBook()
	require.NoError(t, err)
	t.Cleanup(func() { fonts.Close() })

	ed, err := editor.New(editor.Config{Renderer: renderer.New(nil, fonts, zerolog.Nop())}, zerolog.Nop())
	require.NoError(t, err)
	if sinks == nil {
		sinks = func(ctx context.Context, spec export.SinkSpec) (export.Sink, error) { return &nullSink{}, nil }
	}
	exp := export.New(ed, sinks, export.Options{}, zerolog.Nop())
	return ed, NewRouter(ed, exp, exportDir, zerolog.Nop())
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTimeline(t *testing.T) {
	ed, h := testEnv(t, nil)
	require.NoError(t, ed.Store().Add(timeline.NewVideoClip("a.png", 1)))
	require.NoError(t, ed.Store().Add(timeline.NewTextClip("Hi", 0)))

	rec := do(t, h, http.MethodGet, "/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view TimelineView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "16:9", view.Aspect)
	assert.Equal(t, 1280, view.Width)
	assert.Equal(t, 6.0, view.Duration)
	assert.Equal(t, "stopped", view.Playhead.State)
	require.Len(t, view.Clips, 2)
	assert.Equal(t, timeline.TrackVideo, view.Clips[0].Track)
	assert.Equal(t, timeline.TrackText, view.Clips[1].Track)
	assert.Equal(t, ed.ContentWidth(), view.ContentWidth)
}

func TestTimelineRecordsViewport(t *testing.T) {
	_, h := testEnv(t, nil)

	rec := do(t, h, http.MethodGet, "/timeline?viewport=5000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view TimelineView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 5000.0, view.ContentWidth)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/timeline?viewport=wide", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/timeline?viewport=-1", nil).Code)
}

func TestFrame(t *testing.T) {
	ed, h := testEnv(t, nil)
	require.NoError(t, ed.SetAspect(renderer.Aspect1x1))

	rec := do(t, h, http.MethodGet, "/frame?t=1.5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1080, 1080), img.Bounds())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/frame?t=soon", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/frame?t=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/frame?t=NaN", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/frame?t=Inf", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/frame", nil).Code)
}

func TestTransportAndSeek(t *testing.T) {
	ed, h := testEnv(t, nil)
	require.NoError(t, ed.Store().Add(timeline.NewVideoClip("a.png", 0)))

	rec := do(t, h, http.MethodPost, "/transport/play", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ph PlayheadView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ph))
	assert.Equal(t, "playing", ph.State)

	rec = do(t, h, http.MethodPost, "/seek", []byte(`{"time":2}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ph))
	assert.Equal(t, 2.0, ph.Time)

	do(t, h, http.MethodPost, "/transport/pause", nil)
	assert.Equal(t, "paused", ed.Transport().State().String())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/transport/rewind", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/seek", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/seek", []byte(`{}`)).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/seek", []byte(`{"time":-3}`)).Code)
	assert.Equal(t, 2.0, ed.Transport().Time())
}

func TestExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	var specs []export.SinkSpec
	ed, h := testEnvIn(t, func(ctx context.Context, spec export.SinkSpec) (export.Sink, error) {
		specs = append(specs, spec)
		return &nullSink{}, nil
	}, dir)

	body := []byte(`{"path":"out.mp4"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, h, http.MethodPost, "/export", body).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/export", []byte(`{}`)).Code)

	clip := timeline.NewVideoClip("a.png", 0)
	clip.Duration = 1
	require.NoError(t, ed.Store().Add(clip))

	rec := do(t, h, http.MethodPost, "/export", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp exportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 30, resp.Frames)
	assert.InDelta(t, 1.0, resp.VideoDuration, 1e-9)
	assert.Equal(t, filepath.Join(dir, "out.mp4"), resp.Path)
	require.Len(t, specs, 1)
	assert.Equal(t, filepath.Join(dir, "out.mp4"), specs[0].Path)
	assert.DirExists(t, dir)
}

func TestExportStaysInExportDir(t *testing.T) {
	var specs []export.SinkSpec
	ed, h := testEnv(t, func(ctx context.Context, spec export.SinkSpec) (export.Sink, error) {
		specs = append(specs, spec)
		return &nullSink{}, nil
	})
	require.NoError(t, ed.Store().Add(timeline.NewVideoClip("a.png", 0)))

	for _, name := range []string{
		"../out.mp4",
		"/tmp/out.mp4",
		"nested/out.mp4",
		`..\out.mp4`,
		"..",
		".",
	} {
		body, err := json.Marshal(map[string]string{"path": name})
		require.NoError(t, err)
		rec := do(t, h, http.MethodPost, "/export", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
	assert.Empty(t, specs)
}

func TestExportSinkUnavailable(t *testing.T) {
	ed, h := testEnv(t, func(ctx context.Context, spec export.SinkSpec) (export.Sink, error) {
		return nil, errors.New("ffmpeg missing")
	})
	require.NoError(t, ed.Store().Add(timeline.NewVideoClip("a.png", 0)))

	rec := do(t, h, http.MethodPost, "/export", []byte(`{"path":"out.mp4"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ed, h := testEnv(t, nil)
	ed.FrameAt(0)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/live", nil).Code)
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "reel_frames_rendered_total"))
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), zerolog.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
