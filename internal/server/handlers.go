package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ivlev/reelcomposer/internal/editor"
	"github.com/ivlev/reelcomposer/internal/export"
	"github.com/ivlev/reelcomposer/internal/timeline"
	"github.com/ivlev/reelcomposer/internal/transport"
)

// Handler holds the preview route handlers.
type Handler struct {
	ed        *editor.Editor
	exp       *export.Exporter
	exportDir string
	log       zerolog.Logger
}

// NewHandler serves ed. Exports are written under exportDir only.
func NewHandler(ed *editor.Editor, exp *export.Exporter, exportDir string, log zerolog.Logger) *Handler {
	return &Handler{ed: ed, exp: exp, exportDir: exportDir, log: log}
}

type ClipView struct {
	ID        string         `json:"id"`
	Track     timeline.Track `json:"track"`
	StartTime float64        `json:"start_time"`
	Duration  float64        `json:"duration"`
	Layer     int            `json:"layer"`
	Payload   any            `json:"payload"`
}

type PlayheadView struct {
	State     string  `json:"state"`
	Time      float64 `json:"time"`
	Scrubbing bool    `json:"scrubbing"`
}

type TimelineView struct {
	Aspect       string       `json:"aspect"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	Duration     float64      `json:"duration"`
	ContentWidth float64      `json:"content_width"`
	Playhead     PlayheadView `json:"playhead"`
	Clips        []ClipView   `json:"clips"`
}

func playhead(ev transport.Event) PlayheadView {
	return PlayheadView{State: ev.State.String(), Time: ev.Time, Scrubbing: ev.Scrubbing}
}

// Timeline handles GET /timeline?viewport=px. A viewport width, when
// given, is recorded before content_width is computed.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("viewport"); raw != "" {
		px, err := parseNonNegative(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("viewport must be a non-negative number of pixels"))
			return
		}
		h.ed.SetViewport(px)
	}

	snap := h.ed.Snapshot()
	c := h.ed.Canvas()
	view := TimelineView{
		Aspect:       string(h.ed.Aspect()),
		Width:        c.Width,
		Height:       c.Height,
		Duration:     snap.TotalDuration(),
		ContentWidth: h.ed.ContentWidth(),
		Playhead:     playhead(h.ed.Transport().Snapshot()),
		Clips:        make([]ClipView, 0, snap.Len()),
	}
	for _, clip := range snap.Clips() {
		view.Clips = append(view.Clips, ClipView{
			ID:        clip.ID,
			Track:     clip.Track(),
			StartTime: clip.StartTime,
			Duration:  clip.Duration,
			Layer:     clip.Layer,
			Payload:   clip.Payload,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

// Frame handles GET /frame?t=seconds. Without t the frame under the
// playhead is returned.
func (h *Handler) Frame(w http.ResponseWriter, r *http.Request) {
	t := h.ed.Transport().Time()
	if raw := r.URL.Query().Get("t"); raw != "" {
		v, err := parseNonNegative(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("t must be a non-negative number of seconds"))
			return
		}
		t = v
	}

	frame := h.ed.FrameAt(t)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, frame); err != nil {
		h.log.Warn().Err(err).Float64("t", t).Msg("frame encode failed")
	}
}

// Transport handles POST /transport/{action}.
func (h *Handler) Transport(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "play":
		h.ed.Play()
	case "pause":
		h.ed.Pause()
	case "toggle":
		h.ed.Toggle()
	case "stop":
		h.ed.Stop()
	default:
		writeJSON(w, http.StatusNotFound, errorBody("unknown transport action"))
		return
	}
	writeJSON(w, http.StatusOK, playhead(h.ed.Transport().Snapshot()))
}

type seekRequest struct {
	Time *float64 `json:"time"`
}

// Seek handles POST /seek with a body of {"time": seconds}.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Time == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("time is required"))
		return
	}
	if !nonNegative(*req.Time) {
		writeJSON(w, http.StatusBadRequest, errorBody("time must be a non-negative number of seconds"))
		return
	}
	h.ed.Transport().Seek(*req.Time)
	writeJSON(w, http.StatusOK, playhead(h.ed.Transport().Snapshot()))
}

func parseNonNegative(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if !nonNegative(v) {
		return 0, fmt.Errorf("out of range: %v", v)
	}
	return v, nil
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

type exportRequest struct {
	// Path is a bare file name placed in the export directory.
	Path string `json:"path"`
}

var errBadExportName = errors.New("path must be a plain file name")

// exportPath resolves a requested file name inside dir.
func exportPath(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) ||
		filepath.IsAbs(name) || filepath.VolumeName(name) != "" ||
		filepath.Base(name) != name {
		return "", errBadExportName
	}
	return filepath.Join(dir, name), nil
}

type exportResponse struct {
	Path          string  `json:"path"`
	Frames        int     `json:"frames"`
	FPS           int     `json:"fps"`
	Duration      float64 `json:"duration"`
	VideoDuration float64 `json:"video_duration"`
	ElapsedMS     int64   `json:"elapsed_ms"`
	Audio         bool    `json:"audio"`
}

// Export handles POST /export. The request blocks until the file is
// written.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	path, err := exportPath(h.exportDir, req.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := os.MkdirAll(h.exportDir, 0o755); err != nil {
		h.log.Error().Err(err).Str("dir", h.exportDir).Msg("export dir unavailable")
		writeJSON(w, http.StatusInternalServerError, errorBody("export failed"))
		return
	}

	rep, err := h.exp.Export(r.Context(), path)
	switch {
	case errors.Is(err, export.ErrExportInProgress):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, export.ErrEmptyTimeline):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, export.ErrSinkUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
	case err != nil:
		h.log.Error().Err(err).Str("path", path).Msg("export failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("export failed"))
	default:
		writeJSON(w, http.StatusOK, exportResponse{
			Path:          rep.Path,
			Frames:        rep.Frames,
			FPS:           rep.FPS,
			Duration:      rep.Duration,
			VideoDuration: rep.VideoDuration(),
			ElapsedMS:     rep.Elapsed.Milliseconds(),
			Audio:         rep.Audio,
		})
	}
}
