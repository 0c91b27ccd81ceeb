// Package server exposes an editing session over HTTP for headless
// previews: rendered frames, the timeline, transport control and export.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ivlev/reelcomposer/internal/editor"
	"github.com/ivlev/reelcomposer/internal/export"
)

// NewRouter mounts every preview route. exp may be nil, which disables
// POST /export; otherwise exports land in exportDir.
func NewRouter(ed *editor.Editor, exp *export.Exporter, exportDir string, log zerolog.Logger) chi.Router {
	h := NewHandler(ed, exp, exportDir, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/timeline", h.Timeline)
	r.Get("/frame", h.Frame)

	r.Post("/transport/{action}", h.Transport)
	r.Post("/seek", h.Seek)

	if exp != nil {
		r.Post("/export", h.Export)
	}
	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("http request")
		})
	}
}
