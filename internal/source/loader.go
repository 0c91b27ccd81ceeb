package source

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"

	"github.com/ivlev/reelcomposer/internal/lazy"
	"github.com/ivlev/reelcomposer/internal/metrics"
)

// Loader fetches and decodes images in the background. Image never blocks:
// an unknown reference starts a load and reports not-ready until it lands.
// A reference that failed to load is not retried.
type Loader struct {
	client *http.Client
	cache  *lazy.Cache[image.Image]
	log    zerolog.Logger
}

type LoaderOptions struct {
	Client      *http.Client
	Concurrency int
}

func NewLoader(opts LoaderOptions, log zerolog.Logger) *Loader {
	l := &Loader{client: opts.Client, log: log}
	if l.client == nil {
		l.client = &http.Client{Timeout: 30 * time.Second}
	}
	l.cache = lazy.New(l.load, lazy.Options{
		Concurrency: opts.Concurrency,
		OnDone:      l.done,
	})
	return l
}

func (l *Loader) load(ctx context.Context, ref string) (image.Image, error) {
	rc, err := Open(ctx, l.client, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	img, format, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	l.log.Debug().Str("ref", shortRef(ref)).Str("format", format).
		Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).
		Msg("image loaded")
	return img, nil
}

func (l *Loader) done(ref string, err error) {
	if err != nil {
		metrics.ImageLoads.WithLabelValues("error").Inc()
		l.log.Warn().Err(err).Str("ref", shortRef(ref)).Msg("image load failed")
		return
	}
	metrics.ImageLoads.WithLabelValues("ok").Inc()
}

// Request starts loading ref if it is not already known.
func (l *Loader) Request(ref string) {
	if ref != "" {
		l.cache.Request(ref)
	}
}

// Image implements renderer.ImageProvider.
func (l *Loader) Image(ref string) (image.Image, bool) {
	if ref == "" {
		return nil, false
	}
	if img, ok := l.cache.Get(ref); ok {
		return img, true
	}
	l.cache.Request(ref)
	return nil, false
}

// State reports whether ref is pending, ready or failed.
func (l *Loader) State(ref string) lazy.State {
	return l.cache.State(ref)
}

// Put registers an already decoded image, e.g. a rendered PDF page.
func (l *Loader) Put(ref string, img image.Image) {
	l.cache.Put(ref, img)
}

// Wait blocks until every ref finished loading. Failed loads are reported
// but do not stop the wait for the others.
func (l *Loader) Wait(ctx context.Context, refs ...string) error {
	var firstErr error
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if _, err := l.cache.Wait(ctx, ref); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", shortRef(ref), err)
			}
		}
	}
	return firstErr
}

func (l *Loader) Close() {
	l.cache.Close()
}

// shortRef keeps data URLs out of log lines.
func shortRef(ref string) string {
	if len(ref) > 64 {
		return ref[:61] + "..."
	}
	return ref
}
