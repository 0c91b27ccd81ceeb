package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/reelcomposer/internal/lazy"
	"github.com/ivlev/reelcomposer/internal/metrics"
)

// DecodeCache memoizes decoded buffers per source identifier. A source is
// decoded at most once, even under concurrent requests. A failed decode is
// logged and the source stays not-ready for the life of the cache.
type DecodeCache struct {
	decoder Decoder
	cache   *lazy.Cache[*Buffer]
	log     zerolog.Logger
}

// NewDecodeCache creates a cache running at most workers decodes at once
// (0 means unbounded).
func NewDecodeCache(decoder Decoder, workers int, log zerolog.Logger) *DecodeCache {
	c := &DecodeCache{decoder: decoder, log: log}
	c.cache = lazy.New(c.decode, lazy.Options{
		Concurrency: workers,
		OnDone:      c.done,
	})
	return c
}

func (c *DecodeCache) decode(ctx context.Context, src string) (*Buffer, error) {
	start := time.Now()
	buf, err := c.decoder.Decode(ctx, src)
	if err != nil {
		return nil, err
	}
	c.log.Debug().
		Str("source", src).
		Float64("duration", buf.Duration()).
		Dur("took", time.Since(start)).
		Msg("audio decoded")
	return buf, nil
}

func (c *DecodeCache) done(src string, err error) {
	if err != nil {
		metrics.AudioDecodes.WithLabelValues("error").Inc()
		c.log.Error().Err(err).Str("source", src).Msg("audio decode failed")
		return
	}
	metrics.AudioDecodes.WithLabelValues("ok").Inc()
}

// Request starts decoding src in the background unless it is pending or done.
func (c *DecodeCache) Request(src string) {
	if src != "" {
		c.cache.Request(src)
	}
}

// Get returns the decoded buffer without blocking.
func (c *DecodeCache) Get(src string) (*Buffer, bool) {
	return c.cache.Get(src)
}

// State reports the decode state of src.
func (c *DecodeCache) State(src string) lazy.State {
	return c.cache.State(src)
}

// Duration returns the decoded length of src, or ErrNotReady.
func (c *DecodeCache) Duration(src string) (float64, error) {
	buf, ok := c.cache.Get(src)
	if !ok {
		return 0, fmt.Errorf("%s: %w", src, ErrNotReady)
	}
	return buf.Duration(), nil
}

// Put registers an already decoded buffer.
func (c *DecodeCache) Put(src string, buf *Buffer) {
	c.cache.Put(src, buf)
}

// Wait requests src and blocks until its decode finished.
func (c *DecodeCache) Wait(ctx context.Context, src string) (*Buffer, error) {
	return c.cache.Wait(ctx, src)
}

// Close cancels running decodes.
func (c *DecodeCache) Close() {
	c.cache.Close()
}
