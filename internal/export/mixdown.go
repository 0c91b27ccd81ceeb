package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ivlev/reelcomposer/internal/audio"
	"github.com/ivlev/reelcomposer/internal/timeline"
)

// mixRate is how many times per second the mixdown clock reconciles voices.
const mixRate = 100.0

// Mixdown renders the audio track of snap into one buffer of length total.
// It runs its own Scheduler against an offline Mixer, so clips start, stop
// and seek exactly as they do during playback. Sources that fail to decode
// stay silent.
func Mixdown(ctx context.Context, cache *audio.DecodeCache, snap *timeline.Snapshot, total float64, sampleRate, channels int, log zerolog.Logger) (*audio.Buffer, error) {
	clips := snap.ByTrack(timeline.TrackAudio)
	if len(clips) == 0 {
		return nil, nil
	}
	for _, c := range clips {
		a, _ := c.AsAudio()
		if _, err := cache.Wait(ctx, a.Source); err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	mixer := audio.NewMixer(sampleRate, channels)
	sched := audio.NewScheduler(cache, mixer, log)
	for i := 0; ; i++ {
		t := float64(i) / mixRate
		if t >= total {
			break
		}
		mixer.SetTime(t)
		sched.Sync(snap, t, true)
	}
	mixer.SetTime(total)
	sched.StopAll()

	log.Debug().Int("voices", mixer.Voices()).Float64("duration", total).Msg("audio mixed")
	return mixer.Render(total), nil
}

// writeMixdown mixes the audio track into a temporary raw f32le file. It
// returns an empty path when the timeline has no audio.
func (e *Exporter) writeMixdown(ctx context.Context, snap *timeline.Snapshot, total float64) (string, error) {
	a := e.opts.Audio
	buf, err := Mixdown(ctx, a.Cache, snap, total, a.SampleRate, a.Channels, e.log)
	if err != nil || buf == nil {
		return "", err
	}

	f, err := os.CreateTemp(e.opts.TempDir, "reel-mix-*.f32")
	if err != nil {
		return "", fmt.Errorf("create mixdown: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := io.Copy(w, buf.Reader(0)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write mixdown: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write mixdown: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
