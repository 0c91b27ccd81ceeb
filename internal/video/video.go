// Package video encodes rendered frames into a video file by piping raw
// RGBA into ffmpeg.
package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ivlev/reelcomposer/internal/system"
)

// EncoderVP9 is used for .webm output regardless of configuration.
const EncoderVP9 = "libvpx-vp9"

var ErrFFmpegNotFound = errors.New("ffmpeg executable not found")

type SinkOptions struct {
	Path       string
	FFmpegPath string
	Encoder    string // empty = best available H.264
	Quality    int    // 0 = encoder default
	FPS        int
	Width      int
	Height     int
	// AudioPath is muxed as the soundtrack when set. With AudioSampleRate
	// set it is read as raw little-endian float32 PCM with AudioChannels
	// interleaved channels; otherwise ffmpeg probes its container.
	AudioPath       string
	AudioSampleRate int
	AudioChannels   int
}

// FFmpegSink is one running ffmpeg process fed frame by frame.
type FFmpegSink struct {
	opts   SinkOptions
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	log    zerolog.Logger

	mu     sync.Mutex
	frames int
	closed bool
}

// Open starts ffmpeg for opts. A missing ffmpeg binary fails before any
// output file is created.
func Open(ctx context.Context, opts SinkOptions, log zerolog.Logger) (*FFmpegSink, error) {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	path, err := exec.LookPath(opts.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFFmpegNotFound, err)
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.FPS <= 0 {
		return nil, fmt.Errorf("invalid sink geometry %dx%d@%d", opts.Width, opts.Height, opts.FPS)
	}
	opts.Encoder = SelectEncoder(ctx, opts)

	s := &FFmpegSink{opts: opts, log: log}
	s.cmd = exec.CommandContext(ctx, path, BuildArgs(opts)...)
	s.cmd.Stderr = &s.stderr
	s.stdin, err = s.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	log.Debug().
		Str("path", opts.Path).
		Str("encoder", opts.Encoder).
		Int("fps", opts.FPS).
		Str("size", fmt.Sprintf("%dx%d", opts.Width, opts.Height)).
		Bool("audio", opts.AudioPath != "").
		Msg("encoder started")
	return s, nil
}

// SelectEncoder resolves the codec for opts.Path.
func SelectEncoder(ctx context.Context, opts SinkOptions) string {
	if strings.EqualFold(filepath.Ext(opts.Path), ".webm") {
		return EncoderVP9
	}
	if opts.Encoder != "" {
		return opts.Encoder
	}
	return system.BestH264Encoder(ctx, opts.FFmpegPath)
}

// BuildArgs returns the ffmpeg arguments, without the program name, for an
// encoder reading rawvideo RGBA from stdin.
func BuildArgs(opts SinkOptions) []string {
	streams := []*ffmpeg.Stream{
		ffmpeg.Input("pipe:", ffmpeg.KwArgs{
			"f":       "rawvideo",
			"pix_fmt": "rgba",
			"s":       fmt.Sprintf("%dx%d", opts.Width, opts.Height),
			"r":       opts.FPS,
		}),
	}
	if opts.AudioPath != "" {
		streams = append(streams, audioInput(opts))
	}

	kw := ffmpeg.KwArgs{
		"r":       opts.FPS,
		"pix_fmt": "yuv420p",
		"c:v":     opts.Encoder,
	}
	for k, v := range qualityArgs(opts.Encoder, opts.Quality) {
		kw[k] = v
	}
	if opts.AudioPath != "" {
		if opts.Encoder == EncoderVP9 {
			kw["c:a"] = "libopus"
		} else {
			kw["c:a"] = "aac"
		}
	}

	return ffmpeg.Output(streams, opts.Path, kw).
		OverWriteOutput().
		Compile().Args[1:]
}

func audioInput(opts SinkOptions) *ffmpeg.Stream {
	if opts.AudioSampleRate <= 0 {
		return ffmpeg.Input(opts.AudioPath)
	}
	channels := opts.AudioChannels
	if channels <= 0 {
		channels = 1
	}
	return ffmpeg.Input(opts.AudioPath, ffmpeg.KwArgs{
		"f":  "f32le",
		"ar": opts.AudioSampleRate,
		"ac": channels,
	})
}

// qualityArgs maps a quality value onto each encoder's rate control.
func qualityArgs(encoder string, quality int) ffmpeg.KwArgs {
	switch encoder {
	case "h264_videotoolbox":
		if quality <= 0 {
			quality = 75
		}
		// 75 -> 7.5 Mbit/s
		return ffmpeg.KwArgs{"b:v": fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		if quality <= 0 {
			quality = 23
		}
		return ffmpeg.KwArgs{"cq": strconv.Itoa(quality)}
	case EncoderVP9:
		if quality <= 0 {
			quality = 32
		}
		return ffmpeg.KwArgs{"crf": strconv.Itoa(quality), "b:v": "0"}
	default: // libx264
		if quality <= 0 {
			quality = 23
		}
		return ffmpeg.KwArgs{"crf": strconv.Itoa(quality), "preset": "medium"}
	}
}

// WriteFrame encodes one frame. Frames must match the configured size and
// come from a single goroutine.
func (s *FFmpegSink) WriteFrame(img *image.RGBA) error {
	if b := img.Bounds(); b.Dx() != s.opts.Width || b.Dy() != s.opts.Height {
		return fmt.Errorf("frame %dx%d does not match sink %dx%d", b.Dx(), b.Dy(), s.opts.Width, s.opts.Height)
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errors.New("sink closed")
	}
	if err := writeRawRGBA(s.stdin, img); err != nil {
		return fmt.Errorf("write raw error: %w", err)
	}
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
	return nil
}

// Close finalizes the file and waits for ffmpeg to exit.
func (s *FFmpegSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	frames := s.frames
	s.mu.Unlock()

	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w: %s", err, tail(s.stderr.String()))
	}
	s.log.Debug().Str("path", s.opts.Path).Int("frames", frames).Msg("encoder finished")
	return nil
}

// Abort kills ffmpeg and removes any partial output.
func (s *FFmpegSink) Abort() {
	s.mu.Lock()
	wasClosed := s.closed
	s.closed = true
	s.mu.Unlock()

	if !wasClosed {
		s.stdin.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
	}
	if err := os.Remove(s.opts.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("path", s.opts.Path).Msg("cannot remove partial output")
	}
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 512 {
		return "..." + s[len(s)-512:]
	}
	return s
}
