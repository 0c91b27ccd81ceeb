package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ivlev/reelcomposer/internal/source"
)

// Decoder turns a source reference into PCM.
type Decoder interface {
	Decode(ctx context.Context, src string) (*Buffer, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, src string) (*Buffer, error)

func (f DecoderFunc) Decode(ctx context.Context, src string) (*Buffer, error) {
	return f(ctx, src)
}

// FFmpegDecoder decodes any format ffmpeg understands to float32 PCM at a
// fixed rate and channel count. Local files are read by ffmpeg directly;
// URLs and data URLs are streamed through stdin.
type FFmpegDecoder struct {
	FFmpegPath string
	SampleRate int
	Channels   int
	Client     *http.Client
}

func NewFFmpegDecoder(ffmpegPath string, sampleRate, channels int) *FFmpegDecoder {
	return &FFmpegDecoder{FFmpegPath: ffmpegPath, SampleRate: sampleRate, Channels: channels}
}

func (d *FFmpegDecoder) Decode(ctx context.Context, src string) (*Buffer, error) {
	input := src
	var stdin io.ReadCloser
	if !isLocalFile(src) {
		rc, err := source.Open(ctx, d.Client, src)
		if err != nil {
			return nil, fmt.Errorf("fetch audio: %w", err)
		}
		defer rc.Close()
		stdin, input = rc, "pipe:"
	}

	args := ffmpeg.Input(input).
		Output("pipe:", ffmpeg.KwArgs{
			"f":  "f32le",
			"ac": d.Channels,
			"ar": d.SampleRate,
		}).
		Compile().Args[1:]

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.path(), append([]string{"-hide_banner", "-loglevel", "error"}, args...)...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg decode: no audio stream in %s", src)
	}

	return &Buffer{
		SampleRate: d.SampleRate,
		Channels:   d.Channels,
		Samples:    fromF32LE(stdout.Bytes()),
	}, nil
}

func (d *FFmpegDecoder) path() string {
	if d.FFmpegPath == "" {
		return "ffmpeg"
	}
	return d.FFmpegPath
}

func isLocalFile(src string) bool {
	if strings.Contains(src, "://") || strings.HasPrefix(src, "data:") {
		return false
	}
	_, err := os.Stat(src)
	return err == nil
}
